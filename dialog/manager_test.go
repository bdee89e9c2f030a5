package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/sip"
)

// 构造携带 SDP offer 的呼入 INVITE
func newInboundInvite(t *testing.T, payloadTypes []uint8) sip.Request {
	t.Helper()

	invite := sip.CreateRequest(
		sip.INVITE,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
	)
	if from, ok := invite.From(); ok {
		from.Params.Add("tag", sip.String{Str: "remote-tag-1"})
	}

	offer, err := media.BuildDescription("offer", "127.0.0.1", 41000, payloadTypes, media.NewRegistry())
	require.NoError(t, err)

	contentType := sip.ContentType("application/sdp")
	invite.AddHeader(&contentType)
	invite.SetBody(string(offer), true)

	return invite
}

// 构造与呼入 INVITE 同会话的请求(BYE/ACK)
func newInDialogPeerRequest(t *testing.T, method sip.RequestMethod, invite sip.Request) sip.Request {
	t.Helper()

	req := sip.CreateSimpleRequest(method, "127.0.0.1:5060")
	sip.CopyHeaders("From", invite, req)
	sip.CopyHeaders("To", invite, req)
	sip.CopyHeaders("Call-ID", invite, req)
	if cseq, ok := invite.CSeq(); ok {
		req.AddHeader(&sip.CSeq{SeqNo: cseq.SeqNo + 1, MethodName: method})
	}

	return req
}

func inboundCall(t *testing.T, m *Manager, payloadTypes []uint8) (*Dialog, sip.Request, *fakeServerTx) {
	t.Helper()

	invite := newInboundInvite(t, payloadTypes)
	stx := newFakeServerTx(invite)
	m.HandleRequest(invite, stx)

	callID, ok := invite.CallID()
	require.True(t, ok)
	d, found := m.Find(string(*callID))
	require.True(t, found)

	return d, invite, stx
}

// -------------------------------------------
// 被叫流程
// -------------------------------------------

func TestInboundInviteAutoRings(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, stx := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	assert.Equal(t, StateRinging, d.State())
	assert.True(t, stx.sentStatus(sip.StatusRinging))

	// 被叫侧所有响应的 To tag 一致
	responses := stx.sentResponses()
	require.NotEmpty(t, responses)
	to, ok := responses[0].To()
	require.True(t, ok)
	tag, ok := to.Params.Get("tag")
	require.True(t, ok)
	assert.NotEmpty(t, tag.String())
}

func TestInboundAnswerThenAck(t *testing.T) {
	m, _ := newTestManager(t)
	d, invite, stx := inboundCall(t, m, []uint8{media.PayloadTypePCMU, media.PayloadTypePCMA})

	require.NoError(t, d.Answer())

	// 200 携带单一协商结果的 answer
	var ok200 sip.Response
	for _, res := range stx.sentResponses() {
		if res.StatusCode() == sip.StatusOK {
			ok200 = res
		}
	}
	require.NotNil(t, ok200)

	answer, err := media.ParseDescription([]byte(ok200.Body()))
	require.NoError(t, err)
	assert.Equal(t, []uint8{media.PayloadTypePCMU}, answer.PayloadTypes)

	// 接通要等 ACK
	assert.Equal(t, StateRinging, d.State())
	require.NotNil(t, d.Media())

	m.HandleAck(newInDialogPeerRequest(t, sip.ACK, invite))
	eventuallyState(t, d, StateConnected)

	status := d.Status()
	assert.Equal(t, "PCMU", status.Codec)
	assert.False(t, status.ConnectedAt.IsZero())
}

func TestInboundAnswerNoCommonMedia(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, stx := inboundCall(t, m, []uint8{96, 97})

	err := d.Answer()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCommonMedia)

	assert.True(t, stx.sentStatus(sip.StatusNotAcceptableHere))
	assert.Equal(t, StateTerminated, d.State())

	// 协商失败不占用任何媒体资源
	assert.Nil(t, d.Media())
	assert.Equal(t, "no common media", d.Status().Reason)
}

func TestInboundReject(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, stx := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	require.NoError(t, d.Reject(sip.StatusBusyHere, "Busy Here"))

	assert.True(t, stx.sentStatus(sip.StatusBusyHere))
	assert.Equal(t, StateTerminated, d.State())
	assert.Contains(t, d.Status().Reason, "486")

	// 已终结的会话不允许再接听
	assert.ErrorIs(t, d.Answer(), ErrAlreadyTerminated)
}

func TestInboundPeerCancel(t *testing.T) {
	m, _ := newTestManager(t)
	d, invite, stx := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	// CANCEL 由事务层代答 200 后交给会话
	stx.cancels <- sip.CreateCancel(invite)

	eventuallyState(t, d, StateTerminated)
	assert.True(t, stx.sentStatus(sip.StatusRequestTerminated))
	assert.Equal(t, "cancelled by peer", d.Status().Reason)
}

func TestInboundPeerHangup(t *testing.T) {
	m, _ := newTestManager(t)
	d, invite, _ := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	require.NoError(t, d.Answer())
	m.HandleAck(newInDialogPeerRequest(t, sip.ACK, invite))
	eventuallyState(t, d, StateConnected)

	bye := newInDialogPeerRequest(t, sip.BYE, invite)
	byeTx := newFakeServerTx(bye)
	m.HandleRequest(bye, byeTx)

	assert.True(t, byeTx.sentStatus(sip.StatusOK))
	assert.Equal(t, StateTerminated, d.State())
	assert.Equal(t, "hangup by peer", d.Status().Reason)
	assert.Nil(t, d.Media())

	_, found := m.Find(d.CallID())
	assert.False(t, found)
}

// -------------------------------------------
// 管理器路由
// -------------------------------------------

// re-INVITE 暂不支持, 统一回 491
func TestReInviteAnsweredRequestPending(t *testing.T) {
	m, _ := newTestManager(t)
	_, invite, _ := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	retry := newFakeServerTx(invite)
	m.HandleRequest(invite, retry)

	assert.True(t, retry.sentStatus(sip.StatusRequestPending))
}

func TestInviteWithoutOfferRejected(t *testing.T) {
	m, _ := newTestManager(t)

	invite := sip.CreateRequest(
		sip.INVITE,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
	)
	stx := newFakeServerTx(invite)
	m.HandleRequest(invite, stx)

	assert.True(t, stx.sentStatus(sip.StatusBadRequest))

	callID, _ := invite.CallID()
	_, found := m.Find(string(*callID))
	assert.False(t, found)
}

func TestStrayByeAnswered481(t *testing.T) {
	m, _ := newTestManager(t)

	bye := sip.CreateRequest(
		sip.BYE,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
	)
	stx := newFakeServerTx(bye)
	m.HandleRequest(bye, stx)

	assert.True(t, stx.sentStatus(sip.StatusCallTransactionDoesNotExist))
}

func TestUnsupportedMethodAnswered405(t *testing.T) {
	m, _ := newTestManager(t)

	options := sip.CreateRequest(
		sip.OPTIONS,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
	)
	stx := newFakeServerTx(options)
	m.HandleRequest(options, stx)

	assert.True(t, stx.sentStatus(sip.StatusMethodNotAllowed))
}

func TestManagerCloseTerminatesAll(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, _ := inboundCall(t, m, []uint8{media.PayloadTypePCMU})

	m.Close()

	assert.Equal(t, StateTerminated, d.State())
	assert.Equal(t, "shutdown", d.Status().Reason)
}

// -------------------------------------------
// 注册
// -------------------------------------------

func newRegister(t *testing.T, contactAddr string) sip.Request {
	t.Helper()

	req := sip.CreateRequest(
		sip.REGISTER,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:alice@127.0.0.1"),
	)
	req.AddHeader(&sip.ContactHeader{
		Address: testUri(t, contactAddr),
		Params:  sip.NewParams(),
	})

	return req
}

func TestRegisterBindsContact(t *testing.T) {
	m, _ := newTestManager(t)

	req := newRegister(t, "sip:alice@192.168.1.10:5062")
	stx := newFakeServerTx(req)
	m.HandleRequest(req, stx)

	assert.True(t, stx.sentStatus(sip.StatusOK))

	from, _ := req.From()
	bindings := m.reg.ResolveContacts(from.Address.String())
	require.Len(t, bindings, 1)
	assert.Contains(t, bindings[0].Address, "192.168.1.10")

	// 缺省有效期写回 Expires 头
	var ok200 sip.Response
	for _, res := range stx.sentResponses() {
		if res.StatusCode() == sip.StatusOK {
			ok200 = res
		}
	}
	require.NotNil(t, ok200)
	expires, ok := ok200.Expires()
	require.True(t, ok)
	assert.Equal(t, DefaultRegisterExpiry, uint32(*expires))
}

// Contact 的 expires 参数优先于 Expires 头, 0 表示注销
func TestRegisterExpiresZeroDeregisters(t *testing.T) {
	m, _ := newTestManager(t)

	req := newRegister(t, "sip:alice@192.168.1.10:5062")
	stx := newFakeServerTx(req)
	m.HandleRequest(req, stx)

	from, _ := req.From()
	require.Len(t, m.reg.ResolveContacts(from.Address.String()), 1)

	dereg := newRegister(t, "sip:alice@192.168.1.10:5062")
	contact, ok := dereg.Contact()
	require.True(t, ok)
	contact.Params.Add("expires", sip.String{Str: "0"})

	m.HandleRequest(dereg, newFakeServerTx(dereg))

	assert.Empty(t, m.reg.ResolveContacts(from.Address.String()))
}

func TestRegisterWithoutContactRejected(t *testing.T) {
	m, _ := newTestManager(t)

	req := sip.CreateRequest(
		sip.REGISTER,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:alice@127.0.0.1"),
	)
	stx := newFakeServerTx(req)
	m.HandleRequest(req, stx)

	assert.True(t, stx.sentStatus(sip.StatusBadRequest))
}

// -------------------------------------------
// 状态事件
// -------------------------------------------

func TestDialogStateEventsPublished(t *testing.T) {
	m, _ := newTestManager(t)
	events := m.reg.Subscribe()

	d, _, inviteTx := place(t, m)
	inviteTx.responses <- inviteTx.Origin().CreateResponseReason(sip.StatusBusyHere, "Busy Here")
	eventuallyState(t, d, StateTerminated)

	var states []string
	deadline := time.After(time.Second)
	for len(states) < 2 {
		select {
		case event := <-events:
			require.Equal(t, d.CallID(), event.Handle)
			assert.Equal(t, "sip:alice@127.0.0.1", event.From)
			states = append(states, event.State)
		case <-deadline:
			t.Fatalf("only received %v", states)
		}
	}

	assert.Equal(t, StateTrying.String(), states[0])
	assert.Contains(t, states, StateTerminated.String())

	last := states[len(states)-1]
	assert.Equal(t, StateTerminated.String(), last)
}
