package dialog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/registry"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transaction"
	"github.com/zenghr0820/gvoip/transport"
)

// -------------------------------------------
// 测试替身: 事务层与事务
// -------------------------------------------

// fakeTxLayer 记录发出的请求, 每个请求返回一个可注入响应的客户端事务
type fakeTxLayer struct {
	mu  sync.Mutex
	txs []*fakeClientTx
}

func newFakeTxLayer() *fakeTxLayer {
	return &fakeTxLayer{}
}

func (l *fakeTxLayer) Send(msg sip.Message) (sip.Transaction, error) {
	req, ok := msg.(sip.Request)
	if !ok {
		return nil, fmt.Errorf("fakeTxLayer: unexpected message type %T", msg)
	}

	tx := newFakeClientTx(req)
	l.mu.Lock()
	l.txs = append(l.txs, tx)
	l.mu.Unlock()

	return tx, nil
}

func (l *fakeTxLayer) Transport() transport.Layer              { return nil }
func (l *fakeTxLayer) Requests() <-chan sip.ServerTransaction  { return nil }
func (l *fakeTxLayer) AckRequest() <-chan sip.Request          { return nil }
func (l *fakeTxLayer) Responses() <-chan sip.Response          { return nil }
func (l *fakeTxLayer) Errors() <-chan error                    { return nil }
func (l *fakeTxLayer) Close()                                  {}
func (l *fakeTxLayer) Done() <-chan struct{}                   { return nil }
func (l *fakeTxLayer) String() string                          { return "fakeTxLayer" }

// 最近一次发出的指定方法请求对应的事务
func (l *fakeTxLayer) lastTx(method sip.RequestMethod) *fakeClientTx {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.txs) - 1; i >= 0; i-- {
		if l.txs[i].origin.Method() == method {
			return l.txs[i]
		}
	}
	return nil
}

func (l *fakeTxLayer) sentRequests(method sip.RequestMethod) []sip.Request {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []sip.Request
	for _, tx := range l.txs {
		if tx.origin.Method() == method {
			out = append(out, tx.origin)
		}
	}
	return out
}

type fakeClientTx struct {
	origin    sip.Request
	responses chan sip.Response
	errs      chan error
	done      chan bool
	cancelled int32
}

func newFakeClientTx(origin sip.Request) *fakeClientTx {
	return &fakeClientTx{
		origin:    origin,
		responses: make(chan sip.Response, 4),
		errs:      make(chan error, 4),
		done:      make(chan bool, 1),
	}
}

func (tx *fakeClientTx) Origin() sip.Request            { return tx.origin }
func (tx *fakeClientTx) String() string                 { return "fakeClientTx" }
func (tx *fakeClientTx) Errors() <-chan error           { return tx.errs }
func (tx *fakeClientTx) Done() <-chan bool              { return tx.done }
func (tx *fakeClientTx) Responses() <-chan sip.Response { return tx.responses }

func (tx *fakeClientTx) Cancel() error {
	atomic.StoreInt32(&tx.cancelled, 1)
	return nil
}

func (tx *fakeClientTx) wasCancelled() bool {
	return atomic.LoadInt32(&tx.cancelled) == 1
}

// fakeServerTx 记录发出的响应, ACK/CANCEL 由测试注入
type fakeServerTx struct {
	mu        sync.Mutex
	origin    sip.Request
	responses []sip.Response
	acks      chan sip.Request
	cancels   chan sip.Request
	errs      chan error
	done      chan bool
}

func newFakeServerTx(origin sip.Request) *fakeServerTx {
	return &fakeServerTx{
		origin:  origin,
		acks:    make(chan sip.Request, 4),
		cancels: make(chan sip.Request, 4),
		errs:    make(chan error, 4),
		done:    make(chan bool, 1),
	}
}

func (tx *fakeServerTx) Origin() sip.Request              { return tx.origin }
func (tx *fakeServerTx) String() string                   { return "fakeServerTx" }
func (tx *fakeServerTx) Errors() <-chan error             { return tx.errs }
func (tx *fakeServerTx) Done() <-chan bool                { return tx.done }
func (tx *fakeServerTx) AckRequest() <-chan sip.Request   { return tx.acks }
func (tx *fakeServerTx) CancelRequest() <-chan sip.Request { return tx.cancels }

func (tx *fakeServerTx) SendResponse(res sip.Response) error {
	tx.mu.Lock()
	tx.responses = append(tx.responses, res)
	tx.mu.Unlock()
	return nil
}

func (tx *fakeServerTx) sentResponses() []sip.Response {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	out := make([]sip.Response, len(tx.responses))
	copy(out, tx.responses)
	return out
}

func (tx *fakeServerTx) sentStatus(code sip.StatusCode) bool {
	for _, res := range tx.sentResponses() {
		if res.StatusCode() == code {
			return true
		}
	}
	return false
}

// immediateRejectTxLayer 在 Send 返回前就注入终响应, 模拟极快到达的 486
type immediateRejectTxLayer struct {
	*fakeTxLayer
}

func (l *immediateRejectTxLayer) Send(msg sip.Message) (sip.Transaction, error) {
	tx, err := l.fakeTxLayer.Send(msg)
	if err != nil {
		return nil, err
	}

	if req, ok := msg.(sip.Request); ok && req.IsInvite() {
		tx.(*fakeClientTx).responses <- req.CreateResponseReason(sip.StatusBusyHere, "Busy Here")
	}
	return tx, nil
}

// -------------------------------------------
// 公共辅助
// -------------------------------------------

// 每个测试独占一段 RTP 端口区间, 避免互相抢占
var testPortBase int32 = 40000

func newTestManager(t *testing.T) (*Manager, *fakeTxLayer) {
	t.Helper()

	base := int(atomic.AddInt32(&testPortBase, 10))

	txl := newFakeTxLayer()
	reg := registry.NewRegistry()
	t.Cleanup(reg.Close)

	m := NewManager(txl, reg, media.NewRegistry(),
		WithMediaHost("127.0.0.1"),
		WithPortRange(base, base+9),
		WithJitterWindow(4),
	)

	return m, txl
}

func testUri(t *testing.T, raw string) sip.Uri {
	t.Helper()

	uri, err := sip.ParseUri(raw)
	require.NoError(t, err)
	return uri
}

func place(t *testing.T, m *Manager) (*Dialog, *fakeTxLayer, *fakeClientTx) {
	t.Helper()

	txl := m.txl.(*fakeTxLayer)
	d, err := m.Place(
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
		"127.0.0.1:5060",
	)
	require.NoError(t, err)

	inviteTx := txl.lastTx(sip.INVITE)
	require.NotNil(t, inviteTx)

	return d, txl, inviteTx
}

// 带 SDP answer 的 200, To tag 由 CreateResponseReason 自动补上
func okWithAnswer(t *testing.T, invite sip.Request, payloadTypes []uint8) sip.Response {
	t.Helper()

	res := invite.CreateResponseReason(sip.StatusOK, "OK")
	answer, err := media.BuildDescription("answer", "127.0.0.1", 45678, payloadTypes, media.NewRegistry())
	require.NoError(t, err)

	contentType := sip.ContentType("application/sdp")
	res.AddHeader(&contentType)
	res.SetBody(string(answer), true)

	return res
}

func eventuallyState(t *testing.T, d *Dialog, state State) {
	t.Helper()

	assert.Eventually(t, func() bool {
		return d.State() == state
	}, time.Second, 5*time.Millisecond, "expected state %s, got %s", state, d.State())
}

// -------------------------------------------
// 主叫流程
// -------------------------------------------

func TestPlaceSendsInviteWithOffer(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, inviteTx := place(t, m)

	assert.Equal(t, StateTrying, d.State())
	assert.NotEmpty(t, d.CallID())

	invite := inviteTx.Origin()
	assert.Equal(t, sip.INVITE, invite.Method())
	assert.NotEmpty(t, invite.Body())

	// offer 必须可解析并携带本端偏好
	offer, err := media.ParseDescription([]byte(invite.Body()))
	require.NoError(t, err)
	assert.Equal(t, []uint8{media.PayloadTypePCMU, media.PayloadTypePCMA}, offer.PayloadTypes)
	assert.NotZero(t, offer.Port)

	from, ok := invite.From()
	require.True(t, ok)
	assert.True(t, from.Params.Has("tag"))
}

func TestPlaceTwiceRejected(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, _ := place(t, m)

	err := d.Place(testUri(t, "sip:alice@127.0.0.1"), testUri(t, "sip:bob@127.0.0.1"), "127.0.0.1:5060")
	assert.ErrorIs(t, err, ErrInvalidStateForOperation)
}

func TestPlaceAnswerLifecycle(t *testing.T) {
	m, txl := newTestManager(t)
	d, _, inviteTx := place(t, m)
	invite := inviteTx.Origin()

	// 180 -> Ringing
	inviteTx.responses <- invite.CreateResponseReason(sip.StatusRinging, "Ringing")
	eventuallyState(t, d, StateRinging)

	// 200 + answer -> Connected, 自动 ACK
	inviteTx.responses <- okWithAnswer(t, invite, []uint8{media.PayloadTypePCMU})
	eventuallyState(t, d, StateConnected)

	assert.Eventually(t, func() bool {
		return len(txl.sentRequests(sip.ACK)) == 1
	}, time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, "PCMU", status.Codec)
	assert.Equal(t, media.PayloadTypePCMU, status.PayloadType)
	assert.False(t, status.ConnectedAt.IsZero())
	require.NotNil(t, d.Media())

	// 挂断: BYE 并等待最终应答
	require.NoError(t, d.Hangup())
	assert.Equal(t, StateTerminating, d.State())

	byeTx := txl.lastTx(sip.BYE)
	require.NotNil(t, byeTx)
	bye := byeTx.Origin()

	// 会话内请求: 同 Call-ID, CSeq 递增, 双方 tag 齐全
	byeCallID, ok := bye.CallID()
	require.True(t, ok)
	assert.Equal(t, d.CallID(), string(*byeCallID))

	inviteCSeq, _ := invite.CSeq()
	byeCSeq, ok := bye.CSeq()
	require.True(t, ok)
	assert.Equal(t, inviteCSeq.SeqNo+1, byeCSeq.SeqNo)

	byeTo, ok := bye.To()
	require.True(t, ok)
	assert.True(t, byeTo.Params.Has("tag"))

	byeTx.responses <- bye.CreateResponseReason(sip.StatusOK, "OK")
	eventuallyState(t, d, StateTerminated)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dialog not done after termination")
	}

	status = d.Status()
	assert.Equal(t, "hangup", status.Reason)
	assert.Nil(t, d.Media())

	// 终结后从注册表摘除
	_, found := m.Find(d.CallID())
	assert.False(t, found)
}

func TestPlacePeerRejected(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, inviteTx := place(t, m)

	inviteTx.responses <- inviteTx.Origin().CreateResponseReason(sip.StatusBusyHere, "Busy Here")
	eventuallyState(t, d, StateTerminated)

	status := d.Status()
	rejected, ok := status.Err.(*PeerRejectedError)
	require.Truef(t, ok, "expected PeerRejectedError, got %T", status.Err)
	assert.Equal(t, sip.StatusBusyHere, rejected.Code)
	assert.Contains(t, status.Reason, "486")
}

// 终响应抢在注册完成之前到达, 注册表也不得留下已终结的残留会话
func TestPlaceImmediateRejectLeavesNoRegistryEntry(t *testing.T) {
	base := int(atomic.AddInt32(&testPortBase, 10))

	txl := &immediateRejectTxLayer{newFakeTxLayer()}
	reg := registry.NewRegistry()
	t.Cleanup(reg.Close)

	m := NewManager(txl, reg, media.NewRegistry(),
		WithMediaHost("127.0.0.1"),
		WithPortRange(base, base+9),
		WithJitterWindow(4),
	)

	d, err := m.Place(
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
		"127.0.0.1:5060",
	)
	require.NoError(t, err)

	eventuallyState(t, d, StateTerminated)

	assert.Eventually(t, func() bool {
		_, found := m.Find(d.CallID())
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestPlaceTimeout(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, inviteTx := place(t, m)

	inviteTx.errs <- &transaction.TxTimeoutError{Err: fmt.Errorf("transaction timed out")}
	eventuallyState(t, d, StateTerminated)

	status := d.Status()
	assert.ErrorIs(t, status.Err, ErrTransactionTimeout)
	assert.Equal(t, "timeout", status.Reason)
}

func TestCancelBeforeAnswer(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, inviteTx := place(t, m)
	invite := inviteTx.Origin()

	inviteTx.responses <- invite.CreateResponseReason(sip.StatusRinging, "Ringing")
	eventuallyState(t, d, StateRinging)

	require.NoError(t, d.Cancel())
	assert.Equal(t, StateTerminating, d.State())
	assert.True(t, inviteTx.wasCancelled())

	// 对端以 487 收尾
	inviteTx.responses <- invite.CreateResponseReason(sip.StatusRequestTerminated, "Request Terminated")
	eventuallyState(t, d, StateTerminated)

	status := d.Status()
	assert.Equal(t, "cancelled", status.Reason)
	assert.Nil(t, status.Err)
}

// CANCEL 与 2xx 赛跑且 2xx 先到: ACK 确认后立即 BYE
func TestCancelLosesRaceWithAccept(t *testing.T) {
	m, txl := newTestManager(t)
	d, _, inviteTx := place(t, m)
	invite := inviteTx.Origin()

	require.NoError(t, d.Cancel())
	inviteTx.responses <- okWithAnswer(t, invite, []uint8{media.PayloadTypePCMU})

	eventuallyState(t, d, StateTerminated)

	assert.Len(t, txl.sentRequests(sip.ACK), 1)
	assert.Len(t, txl.sentRequests(sip.BYE), 1)
	assert.Equal(t, "cancelled", d.Status().Reason)
}

// 对端应答的 SDP 与本端无交集: ACK 后 BYE 终结
func TestPlaceAnswerNoCommonMedia(t *testing.T) {
	m, txl := newTestManager(t)
	d, _, inviteTx := place(t, m)

	inviteTx.responses <- okWithAnswer(t, inviteTx.Origin(), []uint8{96})
	eventuallyState(t, d, StateTerminated)

	assert.Len(t, txl.sentRequests(sip.ACK), 1)
	assert.Len(t, txl.sentRequests(sip.BYE), 1)

	status := d.Status()
	assert.ErrorIs(t, status.Err, ErrNoCommonMedia)
	assert.Equal(t, "no common media", status.Reason)
}

func TestHangupRequiresConnected(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, _ := place(t, m)

	assert.ErrorIs(t, d.Hangup(), ErrInvalidStateForOperation)
}

func TestTerminatedOperationsRejected(t *testing.T) {
	m, _ := newTestManager(t)
	d, _, _ := place(t, m)

	d.Terminate("test teardown")
	assert.Equal(t, StateTerminated, d.State())

	assert.ErrorIs(t, d.Cancel(), ErrAlreadyTerminated)
	assert.ErrorIs(t, d.Hangup(), ErrAlreadyTerminated)
	err := d.Place(testUri(t, "sip:alice@127.0.0.1"), testUri(t, "sip:bob@127.0.0.1"), "127.0.0.1:5060")
	assert.ErrorIs(t, err, ErrAlreadyTerminated)

	// 重复终结幂等
	d.Terminate("again")
}
