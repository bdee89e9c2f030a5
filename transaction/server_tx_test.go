package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/sip"
)

// 构造与 INVITE 同事务的 ACK(非 2xx 场景, 复用顶部 Via 的 branch)
func newAckFor(t *testing.T, invite sip.Request) sip.Request {
	t.Helper()

	ack := sip.CreateSimpleRequest(sip.ACK, "127.0.0.1:5060")
	if viaHop, ok := invite.ViaHop(); ok {
		ack.AddHeader(sip.ViaHeader{viaHop.Copy()})
	}
	sip.CopyHeaders("From", invite, ack)
	sip.CopyHeaders("To", invite, ack)
	sip.CopyHeaders("Call-ID", invite, ack)
	if cseq, ok := invite.CSeq(); ok {
		ack.AddHeader(&sip.CSeq{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}

	return ack
}

func lastResponse(tpl *mockTransport) sip.Response {
	msgs := tpl.sentMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if res, ok := msgs[i].(sip.Response); ok {
			return res
		}
	}
	return nil
}

// TU 不及时应答时, INVITE 事务在 Time1xx 后自动发 100 Trying
func TestServerTxAutoTrying(t *testing.T) {
	tpl := newMockTransport()

	tx, err := NewServerTx(newTestInvite(t), tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())
	defer tx.Close()

	assert.Eventually(t, func() bool {
		res := lastResponse(tpl)
		return res != nil && res.StatusCode() == sip.StatusTrying
	}, time.Second, 5*time.Millisecond)
}

// TU 及时应答则不再自动发 100
func TestServerTxUserResponseSuppressesAutoTrying(t *testing.T) {
	tpl := newMockTransport()

	invite := newTestInvite(t)
	tx, err := NewServerTx(invite, tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())
	defer tx.Close()

	require.NoError(t, tx.SendResponse(invite.CreateResponseReason(sip.StatusRinging, "Ringing")))

	time.Sleep(50 * time.Millisecond)
	for _, msg := range tpl.sentMessages() {
		if res, ok := msg.(sip.Response); ok {
			assert.NotEqual(t, sip.StatusTrying, res.StatusCode())
		}
	}
}

// 非 2xx 终响应重传至收到 ACK, ACK 交给 TU
func TestServerTxFinalResponseUntilAck(t *testing.T) {
	tpl := newMockTransport()

	invite := newTestInvite(t)
	tx, err := NewServerTx(invite, tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.SendResponse(invite.CreateResponseReason(sip.StatusBusyHere, "Busy Here")))

	// timerG 按 T1 起步重传终响应
	assert.Eventually(t, func() bool {
		var count int
		for _, msg := range tpl.sentMessages() {
			if res, ok := msg.(sip.Response); ok && res.StatusCode() == sip.StatusBusyHere {
				count++
			}
		}
		return count >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tx.Receive(newAckFor(t, invite)))

	select {
	case ack := <-tx.AckRequest():
		assert.True(t, ack.IsAck())
	case <-time.After(time.Second):
		t.Fatal("ACK not passed up")
	}

	// timerI 之后事务终结
	select {
	case <-tx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transaction not terminated after ACK")
	}
}

// 无 ACK 时 timerH 超时并上报
func TestServerTxTimeoutWithoutAck(t *testing.T) {
	tpl := newMockTransport()

	invite := newTestInvite(t)
	tx, err := NewServerTx(invite, tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.SendResponse(invite.CreateResponseReason(sip.StatusBusyHere, "Busy Here")))

	select {
	case err := <-tx.Errors():
		_, ok := err.(*TxTimeoutError)
		assert.Truef(t, ok, "expected TxTimeoutError, got %T", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout error within 2s")
	}
}

// CANCEL 命中 INVITE 事务: 事务层代答 200, CANCEL 交给 TU
func TestServerTxCancelPassedUp(t *testing.T) {
	tpl := newMockTransport()

	invite := newTestInvite(t)
	tx, err := NewServerTx(invite, tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())
	defer tx.Close()

	require.NoError(t, tx.Receive(sip.CreateCancel(invite)))

	select {
	case cancel := <-tx.CancelRequest():
		assert.True(t, cancel.IsCancel())
	case <-time.After(time.Second):
		t.Fatal("CANCEL not passed up")
	}

	assert.Eventually(t, func() bool {
		for _, msg := range tpl.sentMessages() {
			res, ok := msg.(sip.Response)
			if !ok || res.StatusCode() != sip.StatusOK {
				continue
			}
			if cseq, ok := res.CSeq(); ok && cseq.MethodName == sip.CANCEL {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// 2xx 终响应由 TU 负责重传, 事务立即终结
func TestServerTxTerminatesOnSuccessFinal(t *testing.T) {
	tpl := newMockTransport()

	invite := newTestInvite(t)
	tx, err := NewServerTx(invite, tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.SendResponse(invite.CreateResponseReason(sip.StatusOK, "OK")))

	select {
	case <-tx.Done():
	case <-time.After(time.Second):
		t.Fatal("transaction not terminated after 2xx")
	}
}
