package transaction

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transport"
)

// 测试用传输层: 记录发出的消息, 不真正联网
type mockTransport struct {
	mu       sync.Mutex
	sent     []sip.Message
	reliable bool
	done     chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{done: make(chan struct{})}
}

func (m *mockTransport) Init(opts ...transport.Option)     {}
func (m *mockTransport) IsReliable(network string) bool    { return m.reliable }
func (m *mockTransport) Listen(network, addr string) error { return nil }
func (m *mockTransport) GetMessage() <-chan sip.Message    { return nil }
func (m *mockTransport) Errors() <-chan error              { return nil }
func (m *mockTransport) Close()                            {}
func (m *mockTransport) Done() <-chan struct{}             { return m.done }

func (m *mockTransport) Send(msg sip.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockTransport) sentMessages() []sip.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sip.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// 压缩时间基准, 让重传与超时在毫秒级可观测
func compressedTiming() Timing {
	return Timing{
		T1:      10 * time.Millisecond,
		T2:      40 * time.Millisecond,
		T4:      20 * time.Millisecond,
		Time1xx: 5 * time.Millisecond,
	}
}

func newTestRegister(t *testing.T) sip.Request {
	t.Helper()

	return sip.CreateRequest(
		sip.REGISTER,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:alice@127.0.0.1"),
	)
}

// 无响应时请求按 T1, 2*T1, 4*T1... 重传, 64*T1 后以超时终结
func TestClientTxRetransmitsUntilTimeout(t *testing.T) {
	tpl := newMockTransport()
	timing := compressedTiming()

	tx, err := NewClientTx(newTestRegister(t), tpl, timing)
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	// 64*T1 = 640ms 前应已多次重传
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, tpl.sentCount(), 4)

	select {
	case err := <-tx.Errors():
		timeoutErr, ok := err.(*TxTimeoutError)
		require.Truef(t, ok, "expected TxTimeoutError, got %T", err)
		assert.True(t, timeoutErr.Timeout())
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout error within 2s")
	}

	select {
	case <-tx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transaction not terminated after timeout")
	}
}

// 收到最终响应后停止重传
func TestClientTxFinalResponseStopsRetransmit(t *testing.T) {
	tpl := newMockTransport()
	timing := compressedTiming()

	origin := newTestRegister(t)
	tx, err := NewClientTx(origin, tpl, timing)
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.Receive(origin.CreateResponseReason(sip.StatusOK, "OK")))

	select {
	case res := <-tx.Responses():
		assert.Equal(t, sip.StatusOK, res.StatusCode())
	case <-time.After(time.Second):
		t.Fatal("no response passed up")
	}

	sent := tpl.sentCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, sent, tpl.sentCount())
}

func TestClientTxProvisionalThenFinal(t *testing.T) {
	tpl := newMockTransport()
	timing := compressedTiming()

	origin := newTestInvite(t)
	tx, err := NewClientTx(origin, tpl, timing)
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.Receive(origin.CreateResponseReason(sip.StatusRinging, "Ringing")))

	select {
	case res := <-tx.Responses():
		assert.Equal(t, sip.StatusRinging, res.StatusCode())
	case <-time.After(time.Second):
		t.Fatal("no provisional response passed up")
	}

	require.NoError(t, tx.Receive(origin.CreateResponseReason(sip.StatusBusyHere, "Busy Here")))

	select {
	case res := <-tx.Responses():
		assert.Equal(t, sip.StatusBusyHere, res.StatusCode())
	case <-time.After(time.Second):
		t.Fatal("no final response passed up")
	}

	// INVITE 的非 2xx 终响应由事务层自动 ACK
	assert.Eventually(t, func() bool {
		for _, msg := range tpl.sentMessages() {
			if req, ok := msg.(sip.Request); ok && req.IsAck() {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

// CANCEL 只对进行中的 INVITE 事务有效
func TestClientTxCancel(t *testing.T) {
	tpl := newMockTransport()
	timing := compressedTiming()

	origin := newTestInvite(t)
	tx, err := NewClientTx(origin, tpl, timing)
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	require.NoError(t, tx.Cancel())

	var foundCancel bool
	for _, msg := range tpl.sentMessages() {
		if req, ok := msg.(sip.Request); ok && req.IsCancel() {
			foundCancel = true
			// CANCEL 复用 INVITE 顶部 Via 的 branch - RFC 3261 9.1
			inviteVia, _ := origin.ViaHop()
			cancelVia, ok := req.ViaHop()
			require.True(t, ok)
			inviteBranch, _ := inviteVia.Params.Get("branch")
			cancelBranch, _ := cancelVia.Params.Get("branch")
			assert.Equal(t, inviteBranch.String(), cancelBranch.String())
		}
	}
	assert.True(t, foundCancel)
}

func TestClientTxCancelNonInviteFails(t *testing.T) {
	tpl := newMockTransport()

	tx, err := NewClientTx(newTestRegister(t), tpl, compressedTiming())
	require.NoError(t, err)
	require.NoError(t, tx.Init())

	assert.Error(t, tx.Cancel())
}
