package gvoip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transaction"
)

func TestCreateSipUri(t *testing.T) {
	s := NewService()
	defer func() { _ = s.Close() }()

	uri := s.CreateSipUri("alice:secret", "127.0.0.1:5060")
	sipUri, ok := uri.(*sip.SipUri)
	require.True(t, ok)

	assert.Equal(t, sip.String{Str: "alice"}, sipUri.FUser)
	assert.Equal(t, sip.String{Str: "secret"}, sipUri.FPassword)
	assert.Equal(t, "127.0.0.1", sipUri.FDomain.Host)
	require.NotNil(t, sipUri.FDomain.Port)
	assert.Equal(t, sip.Port(5060), *sipUri.FDomain.Port)

	bare := s.CreateSipUri("bob", "10.0.0.1")
	bareUri := bare.(*sip.SipUri)
	assert.Equal(t, sip.String{Str: "bob"}, bareUri.FUser)
	assert.Nil(t, bareUri.FPassword)
	assert.Nil(t, bareUri.FDomain.Port)
}

func TestServiceWiring(t *testing.T) {
	s := NewService(
		UserAgent("gvoip-test"),
		Timing(transaction.Timing{T1: 100 * time.Millisecond}),
		MediaHost("127.0.0.1"),
		MediaPortRange(42000, 42009),
		JitterWindow(8),
	)

	require.NotNil(t, s.Dialogs())
	require.NotNil(t, s.Registry())
	require.NotNil(t, s.Options().Codecs())

	// 缺省注册表带 G.711 两种编解码
	assert.Equal(t,
		[]uint8{media.PayloadTypePCMU, media.PayloadTypePCMA},
		s.Options().Codecs().PayloadTypes(),
	)

	events := s.Events()
	require.NoError(t, s.Close())

	// 关闭后事件订阅通道随之关闭
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after service close")
	}

	// 关闭后拒绝新的呼叫
	from := s.CreateSipUri("alice", "127.0.0.1:5060")
	to := s.CreateSipUri("bob", "127.0.0.1:5060")
	_, err := s.Place(from, to, "127.0.0.1:5060")
	assert.Error(t, err)
}

func TestServiceCreateRequestFillsDialogHeaders(t *testing.T) {
	s := NewService()
	defer func() { _ = s.Close() }()

	from := s.CreateSipUri("alice", "127.0.0.1:5060")
	to := s.CreateSipUri("bob", "127.0.0.1:5060")
	req := s.CreateRequest(sip.INVITE, "127.0.0.1:5060", from, to)

	assert.Equal(t, sip.INVITE, req.Method())

	_, ok := req.CallID()
	assert.True(t, ok)
	cseq, ok := req.CSeq()
	require.True(t, ok)
	assert.Equal(t, sip.INVITE, cseq.MethodName)

	viaHop, ok := req.ViaHop()
	require.True(t, ok)
	branch, ok := viaHop.Params.Get("branch")
	require.True(t, ok)
	assert.Contains(t, branch.String(), sip.RFC3261BranchMagicCookie)
}
