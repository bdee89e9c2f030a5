package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/sip"
)

func testUri(t *testing.T, raw string) sip.Uri {
	t.Helper()

	uri, err := sip.ParseUri(raw)
	require.NoError(t, err)
	return uri
}

func newTestInvite(t *testing.T) sip.Request {
	t.Helper()

	return sip.CreateRequest(
		sip.INVITE,
		"127.0.0.1:5060",
		testUri(t, "sip:alice@127.0.0.1"),
		testUri(t, "sip:bob@127.0.0.1"),
	)
}

// CANCEL 与其目标 INVITE 必须落在同一个服务端事务上
func TestServerTxKeyMatchesCancelToInvite(t *testing.T) {
	invite := newTestInvite(t)
	cancel := sip.CreateCancel(invite)

	inviteKey, err := MakeServerTxKey(invite)
	require.NoError(t, err)
	cancelKey, err := MakeServerTxKey(cancel)
	require.NoError(t, err)

	assert.Equal(t, inviteKey, cancelKey)
}

func TestServerTxKeyDiffersByBranch(t *testing.T) {
	first := newTestInvite(t)
	second := newTestInvite(t)

	firstKey, err := MakeServerTxKey(first)
	require.NoError(t, err)
	secondKey, err := MakeServerTxKey(second)
	require.NoError(t, err)

	assert.NotEqual(t, firstKey, secondKey)
}

// 响应按 branch + CSeq method 匹配回客户端事务
func TestClientTxKeyMatchesResponse(t *testing.T) {
	invite := newTestInvite(t)

	reqKey, err := MakeClientTxKey(invite)
	require.NoError(t, err)

	res := invite.CreateResponseReason(sip.StatusRinging, "Ringing")
	resKey, err := MakeClientTxKey(res)
	require.NoError(t, err)

	assert.Equal(t, reqKey, resKey)
}

func TestClientTxKeyRequiresMagicCookieBranch(t *testing.T) {
	invite := newTestInvite(t)
	viaHop, ok := invite.ViaHop()
	require.True(t, ok)
	viaHop.Params.Add("branch", sip.String{Str: "1234"})

	_, err := MakeClientTxKey(invite)
	assert.Error(t, err)
}
