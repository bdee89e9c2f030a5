package sip

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawInvite(body string) []byte {
	lines := []string{
		"INVITE sip:bob@127.0.0.1:5060 SIP/2.0",
		"Via: SIP/2.0/UDP 127.0.0.1:5070;branch=z9hG4bKnashds8",
		"From: \"alice\" <sip:alice@127.0.0.1>;tag=a48s",
		"To: <sip:bob@127.0.0.1>",
		"Call-ID: f81d4fae@127.0.0.1",
		"CSeq: 1 INVITE",
		"Max-Forwards: 70",
		"Content-Type: application/sdp",
		fmt.Sprintf("Content-Length: %d", len(body)),
		"",
		body,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseRequest(t *testing.T) {
	body := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n"

	msg, err := ParseMessage(rawInvite(body))
	require.NoError(t, err)

	req, ok := msg.(Request)
	require.True(t, ok)

	assert.Equal(t, INVITE, req.Method())
	assert.Equal(t, "SIP/2.0", req.SipVersion())
	assert.Equal(t, body, req.Body())

	callID, ok := req.CallID()
	require.True(t, ok)
	assert.Equal(t, "f81d4fae@127.0.0.1", string(*callID))

	cseq, ok := req.CSeq()
	require.True(t, ok)
	assert.Equal(t, uint32(1), cseq.SeqNo)
	assert.Equal(t, INVITE, cseq.MethodName)

	from, ok := req.From()
	require.True(t, ok)
	tag, ok := from.Params.Get("tag")
	require.True(t, ok)
	assert.Equal(t, "a48s", tag.String())

	viaHop, ok := req.ViaHop()
	require.True(t, ok)
	assert.Equal(t, "UDP", viaHop.Transport)
	branch, ok := viaHop.Params.Get("branch")
	require.True(t, ok)
	assert.Equal(t, "z9hG4bKnashds8", branch.String())
}

// 序列化再解析后关键字段语义不变
func TestParseRequestRoundTrip(t *testing.T) {
	body := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n"

	first, err := ParseMessage(rawInvite(body))
	require.NoError(t, err)

	second, err := ParseMessage([]byte(first.String()))
	require.NoError(t, err)

	req1 := first.(Request)
	req2 := second.(Request)

	assert.Equal(t, req1.Method(), req2.Method())
	assert.True(t, req1.Recipient().Equals(req2.Recipient()))
	assert.Equal(t, req1.Body(), req2.Body())

	callID1, _ := req1.CallID()
	callID2, _ := req2.CallID()
	assert.Equal(t, *callID1, *callID2)

	cseq1, _ := req1.CSeq()
	cseq2, _ := req2.CSeq()
	assert.Equal(t, cseq1.SeqNo, cseq2.SeqNo)
	assert.Equal(t, cseq1.MethodName, cseq2.MethodName)

	via1, _ := req1.ViaHop()
	via2, _ := req2.ViaHop()
	branch1, _ := via1.Params.Get("branch")
	branch2, _ := via2.Params.Get("branch")
	assert.Equal(t, branch1.String(), branch2.String())
}

func TestParseResponse(t *testing.T) {
	raw := strings.Join([]string{
		"SIP/2.0 180 Ringing",
		"Via: SIP/2.0/UDP 127.0.0.1:5070;branch=z9hG4bKnashds8",
		"From: <sip:alice@127.0.0.1>;tag=a48s",
		"To: <sip:bob@127.0.0.1>;tag=8321234356",
		"Call-ID: f81d4fae@127.0.0.1",
		"CSeq: 1 INVITE",
		"Content-Length: 0",
		"",
		"",
	}, "\r\n")

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	res, ok := msg.(Response)
	require.True(t, ok)
	assert.Equal(t, StatusRinging, res.StatusCode())
	assert.Equal(t, "Ringing", res.Reason())
	assert.True(t, res.IsProvisional())
	assert.False(t, res.IsSuccess())
}

func TestParseMessageUnterminatedHeaderBlock(t *testing.T) {
	_, err := ParseMessage([]byte("INVITE sip:bob@127.0.0.1 SIP/2.0\r\nCSeq: 1 INVITE\r\n"))
	assert.Error(t, err)
}

func TestParseMessageInvalidStartLine(t *testing.T) {
	_, err := ParseMessage([]byte("not a sip message\r\n\r\n"))
	assert.Error(t, err)
}

func TestParseUri(t *testing.T) {
	uri, err := ParseUri("sip:alice@example.com:5070")
	require.NoError(t, err)

	user, ok := uri.User().(String)
	require.True(t, ok)
	assert.Equal(t, "alice", user.String())
	assert.Equal(t, "example.com", uri.Domain().Host)
	require.NotNil(t, uri.Domain().Port)
	assert.Equal(t, Port(5070), *uri.Domain().Port)
	assert.False(t, uri.IsEncrypted())
}

func TestParseUriNoPort(t *testing.T) {
	uri, err := ParseUri("sip:bob@10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", uri.Domain().Host)
	assert.Nil(t, uri.Domain().Port)
}

// RFC 3261 8.1.1 必需头部缺失时消息应被拒绝
func TestValidateMessageMissingHeaders(t *testing.T) {
	full := []string{
		"Via: SIP/2.0/UDP 127.0.0.1:5070;branch=z9hG4bKnashds8",
		"From: <sip:alice@127.0.0.1>;tag=a48s",
		"To: <sip:bob@127.0.0.1>",
		"Call-ID: f81d4fae@127.0.0.1",
		"CSeq: 1 INVITE",
	}

	for _, missing := range []string{"Via", "From", "To", "Call-ID", "CSeq"} {
		missing := missing
		t.Run("missing "+missing, func(t *testing.T) {
			lines := []string{"INVITE sip:bob@127.0.0.1 SIP/2.0"}
			for _, header := range full {
				if !strings.HasPrefix(header, missing+":") {
					lines = append(lines, header)
				}
			}
			lines = append(lines, "Content-Length: 0", "", "")

			msg, err := ParseMessage([]byte(strings.Join(lines, "\r\n")))
			require.NoError(t, err)
			assert.Error(t, ValidateMessage(msg))
		})
	}
}

func TestValidateMessageMissingBranch(t *testing.T) {
	raw := strings.Join([]string{
		"INVITE sip:bob@127.0.0.1 SIP/2.0",
		"Via: SIP/2.0/UDP 127.0.0.1:5070",
		"From: <sip:alice@127.0.0.1>;tag=a48s",
		"To: <sip:bob@127.0.0.1>",
		"Call-ID: f81d4fae@127.0.0.1",
		"CSeq: 1 INVITE",
		"Content-Length: 0",
		"",
		"",
	}, "\r\n")

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Error(t, ValidateMessage(msg))
}

// 声明的 Content-Length 与实际消息体不一致
func TestValidateMessageContentLengthMismatch(t *testing.T) {
	body := "v=0\r\n"
	raw := strings.Join([]string{
		"INVITE sip:bob@127.0.0.1 SIP/2.0",
		"Via: SIP/2.0/UDP 127.0.0.1:5070;branch=z9hG4bKnashds8",
		"From: <sip:alice@127.0.0.1>;tag=a48s",
		"To: <sip:bob@127.0.0.1>",
		"Call-ID: f81d4fae@127.0.0.1",
		"CSeq: 1 INVITE",
		fmt.Sprintf("Content-Length: %d", len(body)+10),
		"",
		body,
	}, "\r\n")

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Error(t, ValidateMessage(msg))

	valid, err := ParseMessage(rawInvite(body))
	require.NoError(t, err)
	assert.NoError(t, ValidateMessage(valid))
}

func TestValidateMessageValid(t *testing.T) {
	msg, err := ParseMessage(rawInvite(""))
	require.NoError(t, err)
	assert.NoError(t, ValidateMessage(msg))
}
