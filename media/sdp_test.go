package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseDescription(t *testing.T) {
	reg := NewRegistry()

	body, err := BuildDescription("call-123", "192.168.1.10", 10002, []uint8{0, 8}, reg)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "m=audio 10002 RTP/AVP 0 8")
	assert.Contains(t, text, "a=rtpmap:0 PCMU/8000")
	assert.Contains(t, text, "a=rtpmap:8 PCMA/8000")

	desc, err := ParseDescription(body)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", desc.Host)
	assert.Equal(t, 10002, desc.Port)
	assert.Equal(t, []uint8{0, 8}, desc.PayloadTypes)
}

func TestParseDescriptionMediaLevelConnection(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 123456 1 IN IP4 10.0.0.1\r\n" +
		"s=call\r\n" +
		"c=IN IP4 10.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 20000 RTP/AVP 8\r\n" +
		"c=IN IP4 10.0.0.2\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n"

	desc, err := ParseDescription([]byte(raw))
	require.NoError(t, err)

	// m-line 级连接信息覆盖会话级
	assert.Equal(t, "10.0.0.2", desc.Host)
	assert.Equal(t, 20000, desc.Port)
	assert.Equal(t, []uint8{8}, desc.PayloadTypes)
}

func TestParseDescriptionNoAudio(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 123456 1 IN IP4 10.0.0.1\r\n" +
		"s=call\r\n" +
		"c=IN IP4 10.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=video 30000 RTP/AVP 96\r\n"

	_, err := ParseDescription([]byte(raw))
	assert.Error(t, err)
}

func TestParseDescriptionMalformed(t *testing.T) {
	_, err := ParseDescription([]byte("not an sdp"))
	assert.Error(t, err)
}
