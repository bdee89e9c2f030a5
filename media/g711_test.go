package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestG711Parameters(t *testing.T) {
	pcmu := NewPCMU()
	assert.Equal(t, uint8(0), pcmu.PayloadType())
	assert.Equal(t, "PCMU", pcmu.Name())
	assert.Equal(t, uint32(8000), pcmu.ClockRate())
	assert.Equal(t, uint32(160), pcmu.SamplesPerFrame())

	pcma := NewPCMA()
	assert.Equal(t, uint8(8), pcma.PayloadType())
	assert.Equal(t, "PCMA", pcma.Name())
	assert.Equal(t, uint32(8000), pcma.ClockRate())
	assert.Equal(t, uint32(160), pcma.SamplesPerFrame())
}

func TestG711EncodeRejectsEmptyFrame(t *testing.T) {
	for _, codec := range []Codec{NewPCMU(), NewPCMA()} {
		_, err := codec.Encode(nil)
		assert.Error(t, err, codec.Name())
		_, err = codec.Decode(nil)
		assert.Error(t, err, codec.Name())
	}
}

// 压扩是有损的, 但误差必须落在对应段的量化步长之内
func TestG711RoundTripError(t *testing.T) {
	samples := []int16{0, 1, -1, 7, -7, 100, -100, 1000, -1000,
		8000, -8000, 16000, -16000, 32000, -32000, 32767, -32768}

	for _, codec := range []Codec{NewPCMU(), NewPCMA()} {
		encoded, err := codec.Encode(samples)
		require.NoError(t, err, codec.Name())
		require.Len(t, encoded, len(samples))

		decoded, err := codec.Decode(encoded)
		require.NoError(t, err, codec.Name())
		require.Len(t, decoded, len(samples))

		for i, in := range samples {
			out := decoded[i]
			// 最粗段步长 1024, 留足余量
			diff := math.Abs(float64(in) - float64(out))
			assert.LessOrEqualf(t, diff, 1024.0,
				"%s: sample %d -> %d", codec.Name(), in, out)

			if in > 256 {
				assert.Positivef(t, out, "%s: sign lost for %d", codec.Name(), in)
			}
			if in < -256 {
				assert.Negativef(t, out, "%s: sign lost for %d", codec.Name(), in)
			}
		}
	}
}

// 解码后再编码必须得到同一个字节, 压扩值是量化的不动点
func TestG711DecodeEncodeStable(t *testing.T) {
	for _, codec := range []Codec{NewPCMU(), NewPCMA()} {
		for b := 0; b < 256; b++ {
			// µ-law 的 0x7F 是负零, 解码为 0 后规范地重编码为 0xFF
			if codec.Name() == "PCMU" && b == 0x7F {
				continue
			}
			decoded, err := codec.Decode([]byte{byte(b)})
			require.NoError(t, err)

			encoded, err := codec.Encode(decoded)
			require.NoError(t, err)
			assert.Equalf(t, byte(b), encoded[0], "%s: byte %#x", codec.Name(), b)
		}
	}
}
