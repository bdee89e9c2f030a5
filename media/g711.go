package media

import "fmt"

// G.711 µ-law / A-law 压扩实现 - ITU-T G.711
// 两者都是 8000Hz 采样, 20ms 一帧 160 采样

// RFC 3551 - 6 静态负载类型
const (
	PayloadTypePCMU uint8 = 0
	PayloadTypePCMA uint8 = 8
)

const (
	g711ClockRate       = 8000
	g711SamplesPerFrame = 160

	ulawBias = 0x84
	ulawClip = 32635
	alawClip = 32635
)

// 段边界查找表, µ-law 与 A-law 共用段结构
var segmentEnds = [8]int16{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

func segmentOf(sample int16) int {
	for i, end := range segmentEnds {
		if sample <= end {
			return i
		}
	}
	return len(segmentEnds)
}

// NewPCMU 创建 G.711 µ-law 编解码器(负载类型 0)
func NewPCMU() Codec {
	return &g711Codec{
		payloadType: PayloadTypePCMU,
		name:        "PCMU",
		encode:      ulawEncodeSample,
		decode:      ulawDecodeSample,
	}
}

// NewPCMA 创建 G.711 A-law 编解码器(负载类型 8)
func NewPCMA() Codec {
	return &g711Codec{
		payloadType: PayloadTypePCMA,
		name:        "PCMA",
		encode:      alawEncodeSample,
		decode:      alawDecodeSample,
	}
}

type g711Codec struct {
	payloadType uint8
	name        string
	encode      func(int16) byte
	decode      func(byte) int16
}

func (c *g711Codec) PayloadType() uint8      { return c.payloadType }
func (c *g711Codec) Name() string            { return c.name }
func (c *g711Codec) ClockRate() uint32       { return g711ClockRate }
func (c *g711Codec) SamplesPerFrame() uint32 { return g711SamplesPerFrame }

func (c *g711Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("media: empty pcm frame")
	}

	out := make([]byte, len(pcm))
	for i, sample := range pcm {
		out[i] = c.encode(sample)
	}
	return out, nil
}

func (c *g711Codec) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("media: empty %s payload", c.name)
	}

	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = c.decode(b)
	}
	return out, nil
}

// µ-law 压缩 - G.711 表 2a
func ulawEncodeSample(sample int16) byte {
	sign := byte(0)
	if sample < 0 {
		if sample == -32768 {
			sample = -32767
		}
		sample = -sample
		sign = 0x80
	}
	if sample > ulawClip {
		sample = ulawClip
	}
	sample += ulawBias

	seg := segmentOf(sample)
	if seg >= 8 {
		return ^(sign | 0x7F)
	}

	mantissa := byte(sample>>(uint(seg)+3)) & 0x0F
	return ^(sign | byte(seg)<<4 | mantissa)
}

// µ-law 解压
func ulawDecodeSample(ulaw byte) int16 {
	ulaw = ^ulaw

	sign := ulaw & 0x80
	seg := (ulaw >> 4) & 0x07
	mantissa := ulaw & 0x0F

	sample := (int16(mantissa)<<3 + ulawBias) << seg
	sample -= ulawBias

	if sign != 0 {
		return -sample
	}
	return sample
}

// A-law 压缩 - G.711 表 1a, 偶数位翻转
func alawEncodeSample(sample int16) byte {
	sign := byte(0x80)
	if sample < 0 {
		if sample == -32768 {
			sample = -32767
		}
		sample = -sample
		sign = 0
	}
	if sample > alawClip {
		sample = alawClip
	}

	var alaw byte
	if sample >= 256 {
		seg := 1
		for v := sample >> 8; v > 1 && seg < 7; v >>= 1 {
			seg++
		}
		mantissa := byte(sample>>(uint(seg)+3)) & 0x0F
		alaw = byte(seg)<<4 | mantissa
	} else {
		alaw = byte(sample >> 4)
	}

	return (alaw | sign) ^ 0x55
}

// A-law 解压
func alawDecodeSample(alaw byte) int16 {
	alaw ^= 0x55

	sign := alaw & 0x80
	seg := (alaw >> 4) & 0x07
	mantissa := alaw & 0x0F

	var sample int16
	if seg == 0 {
		sample = int16(mantissa)<<4 + 8
	} else {
		sample = (int16(mantissa)<<4 + 0x108) << (seg - 1)
	}

	if sign == 0 {
		return -sample
	}
	return sample
}
