package media

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rtpPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
		},
		Payload: []byte{0xFF},
	}
}

func popSeqs(jb *JitterBuffer) []uint16 {
	var seqs []uint16
	for {
		pkt, ok := jb.Pop()
		if !ok {
			return seqs
		}
		seqs = append(seqs, pkt.SequenceNumber)
	}
}

func TestJitterBufferInOrder(t *testing.T) {
	jb := NewJitterBuffer(4)

	for seq := uint16(100); seq < 105; seq++ {
		jb.Push(rtpPacket(seq))
	}

	assert.Equal(t, []uint16{100, 101, 102, 103, 104}, popSeqs(jb))

	stats := jb.Stats()
	assert.Equal(t, uint64(5), stats.Received)
	assert.Equal(t, uint64(5), stats.Delivered)
	assert.Zero(t, stats.Reordered)
	assert.Zero(t, stats.Lost)
}

func TestJitterBufferReorderWithinWindow(t *testing.T) {
	jb := NewJitterBuffer(5)

	for _, seq := range []uint16{10, 12, 11, 14, 13} {
		jb.Push(rtpPacket(seq))
	}

	assert.Equal(t, []uint16{10, 11, 12, 13, 14}, popSeqs(jb))

	stats := jb.Stats()
	assert.Equal(t, uint64(5), stats.Delivered)
	assert.Equal(t, uint64(2), stats.Reordered)
	assert.Zero(t, stats.Lost)
}

// 空洞未补齐且窗口未满时必须等待
func TestJitterBufferWaitsOnGap(t *testing.T) {
	jb := NewJitterBuffer(5)

	jb.Push(rtpPacket(20))
	jb.Push(rtpPacket(22))

	assert.Equal(t, []uint16{20}, popSeqs(jb))
	// 21 缺席, 22 扣住不放
	assert.Equal(t, 1, jb.Len())

	jb.Push(rtpPacket(21))
	assert.Equal(t, []uint16{21, 22}, popSeqs(jb))
}

// 窗口占满后放弃等待, 跳过空洞并计损
func TestJitterBufferSkipsGapWhenFull(t *testing.T) {
	jb := NewJitterBuffer(3)

	jb.Push(rtpPacket(30))
	require.Equal(t, []uint16{30}, popSeqs(jb))

	for _, seq := range []uint16{32, 33, 34} {
		jb.Push(rtpPacket(seq))
	}

	assert.Equal(t, []uint16{32, 33, 34}, popSeqs(jb))
	assert.Equal(t, uint64(1), jb.Stats().Lost)
}

// 晚于水位的包直接丢弃, 计入 Lost 和 Late, 永远不会交付
func TestJitterBufferDropsLatePacket(t *testing.T) {
	jb := NewJitterBuffer(4)

	jb.Push(rtpPacket(50))
	jb.Push(rtpPacket(51))
	require.Equal(t, []uint16{50, 51}, popSeqs(jb))

	jb.Push(rtpPacket(49))

	_, ok := jb.Pop()
	assert.False(t, ok)

	stats := jb.Stats()
	assert.Equal(t, uint64(1), stats.Late)
	assert.Equal(t, uint64(1), stats.Lost)
	assert.Equal(t, uint64(2), stats.Delivered)
}

// 窗口内重复包只交付一次, 不计损也不当作空洞
func TestJitterBufferDropsDuplicateInWindow(t *testing.T) {
	jb := NewJitterBuffer(4)

	jb.Push(rtpPacket(5))
	jb.Push(rtpPacket(5))
	jb.Push(rtpPacket(6))

	assert.Equal(t, []uint16{5, 6}, popSeqs(jb))

	stats := jb.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Duplicate)
	assert.Zero(t, stats.Lost)
}

// 乱序重复: 重复副本与后继包交错到达也不会扣住交付
func TestJitterBufferDuplicateDoesNotStallSuccessors(t *testing.T) {
	jb := NewJitterBuffer(3)

	jb.Push(rtpPacket(8))
	require.Equal(t, []uint16{8}, popSeqs(jb))

	// 已释放序列号的重传副本
	jb.Push(rtpPacket(8))
	jb.Push(rtpPacket(9))
	jb.Push(rtpPacket(10))

	assert.Equal(t, []uint16{9, 10}, popSeqs(jb))

	stats := jb.Stats()
	assert.Equal(t, uint64(3), stats.Delivered)
	// 晚于水位的副本在 Push 即被拦截
	assert.Equal(t, uint64(1), stats.Late)
	assert.Equal(t, uint64(1), stats.Lost)
	assert.Zero(t, stats.Duplicate)
}

func TestJitterBufferSequenceWraparound(t *testing.T) {
	jb := NewJitterBuffer(4)

	for _, seq := range []uint16{65534, 65535, 0, 1} {
		jb.Push(rtpPacket(seq))
	}

	assert.Equal(t, []uint16{65534, 65535, 0, 1}, popSeqs(jb))
	assert.Zero(t, jb.Stats().Lost)
}

func TestJitterBufferFlush(t *testing.T) {
	jb := NewJitterBuffer(10)

	jb.Push(rtpPacket(5))
	jb.Push(rtpPacket(8))
	jb.Push(rtpPacket(6))

	var seqs []uint16
	for _, pkt := range jb.Flush() {
		seqs = append(seqs, pkt.SequenceNumber)
	}

	// 不再等待 7, 按序吐出剩余包
	assert.Equal(t, []uint16{5, 6, 8}, seqs)
	assert.Zero(t, jb.Len())
}

func TestIsSeqNewer(t *testing.T) {
	assert.True(t, isSeqNewer(2, 1))
	assert.False(t, isSeqNewer(1, 2))
	// 回绕
	assert.True(t, isSeqNewer(0, 65535))
	assert.False(t, isSeqNewer(65535, 0))
	assert.Equal(t, uint16(2), seqDiff(1, 65535))
}
