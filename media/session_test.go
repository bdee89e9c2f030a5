package media

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLoopback(t *testing.T) {
	allocator := NewPortAllocator(43000, 43019)

	sender, err := NewSession("127.0.0.1", NewPCMU(), allocator, 4)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewSession("127.0.0.1", NewPCMU(), allocator, 4)
	require.NoError(t, err)
	defer receiver.Close()

	var mu sync.Mutex
	var frames [][]int16
	receiver.OnFrame(func(pcm []int16) {
		mu.Lock()
		frames = append(frames, pcm)
		mu.Unlock()
	})
	receiver.Start()

	require.NoError(t, sender.SetRemote("127.0.0.1", receiver.LocalPort()))

	pcm := make([]int16, 160)
	for i := range pcm {
		pcm[i] = int16(i * 100)
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, sender.SendFrame(pcm))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	assert.Len(t, frames[0], 160)

	// G.711 量化误差有界
	for i, sample := range frames[0] {
		diff := int(sample) - int(pcm[i])
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 1024)
	}
}

func TestSendFrameRequiresRemote(t *testing.T) {
	s, err := NewSession("127.0.0.1", NewPCMU(), NewPortAllocator(43020, 43029), 4)
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.SendFrame(make([]int16, 160)))
}

func TestSessionCloseIdempotent(t *testing.T) {
	s, err := NewSession("127.0.0.1", NewPCMU(), NewPortAllocator(43030, 43039), 4)
	require.NoError(t, err)
	s.Start()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SendFrame(make([]int16, 160)), ErrSessionClosed)
}

// 端口区间耗尽返回 ErrResourceExhausted, 释放后可复用
func TestPortAllocatorExhaustion(t *testing.T) {
	// 区间内只有一个偶数端口
	allocator := NewPortAllocator(43050, 43051)

	first, err := NewSession("127.0.0.1", NewPCMU(), allocator, 4)
	require.NoError(t, err)
	assert.Equal(t, 43050, first.LocalPort())

	_, err = NewSession("127.0.0.1", NewPCMU(), allocator, 4)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	require.NoError(t, first.Close())

	second, err := NewSession("127.0.0.1", NewPCMU(), allocator, 4)
	require.NoError(t, err)
	assert.Equal(t, 43050, second.LocalPort())
	require.NoError(t, second.Close())
}
