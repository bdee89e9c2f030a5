package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDialog struct {
	callID string
}

func (d *stubDialog) CallID() string { return d.callID }

func TestDialogIndex(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	first := &stubDialog{callID: "call-1"}
	second := &stubDialog{callID: "call-2"}

	reg.PutDialog(first)
	reg.PutDialog(second)

	found, ok := reg.FindDialog("call-1")
	require.True(t, ok)
	assert.Same(t, first, found)

	assert.Len(t, reg.ListActive(), 2)

	reg.RemoveDialog("call-1")
	_, ok = reg.FindDialog("call-1")
	assert.False(t, ok)
	assert.Len(t, reg.ListActive(), 1)
}

func TestDialogOverwriteSameCallID(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	first := &stubDialog{callID: "call-1"}
	second := &stubDialog{callID: "call-1"}

	reg.PutDialog(first)
	reg.PutDialog(second)

	found, ok := reg.FindDialog("call-1")
	require.True(t, ok)
	assert.Same(t, second, found)
	assert.Len(t, reg.ListActive(), 1)
}

func TestContactBindingLifecycle(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	reg.RegisterContact("sip:alice@example.com", "10.0.0.1:5060", time.Minute)
	reg.RegisterContact("sip:alice@example.com", "10.0.0.2:5060", time.Minute)

	alive := reg.ResolveContacts("sip:alice@example.com")
	require.Len(t, alive, 2)

	// ttl <= 0 注销单个地址
	reg.RegisterContact("sip:alice@example.com", "10.0.0.1:5060", 0)
	alive = reg.ResolveContacts("sip:alice@example.com")
	require.Len(t, alive, 1)
	assert.Equal(t, "10.0.0.2:5060", alive[0].Address)
}

func TestContactRefreshExtendsExpiry(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	reg.RegisterContact("sip:bob@example.com", "10.0.0.3:5060", 10*time.Millisecond)
	reg.RegisterContact("sip:bob@example.com", "10.0.0.3:5060", time.Minute)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, reg.ResolveContacts("sip:bob@example.com"), 1)
}

func TestContactExpiry(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	reg.RegisterContact("sip:carol@example.com", "10.0.0.4:5060", time.Minute)

	// 过期的绑定解析不到
	reg.sweep(time.Now().Add(2 * time.Minute))
	assert.Empty(t, reg.ResolveContacts("sip:carol@example.com"))
}

func TestContactJanitorSweeps(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	reg.RegisterContact("sip:dave@example.com", "10.0.0.5:5060", 50*time.Millisecond)
	require.Len(t, reg.ResolveContacts("sip:dave@example.com"), 1)

	assert.Eventually(t, func() bool {
		return len(reg.ResolveContacts("sip:dave@example.com")) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestEventRelay(t *testing.T) {
	reg := NewRegistry()

	events := reg.Subscribe()

	reg.Publish(Event{Handle: "call-1", State: "Trying"})
	reg.Publish(Event{Handle: "call-1", State: "Ringing"})

	first := <-events
	assert.Equal(t, "Trying", first.State)
	second := <-events
	assert.Equal(t, "Ringing", second.State)

	reg.Close()

	_, open := <-events
	assert.False(t, open)
}

// 没有订阅者消费时发布方也不阻塞
func TestEventPublishNeverBlocks(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	_ = reg.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			reg.Publish(Event{Handle: "call-1", State: "Trying"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without consumer")
	}
}
