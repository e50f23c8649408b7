package broadcast

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(s *Subscriber) []string {
	var out []string
	for {
		select {
		case msg, ok := <-s.Recv():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPublishOrder(t *testing.T) {
	b := New(16)
	a := b.Subscribe()
	c := b.Subscribe()
	for i := 0; i < 10; i++ {
		b.Publish(fmt.Sprintf("msg-%d", i))
	}
	for _, s := range []*Subscriber{a, c} {
		got := drain(s)
		require.Len(t, got, 10)
		for i, msg := range got {
			require.Equal(t, fmt.Sprintf("msg-%d", i), msg)
		}
	}
}

func TestSubscribeSeesOnlyLaterMessages(t *testing.T) {
	b := New(16)
	b.Publish("before")
	s := b.Subscribe()
	b.Publish("after")
	require.Equal(t, []string{"after"}, drain(s))
}

func TestLagDropsOldest(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	for i := 0; i < 10; i++ {
		b.Publish(fmt.Sprintf("msg-%d", i))
	}
	// The slow subscriber lost the oldest six messages and knows it.
	require.Equal(t, uint64(6), s.Lagged())
	require.Equal(t, []string{"msg-6", "msg-7", "msg-8", "msg-9"}, drain(s))
}

func TestPublisherNeverBlocks(t *testing.T) {
	b := New(2)
	_ = b.Subscribe() // never drained
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("x")
		}
		close(done)
	}()
	<-done // deadlocks here (and times out the test) if Publish ever blocks
}

func TestCloseUnsubscribes(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())
	s.Close()
	s.Close() // idempotent
	require.Equal(t, 0, b.Subscribers())
	_, ok := <-s.Recv()
	require.False(t, ok)

	b.Publish("after close") // must not panic
}

func TestBroadcasterClose(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Close()
	_, ok := <-s.Recv()
	require.False(t, ok)
	require.Equal(t, 0, b.Subscribers())
	// Both stay safe after the broadcaster is gone.
	s.Close()
	b.Publish("no-op")
	late := b.Subscribe()
	_, ok = <-late.Recv()
	require.False(t, ok, "post-close subscriber gets a closed channel")
}

func TestConcurrentPublishTotalOrder(t *testing.T) {
	// Concurrent publishers interleave arbitrarily, but all subscribers
	// must observe the same relative order.
	b := New(4096)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(fmt.Sprintf("p%d-%d", p, i))
			}
		}(p)
	}
	wg.Wait()
	require.Equal(t, drain(s1), drain(s2))
}
