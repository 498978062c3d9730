package asyncio

import (
	"sync"
	"testing"
	"time"
)

func TestSubmitDeliversWhenWriteReady(t *testing.T) {
	var mu sync.Mutex
	var sent [][]byte
	w := NewWriter(
		func(b []byte) error {
			mu.Lock()
			sent = append(sent, append([]byte(nil), b...))
			mu.Unlock()
			return nil
		},
		func() (bool, error) { return true, nil },
	)
	w.Start()
	w.Submit([]byte("frame-1"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	w.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || string(sent[0]) != "frame-1" {
		t.Fatalf("sent = %v, want [frame-1]", sent)
	}
}

func TestBackpressureDropsRatherThanQueues(t *testing.T) {
	var mu sync.Mutex
	var sendCount int
	w := NewWriter(
		func(b []byte) error {
			mu.Lock()
			sendCount++
			mu.Unlock()
			return nil
		},
		func() (bool, error) { return false, nil }, // client never ready
	)
	w.Start()
	for i := 0; i < 5; i++ {
		w.Submit([]byte{byte(i)})
	}
	w.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if sendCount != 0 {
		t.Fatalf("sendCount = %d, want 0 (frames should be dropped, not sent late)", sendCount)
	}
}

func TestShutdownStopsConsumer(t *testing.T) {
	w := NewWriter(func(b []byte) error { return nil }, func() (bool, error) { return true, nil })
	w.Start()
	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}
}
