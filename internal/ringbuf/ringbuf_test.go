package ringbuf

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"cryptobot/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4)

	e1 := model.LogEntry{Message: "A", Severity: model.LogInfo}
	e2 := model.LogEntry{Message: "B", Severity: model.LogWarning}

	if !r.Push(e1) {
		t.Fatal("push e1 should succeed")
	}
	if !r.Push(e2) {
		t.Fatal("push e2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Message != "A" {
		t.Fatalf("expected A, got %v ok=%v", got.Message, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Message != "B" {
		t.Fatalf("expected B, got %v ok=%v", got.Message, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.LogEntry{Message: "1"})
	r.Push(model.LogEntry{Message: "2"})

	// Buffer is full
	ok := r.Push(model.LogEntry{Message: "3"})
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Drain(t *testing.T) {
	r := New(8)
	for i := 0; i < 5; i++ {
		r.Push(model.LogEntry{Message: strconv.Itoa(i)})
	}

	out := r.Drain()
	if len(out) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(out))
	}
	for i, e := range out {
		if e.Message != strconv.Itoa(i) {
			t.Fatalf("at index %d: expected %d, got %s", i, i, e.Message)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty ring after drain, len=%d", r.Len())
	}
	if out := r.Drain(); out != nil {
		t.Fatalf("drain of empty ring should return nil, got %v", out)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.LogEntry{At: time.UnixMilli(int64(round*10 + i))}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			e, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if e.At.UnixMilli() != int64(round*10+i) {
				t.Fatalf("round %d pop %d: expected at=%d, got %d", round, i, round*10+i, e.At.UnixMilli())
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.LogEntry{At: time.UnixMilli(int64(i))}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			e, ok := r.Pop()
			if ok {
				received = append(received, e.At.UnixMilli())
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
