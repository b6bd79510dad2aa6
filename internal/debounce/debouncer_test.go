package debounce

import (
	"sync"
	"testing"
	"time"
)

func TestDebounceCoalescesBurst(t *testing.T) {
	sched := NewManualScheduler()
	d := New(sched)

	var sent []string
	for _, text := range []string{"a", "ab", "abc"} {
		text := text
		d.Do("q1:text", 600*time.Millisecond, func() { sent = append(sent, text) })
		sched.Advance(100 * time.Millisecond)
	}
	if len(sent) != 0 {
		t.Fatalf("nothing should fire inside the window, got %v", sent)
	}

	sched.Advance(600 * time.Millisecond)
	if len(sent) != 1 || sent[0] != "abc" {
		t.Fatalf("expected exactly one call with abc, got %v", sent)
	}
	if d.Cancel("q1:text") {
		t.Fatalf("key should not be pending after firing")
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	sched := NewManualScheduler()
	d := New(sched)

	fired := map[string]int{}
	d.Do("a", time.Second, func() { fired["a"]++ })
	d.Do("b", 2*time.Second, func() { fired["b"]++ })

	sched.Advance(time.Second)
	if fired["a"] != 1 || fired["b"] != 0 {
		t.Fatalf("unexpected fires after 1s: %v", fired)
	}
	sched.Advance(time.Second)
	if fired["b"] != 1 {
		t.Fatalf("expected b to fire after 2s: %v", fired)
	}
}

func TestDebounceCancelAndFlush(t *testing.T) {
	sched := NewManualScheduler()
	d := New(sched)

	var got []string
	d.Do("q1:opt:a", time.Second, func() { got = append(got, "a") })
	d.Do("q1:opt:b", time.Second, func() { got = append(got, "b") })
	d.Do("q2:text", time.Second, func() { got = append(got, "q2") })

	if n := d.CancelPrefix("q1:"); n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	d.Flush()
	if len(got) != 1 || got[0] != "q2" {
		t.Fatalf("expected only q2 flushed, got %v", got)
	}
	if sched.Pending() != 0 {
		t.Fatalf("flush should stop underlying timers, %d left", sched.Pending())
	}

	sched.Advance(time.Hour)
	if len(got) != 1 {
		t.Fatalf("nothing should fire after flush, got %v", got)
	}
}

func TestDebounceRealScheduler(t *testing.T) {
	d := New(nil)
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		d.Do("k", 20*time.Millisecond, func() {
			mu.Lock()
			calls++
			mu.Unlock()
			close(done)
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced call never fired")
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}
