// Package debounce delays side effects until a burst of calls for the same key
// goes quiet, running only the last one.
package debounce

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Timer is a cancellable pending call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. *time.Timer satisfies the returned Timer.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on wall-clock time.
var RealScheduler Scheduler = realScheduler{}

// Debouncer keeps at most one pending call per key.
type Debouncer struct {
	sched   Scheduler
	mu      sync.Mutex
	seq     uint64
	pending map[string]*entry
}

type entry struct {
	seq   uint64
	timer Timer
	fn    func()
}

func New(sched Scheduler) *Debouncer {
	if sched == nil {
		sched = RealScheduler
	}
	return &Debouncer{
		sched:   sched,
		pending: make(map[string]*entry),
	}
}

// Do schedules fn under key after delay, replacing any call still pending for key.
func (d *Debouncer) Do(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	e := &entry{seq: d.seq, fn: fn}
	d.pending[key] = e
	e.timer = d.sched.AfterFunc(delay, func() { d.fire(key, e.seq) })
}

func (d *Debouncer) fire(key string, seq uint64) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || e.seq != seq {
		// superseded or cancelled after the timer already started
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	e.fn()
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked(key)
}

// CancelPrefix drops every pending call whose key starts with prefix.
func (d *Debouncer) CancelPrefix(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for key := range d.pending {
		if strings.HasPrefix(key, prefix) && d.cancelLocked(key) {
			n++
		}
	}
	return n
}

func (d *Debouncer) cancelLocked(key string) bool {
	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Flush runs all pending calls now, in key order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key := range d.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fns := make([]func(), 0, len(keys))
	for _, key := range keys {
		e := d.pending[key]
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Stop cancels everything pending.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.pending {
		d.cancelLocked(key)
	}
}
