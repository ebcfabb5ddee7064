// Package timer implements the deadline-sorted timer list driven by the
// manager's poll loop (spec §4.4).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package timer

import "time"

// Func is invoked when a timer fires.
type Func func()

// Timer is one scheduled callback.
type Timer struct {
	Interval time.Duration
	Next     time.Time
	Repeat   bool
	RunNow   bool
	Callback Func

	fired bool // RunNow already honored
	seq   int  // insertion order, stable tie-break on equal deadlines
}

// Wheel holds the live timers in insertion order; Expire sorts the due
// ones by deadline before firing them. Not safe for concurrent use; owned
// by the manager's owner thread.
type Wheel struct {
	timers []*Timer
	seq    int
}

// NewWheel returns an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{}
}

// Add inserts a new timer and returns it. now is the current poll-loop
// clock reading used to compute the first deadline.
func (w *Wheel) Add(now time.Time, interval time.Duration, cb Func, repeat, runNow bool) *Timer {
	t := &Timer{
		Interval: interval,
		Next:     now.Add(interval),
		Repeat:   repeat,
		RunNow:   runNow,
		Callback: cb,
		seq:      w.seq,
	}
	w.seq++
	w.timers = append(w.timers, t)
	return t
}

// Remove deletes a timer from the wheel if present.
func (w *Wheel) Remove(t *Timer) {
	for i, cur := range w.timers {
		if cur == t {
			w.timers = append(w.timers[:i], w.timers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live timers.
func (w *Wheel) Len() int { return len(w.timers) }

// NextDeadline returns the earliest upcoming Next time among live timers,
// and ok=false if the wheel is empty.
func (w *Wheel) NextDeadline() (deadline time.Time, ok bool) {
	for _, t := range w.timers {
		if !ok || t.Next.Before(deadline) {
			deadline = t.Next
			ok = true
		}
	}
	return
}

// Expire fires every timer whose deadline has passed as of now, in
// deadline order with insertion order as a stable tie-break. Repeating
// timers are rescheduled to now+interval; one-shots are removed.
// RunNow timers fire exactly once on first Expire call regardless of
// whether their interval has elapsed yet. Callbacks may add or remove
// timers; additions make with a deadline inside the current tick do not
// fire until the next call to Expire.
func (w *Wheel) Expire(now time.Time) {
	due := make([]*Timer, 0, len(w.timers))
	for _, t := range w.timers {
		if (t.RunNow && !t.fired) || !t.Next.After(now) {
			due = append(due, t)
		}
	}
	sortTimersStable(due)

	for _, t := range due {
		t.fired = true
		t.Callback()
		if t.Repeat {
			t.Next = now.Add(t.Interval)
		} else {
			w.Remove(t)
		}
	}
}

// sortTimersStable sorts by (Next, seq) ascending using insertion sort;
// the expected batch size per tick is tiny so O(n^2) is not a concern.
func sortTimersStable(ts []*Timer) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && less(ts[j], ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func less(a, b *Timer) bool {
	if a.Next.Equal(b.Next) {
		return a.seq < b.seq
	}
	return a.Next.Before(b.Next)
}
