// Package queue holds jobs that are not yet due in a timing wheel.
//
// The wheel is a ring of slots, each covering one tick. Scheduling a job puts
// it ceil(delay/slot) slots ahead of the pointer; delays longer than one
// revolution carry a lap counter so they are not released a lap early.
// A Wheel is not safe for concurrent use; the scheduler serializes access.
package queue

import "time"

type Entry struct {
	JobID    string
	RunAt    time.Time
	Attempts int
	// Rounds is the number of full revolutions left before the entry is due.
	Rounds int
}

type Wheel struct {
	slots   [][]Entry
	slot    time.Duration
	pointer int
	where   map[string]int // job id -> slot index
}

func New(size int, slot time.Duration) *Wheel {
	if size < 1 {
		size = 1
	}
	if slot <= 0 {
		slot = time.Second
	}
	return &Wheel{
		slots: make([][]Entry, size),
		slot:  slot,
		where: make(map[string]int),
	}
}

// Schedule inserts the job into the slot matching runAt and returns the slot
// index. An existing entry for the same job is replaced.
func (w *Wheel) Schedule(jobID string, runAt time.Time, attempts int, now time.Time) int {
	w.Remove(jobID)

	delay := runAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	ticks := int(delay / w.slot)
	if delay%w.slot != 0 {
		ticks++
	}
	// the pointer slot was already drained this tick
	if ticks < 1 {
		ticks = 1
	}

	size := len(w.slots)
	idx := (w.pointer + ticks) % size
	w.slots[idx] = append(w.slots[idx], Entry{
		JobID:    jobID,
		RunAt:    runAt,
		Attempts: attempts,
		Rounds:   (ticks - 1) / size,
	})
	w.where[jobID] = idx
	return idx
}

// Advance moves the pointer one slot and drains the entries in it whose lap
// counter has run out. Entries with laps left stay put with Rounds decremented.
func (w *Wheel) Advance() []Entry {
	w.pointer = (w.pointer + 1) % len(w.slots)
	slot := w.slots[w.pointer]
	if len(slot) == 0 {
		return nil
	}

	var due []Entry
	keep := slot[:0]
	for _, e := range slot {
		if e.Rounds > 0 {
			e.Rounds--
			keep = append(keep, e)
			continue
		}
		delete(w.where, e.JobID)
		due = append(due, e)
	}
	// keep aliases slot; clear the tail so drained entries are not retained
	for i := len(keep); i < len(slot); i++ {
		slot[i] = Entry{}
	}
	w.slots[w.pointer] = keep
	return due
}

// Remove drops the job's entry if it has one.
func (w *Wheel) Remove(jobID string) bool {
	idx, ok := w.where[jobID]
	if !ok {
		return false
	}
	slot := w.slots[idx]
	for i, e := range slot {
		if e.JobID == jobID {
			w.slots[idx] = append(slot[:i], slot[i+1:]...)
			break
		}
	}
	delete(w.where, jobID)
	return true
}

func (w *Wheel) Contains(jobID string) bool {
	_, ok := w.where[jobID]
	return ok
}

func (w *Wheel) Pointer() int { return w.pointer }

func (w *Wheel) Size() int { return len(w.slots) }

// SlotDuration is the span of time one slot covers.
func (w *Wheel) SlotDuration() time.Duration { return w.slot }

// Depth counts entries across all slots.
func (w *Wheel) Depth() int {
	return len(w.where)
}
