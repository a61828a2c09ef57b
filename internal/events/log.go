// Package events keeps a bounded history of scheduler lifecycle events and
// forwards them to optional external sinks. Scheduling decisions never read it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// Log is a fixed-capacity ring; once full, each append evicts the oldest event.
type Log struct {
	mu    sync.RWMutex
	buf   []domain.Event
	head  int // index of the next write
	count int
}

func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{buf: make([]domain.Event, capacity)}
}

func (l *Log) Append(typ domain.EventType, payload map[string]any, at time.Time) domain.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	evt := domain.Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Payload: payload,
		At:      at,
	}

	l.mu.Lock()
	l.buf[l.head] = evt
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	l.mu.Unlock()
	return evt
}

// List returns up to limit events, newest first. limit <= 0 means all.
func (l *Log) List(limit int) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.head - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
