package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// Sink receives a copy of every forwarded event.
type Sink interface {
	Name() string
	Write(ctx context.Context, evt domain.Event) error
}

// Forwarder hands events to sinks on its own goroutine so sink latency never
// reaches the tick loop. When the buffer is full new events are dropped.
type Forwarder struct {
	ch      chan domain.Event
	sinks   []Sink
	logger  *zap.Logger
	dropped atomic.Int64
}

func NewForwarder(buffer int, logger *zap.Logger, sinks ...Sink) *Forwarder {
	if buffer < 1 {
		buffer = 1
	}
	return &Forwarder{
		ch:     make(chan domain.Event, buffer),
		sinks:  sinks,
		logger: logger.Named("forwarder"),
	}
}

// Offer enqueues evt without blocking and reports whether it was accepted.
func (f *Forwarder) Offer(evt domain.Event) bool {
	select {
	case f.ch <- evt:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes what is buffered.
func (f *Forwarder) Run(ctx context.Context) error {
	if len(f.sinks) == 0 {
		<-ctx.Done()
		return nil
	}
	f.logger.Info("forwarder started", zap.Int("sinks", len(f.sinks)))
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case evt := <-f.ch:
			f.deliver(ctx, evt)
		}
	}
}

func (f *Forwarder) flush() {
	for {
		select {
		case evt := <-f.ch:
			f.deliver(context.Background(), evt)
		default:
			return
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, evt domain.Event) {
	var err error
	for _, s := range f.sinks {
		if werr := s.Write(ctx, evt); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	if err != nil {
		f.logger.Warn("forward event",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}
