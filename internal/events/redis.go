package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/SirClappington/wheelsched/internal/domain"
)

// streamAdder is the slice of *redis.Client the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *r.XAddArgs) *r.StringCmd
}

// RedisSink appends events to a capped Redis stream.
type RedisSink struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

func NewRedisSink(rdb streamAdder, stream string, maxLen int64) *RedisSink {
	return &RedisSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return errors.Wrapf(err, "encode event %s", evt.ID)
	}
	err = s.rdb.XAdd(ctx, &r.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":      evt.ID,
			"type":    string(evt.Type),
			"at":      evt.At.UnixMilli(),
			"payload": string(payload),
		},
	}).Err()
	return errors.Wrapf(err, "xadd %s", s.stream)
}
