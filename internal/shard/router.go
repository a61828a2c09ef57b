// Package shard maps tenants onto a fixed set of shards.
package shard

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

type Shard struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Hasher turns a tenant id into a stable unsigned value.
type Hasher func(tenantID string) uint64

// SumHasher adds up the character codes of the tenant id.
func SumHasher(tenantID string) uint64 {
	var sum uint64
	for _, r := range tenantID {
		sum += uint64(r)
	}
	return sum
}

// XXHasher spreads tenants with xxhash64 instead of the character sum.
func XXHasher(tenantID string) uint64 {
	return xxhash.Sum64String(tenantID)
}

// HasherByName resolves the SHARD_HASH setting.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "sum":
		return SumHasher, nil
	case "xxhash":
		return XXHasher, nil
	default:
		return nil, fmt.Errorf("unknown shard hash %q", name)
	}
}

// Router is immutable after construction and safe for concurrent use.
type Router struct {
	shards []Shard
	hash   Hasher
}

// New builds count shards named Shard-A, Shard-B, ... A nil hasher means SumHasher.
func New(count int, hash Hasher) *Router {
	if count < 1 {
		count = 1
	}
	if hash == nil {
		hash = SumHasher
	}
	shards := make([]Shard, count)
	for i := range shards {
		shards[i] = Shard{ID: i, Name: "Shard-" + label(i)}
	}
	return &Router{shards: shards, hash: hash}
}

// label yields A..Z, then AA, AB, ...
func label(i int) string {
	s := ""
	for {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
		if i < 0 {
			return s
		}
	}
}

func (r *Router) ShardFor(tenantID string) Shard {
	return r.shards[r.hash(tenantID)%uint64(len(r.shards))]
}

// Shards returns a copy of the shard table.
func (r *Router) Shards() []Shard {
	return append([]Shard(nil), r.shards...)
}

func (r *Router) Count() int { return len(r.shards) }
