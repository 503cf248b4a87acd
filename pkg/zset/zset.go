// Package zset defines the ordered-set store contract the indexing engine is
// written against. Commands are plain values so callers can assemble a batch,
// hand it to a Store, and read back one result per command without ever
// touching the underlying client library.
package zset

import (
	"context"
	"time"
)

// Op identifies an ordered-set operation inside a batch.
type Op uint8

const (
	OpAdd Op = iota
	OpIncrBy
	OpRem
	OpRemRangeByRank
	OpInterInto
	OpUnionInto
	OpDel
	OpRangeAsc
	OpRangeDesc
	OpExpire
)

// String returns the operation name used in errors and logs.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpIncrBy:
		return "incrby"
	case OpRem:
		return "rem"
	case OpRemRangeByRank:
		return "remrangebyrank"
	case OpInterInto:
		return "interinto"
	case OpUnionInto:
		return "unioninto"
	case OpDel:
		return "del"
	case OpRangeAsc:
		return "rangeasc"
	case OpRangeDesc:
		return "rangedesc"
	case OpExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// Command is a single ordered-set operation. Which fields are meaningful
// depends on Op; the constructors below set exactly the fields each
// operation reads.
type Command struct {
	Op     Op
	Key    string
	Member string
	Score  float64
	From   int64
	To     int64
	Keys   []string
	TTL    time.Duration
}

// Result carries the outcome of one command. Range operations fill Members
// in rank order; IncrBy fills Score with the member's new score; the other
// mutating operations fill Count with the store's reported count (members
// added, removed, or stored).
type Result struct {
	Members []string
	Score   float64
	Count   int64
}

// Add upserts member with the given score.
func Add(key string, score float64, member string) Command {
	return Command{Op: OpAdd, Key: key, Score: score, Member: member}
}

// IncrBy increments member's score by delta, creating the member at delta
// if absent.
func IncrBy(key string, delta float64, member string) Command {
	return Command{Op: OpIncrBy, Key: key, Score: delta, Member: member}
}

// Rem removes member from the set.
func Rem(key, member string) Command {
	return Command{Op: OpRem, Key: key, Member: member}
}

// RemRangeByRank removes all members whose rank falls in [from, to].
// Negative ranks count from the highest-scored member.
func RemRangeByRank(key string, from, to int64) Command {
	return Command{Op: OpRemRangeByRank, Key: key, From: from, To: to}
}

// InterInto stores the intersection of src into dest, summing scores.
// An empty intersection deletes dest.
func InterInto(dest string, src ...string) Command {
	return Command{Op: OpInterInto, Key: dest, Keys: src}
}

// UnionInto stores the union of src into dest, summing scores.
func UnionInto(dest string, src ...string) Command {
	return Command{Op: OpUnionInto, Key: dest, Keys: src}
}

// Del deletes the whole key.
func Del(key string) Command {
	return Command{Op: OpDel, Key: key}
}

// RangeAsc reads members with ranks in [from, to], lowest score first.
// Negative ranks count from the end; from=0, to=-1 reads the whole set.
func RangeAsc(key string, from, to int64) Command {
	return Command{Op: OpRangeAsc, Key: key, From: from, To: to}
}

// RangeDesc reads members with ranks in [from, to], highest score first.
func RangeDesc(key string, from, to int64) Command {
	return Command{Op: OpRangeDesc, Key: key, From: from, To: to}
}

// Expire sets the key's time to live.
func Expire(key string, ttl time.Duration) Command {
	return Command{Op: OpExpire, Key: key, TTL: ttl}
}

// Store is the ordered-set backend. Batch executes every command in a single
// transaction and returns one Result per command in submission order; if the
// transaction fails no command is applied. The remaining methods are direct,
// non-transactional calls.
type Store interface {
	Batch(ctx context.Context, cmds []Command) ([]Result, error)
	RangeAsc(ctx context.Context, key string, from, to int64) ([]string, error)
	RangeDesc(ctx context.Context, key string, from, to int64) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}
