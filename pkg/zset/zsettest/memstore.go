// Package zsettest provides an in-memory zset.Store for tests. MemStore
// reproduces the ordering and aggregation rules of the real backend:
// ascending ranges sort by score then lexically by member, descending ranges
// are the exact reverse, and combinations sum scores, deleting the
// destination when the result is empty.
package zsettest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kersley/resound/pkg/zset"
)

// MemStore is a zset.Store backed by maps. All methods are safe for
// concurrent use.
type MemStore struct {
	mu   sync.Mutex
	sets map[string]map[string]float64
	ttls map[string]time.Duration
	ops  int
	fail error
}

var _ zset.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		sets: make(map[string]map[string]float64),
		ttls: make(map[string]time.Duration),
	}
}

// SetFail makes every subsequent store call return err. Pass nil to heal.
func (m *MemStore) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

type memberScore struct {
	member string
	score  float64
}

func (m *MemStore) ordered(key string) []memberScore {
	set := m.sets[key]
	out := make([]memberScore, 0, len(set))
	for member, score := range set {
		out = append(out, memberScore{member, score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].member < out[j].member
	})
	return out
}

// window resolves a rank window against a set of n members, mirroring the
// backend's negative-rank and clamping rules.
func window(n int, from, to int64) (int, int, bool) {
	start, end := int(from), int(to)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end += n
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start >= n || start > end {
		return 0, 0, false
	}
	return start, end, true
}

func (m *MemStore) Batch(ctx context.Context, cmds []zset.Command) ([]zset.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return nil, m.fail
	}
	results := make([]zset.Result, len(cmds))
	for i, cmd := range cmds {
		res, err := m.apply(cmd)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}

func (m *MemStore) apply(cmd zset.Command) (zset.Result, error) {
	switch cmd.Op {
	case zset.OpAdd:
		set := m.set(cmd.Key)
		_, existed := set[cmd.Member]
		set[cmd.Member] = cmd.Score
		if existed {
			return zset.Result{}, nil
		}
		return zset.Result{Count: 1}, nil
	case zset.OpIncrBy:
		set := m.set(cmd.Key)
		set[cmd.Member] += cmd.Score
		return zset.Result{Score: set[cmd.Member]}, nil
	case zset.OpRem:
		set := m.sets[cmd.Key]
		if _, ok := set[cmd.Member]; !ok {
			return zset.Result{}, nil
		}
		delete(set, cmd.Member)
		if len(set) == 0 {
			delete(m.sets, cmd.Key)
		}
		return zset.Result{Count: 1}, nil
	case zset.OpRemRangeByRank:
		ordered := m.ordered(cmd.Key)
		start, end, ok := window(len(ordered), cmd.From, cmd.To)
		if !ok {
			return zset.Result{}, nil
		}
		set := m.sets[cmd.Key]
		for _, ms := range ordered[start : end+1] {
			delete(set, ms.member)
		}
		if len(set) == 0 {
			delete(m.sets, cmd.Key)
		}
		return zset.Result{Count: int64(end - start + 1)}, nil
	case zset.OpInterInto:
		if len(cmd.Keys) == 0 {
			return zset.Result{}, fmt.Errorf("interinto %s: no source keys", cmd.Key)
		}
		combined := make(map[string]float64)
		for member, score := range m.sets[cmd.Keys[0]] {
			combined[member] = score
		}
		for _, src := range cmd.Keys[1:] {
			set := m.sets[src]
			for member := range combined {
				if score, ok := set[member]; ok {
					combined[member] += score
				} else {
					delete(combined, member)
				}
			}
		}
		return m.storeCombined(cmd.Key, combined), nil
	case zset.OpUnionInto:
		if len(cmd.Keys) == 0 {
			return zset.Result{}, fmt.Errorf("unioninto %s: no source keys", cmd.Key)
		}
		combined := make(map[string]float64)
		for _, src := range cmd.Keys {
			for member, score := range m.sets[src] {
				combined[member] += score
			}
		}
		return m.storeCombined(cmd.Key, combined), nil
	case zset.OpDel:
		if _, ok := m.sets[cmd.Key]; !ok {
			return zset.Result{}, nil
		}
		delete(m.sets, cmd.Key)
		delete(m.ttls, cmd.Key)
		return zset.Result{Count: 1}, nil
	case zset.OpRangeAsc:
		return zset.Result{Members: m.rangeAsc(cmd.Key, cmd.From, cmd.To)}, nil
	case zset.OpRangeDesc:
		return zset.Result{Members: m.rangeDesc(cmd.Key, cmd.From, cmd.To)}, nil
	case zset.OpExpire:
		if _, ok := m.sets[cmd.Key]; !ok {
			return zset.Result{}, nil
		}
		m.ttls[cmd.Key] = cmd.TTL
		return zset.Result{Count: 1}, nil
	default:
		return zset.Result{}, fmt.Errorf("unsupported op %s", cmd.Op)
	}
}

func (m *MemStore) set(key string) map[string]float64 {
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]float64)
	}
	return m.sets[key]
}

func (m *MemStore) storeCombined(dest string, combined map[string]float64) zset.Result {
	if len(combined) == 0 {
		delete(m.sets, dest)
		delete(m.ttls, dest)
		return zset.Result{}
	}
	m.sets[dest] = combined
	return zset.Result{Count: int64(len(combined))}
}

func (m *MemStore) rangeAsc(key string, from, to int64) []string {
	ordered := m.ordered(key)
	start, end, ok := window(len(ordered), from, to)
	if !ok {
		return nil
	}
	members := make([]string, 0, end-start+1)
	for _, ms := range ordered[start : end+1] {
		members = append(members, ms.member)
	}
	return members
}

func (m *MemStore) rangeDesc(key string, from, to int64) []string {
	ordered := m.ordered(key)
	n := len(ordered)
	start, end, ok := window(n, from, to)
	if !ok {
		return nil
	}
	members := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		members = append(members, ordered[n-1-i].member)
	}
	return members
}

func (m *MemStore) RangeAsc(ctx context.Context, key string, from, to int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return nil, m.fail
	}
	return m.rangeAsc(key, from, to), nil
}

func (m *MemStore) RangeDesc(ctx context.Context, key string, from, to int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return nil, m.fail
	}
	return m.rangeDesc(key, from, to), nil
}

func (m *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return false, m.fail
	}
	_, ok := m.sets[key]
	return ok, nil
}

func (m *MemStore) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return 0, m.fail
	}
	var deleted int64
	for key := range m.sets {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.sets, key)
			delete(m.ttls, key)
			deleted++
		}
	}
	return deleted, nil
}

// KeysMatching returns the store's keys containing the substring, for
// asserting which keys an operation left behind.
func (m *MemStore) KeysMatching(substr string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.sets {
		if strings.Contains(key, substr) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// ScoreOf reports the member's score and whether it exists in the set.
func (m *MemStore) ScoreOf(key, member string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.sets[key][member]
	return score, ok
}

// TTLOf reports the TTL recorded for key by an Expire command, if any.
func (m *MemStore) TTLOf(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.ttls[key]
	return ttl, ok
}

// OpCount returns how many store calls have been made, each Batch counting
// as one.
func (m *MemStore) OpCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}
