package zsettest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kersley/resound/pkg/zset"
)

func mustBatch(t *testing.T, store *MemStore, cmds ...zset.Command) []zset.Result {
	t.Helper()
	results, err := store.Batch(context.Background(), cmds)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	return results
}

func TestAddAndIncrBy(t *testing.T) {
	store := NewMemStore()

	results := mustBatch(t, store,
		zset.Add("k", 2, "a"),
		zset.Add("k", 3, "a"),
		zset.IncrBy("k", 1.5, "b"),
		zset.IncrBy("k", 1.5, "b"),
	)

	if results[0].Count != 1 {
		t.Errorf("first add count = %d, want 1", results[0].Count)
	}
	if results[1].Count != 0 {
		t.Errorf("re-add count = %d, want 0", results[1].Count)
	}
	if score, _ := store.ScoreOf("k", "a"); score != 3 {
		t.Errorf("re-add score = %v, want 3", score)
	}
	if results[2].Score != 1.5 {
		t.Errorf("first incrby score = %v, want 1.5", results[2].Score)
	}
	if results[3].Score != 3 {
		t.Errorf("second incrby score = %v, want 3", results[3].Score)
	}
}

func TestRangeOrdering(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("k", 2, "delta"),
		zset.Add("k", 1, "bravo"),
		zset.Add("k", 1, "alpha"),
		zset.Add("k", 3, "charlie"),
	)
	ctx := context.Background()

	asc, err := store.RangeAsc(ctx, "k", 0, -1)
	if err != nil {
		t.Fatalf("RangeAsc: %v", err)
	}
	if want := []string{"alpha", "bravo", "delta", "charlie"}; !slices.Equal(asc, want) {
		t.Errorf("asc = %v, want %v (score then member order)", asc, want)
	}

	desc, err := store.RangeDesc(ctx, "k", 0, -1)
	if err != nil {
		t.Fatalf("RangeDesc: %v", err)
	}
	slices.Reverse(asc)
	if !slices.Equal(desc, asc) {
		t.Errorf("desc = %v, want exact reverse of asc", desc)
	}
}

func TestRangeWindows(t *testing.T) {
	store := NewMemStore()
	for i, member := range []string{"a", "b", "c", "d", "e"} {
		mustBatch(t, store, zset.Add("k", float64(i), member))
	}
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to int64
		want     []string
	}{
		{"full", 0, -1, []string{"a", "b", "c", "d", "e"}},
		{"head", 0, 1, []string{"a", "b"}},
		{"middle", 1, 3, []string{"b", "c", "d"}},
		{"tail_negative", -2, -1, []string{"d", "e"}},
		{"to_clamped", 3, 100, []string{"d", "e"}},
		{"from_before_start", -100, 0, []string{"a"}},
		{"inverted", 3, 1, nil},
		{"past_end", 5, 9, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.RangeAsc(ctx, "k", tt.from, tt.to)
			if err != nil {
				t.Fatalf("RangeAsc: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("window [%d,%d] = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}

	t.Run("missing_key", func(t *testing.T) {
		got, err := store.RangeAsc(ctx, "nope", 0, -1)
		if err != nil || got != nil {
			t.Errorf("missing key = %v, %v, want nil, nil", got, err)
		}
	})
}

func TestInterIntoSumsScores(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("x", 1, "shared"),
		zset.Add("x", 5, "only-x"),
		zset.Add("y", 2, "shared"),
	)

	results := mustBatch(t, store, zset.InterInto("dest", "x", "y"))
	if results[0].Count != 1 {
		t.Fatalf("stored count = %d, want 1", results[0].Count)
	}
	if score, ok := store.ScoreOf("dest", "shared"); !ok || score != 3 {
		t.Errorf("shared score = %v, %v, want 3 (summed)", score, ok)
	}
	if _, ok := store.ScoreOf("dest", "only-x"); ok {
		t.Error("member missing from y survived the intersection")
	}
}

func TestEmptyIntersectionDeletesDest(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("x", 1, "a"),
		zset.Add("y", 1, "b"),
		zset.Add("dest", 9, "stale"),
		zset.Expire("dest", time.Minute),
	)

	mustBatch(t, store, zset.InterInto("dest", "x", "y"))

	ok, err := store.Exists(context.Background(), "dest")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("dest still exists after empty intersection")
	}
	if _, ok := store.TTLOf("dest"); ok {
		t.Error("dest TTL survived the deletion")
	}
}

func TestUnionIntoSumsScores(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("x", 1, "shared"),
		zset.Add("x", 5, "only-x"),
		zset.Add("y", 2, "shared"),
		zset.Add("y", 7, "only-y"),
	)

	results := mustBatch(t, store, zset.UnionInto("dest", "x", "y"))
	if results[0].Count != 3 {
		t.Fatalf("stored count = %d, want 3", results[0].Count)
	}
	for member, want := range map[string]float64{"shared": 3, "only-x": 5, "only-y": 7} {
		if score, ok := store.ScoreOf("dest", member); !ok || score != want {
			t.Errorf("%s score = %v, %v, want %v", member, score, ok, want)
		}
	}
}

func TestCombineWithoutSourcesFails(t *testing.T) {
	store := NewMemStore()
	_, err := store.Batch(context.Background(), []zset.Command{
		zset.Add("k", 1, "a"),
		zset.InterInto("dest"),
	})
	if err == nil {
		t.Fatal("expected error for combination with no source keys")
	}
	if !strings.Contains(err.Error(), "command 1") {
		t.Errorf("error %q does not name the failing command", err)
	}
}

func TestExpireOnlyExistingKeys(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store, zset.Add("k", 1, "a"))

	results := mustBatch(t, store,
		zset.Expire("k", time.Minute),
		zset.Expire("missing", time.Minute),
	)
	if results[0].Count != 1 {
		t.Errorf("expire existing count = %d, want 1", results[0].Count)
	}
	if results[1].Count != 0 {
		t.Errorf("expire missing count = %d, want 0", results[1].Count)
	}
	if ttl, ok := store.TTLOf("k"); !ok || ttl != time.Minute {
		t.Errorf("TTL = %v, %v, want 1m", ttl, ok)
	}
	if _, ok := store.TTLOf("missing"); ok {
		t.Error("TTL recorded for a key that does not exist")
	}
}

func TestDelClearsTTL(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("k", 1, "a"),
		zset.Expire("k", time.Minute),
		zset.Del("k"),
	)
	if ok, _ := store.Exists(context.Background(), "k"); ok {
		t.Error("key exists after Del")
	}
	if _, ok := store.TTLOf("k"); ok {
		t.Error("TTL survived Del")
	}
}

func TestRemRangeByRank(t *testing.T) {
	store := NewMemStore()
	for i, member := range []string{"a", "b", "c", "d", "e"} {
		mustBatch(t, store, zset.Add("k", float64(i), member))
	}

	results := mustBatch(t, store, zset.RemRangeByRank("k", 0, 1))
	if results[0].Count != 2 {
		t.Fatalf("removed count = %d, want 2", results[0].Count)
	}
	got, _ := store.RangeAsc(context.Background(), "k", 0, -1)
	if want := []string{"c", "d", "e"}; !slices.Equal(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}

func TestDeleteByPattern(t *testing.T) {
	store := NewMemStore()
	mustBatch(t, store,
		zset.Add("idx:cache:a", 1, "m"),
		zset.Add("idx:cache:b", 1, "m"),
		zset.Add("idx:word:a", 1, "m"),
	)

	deleted, err := store.DeleteByPattern(context.Background(), "idx:cache:*")
	if err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if keys := store.KeysMatching("cache"); len(keys) != 0 {
		t.Errorf("cache keys survived: %v", keys)
	}
	if keys := store.KeysMatching("word"); len(keys) != 1 {
		t.Errorf("non-matching key deleted: %v", keys)
	}
}

func TestSetFail(t *testing.T) {
	store := NewMemStore()
	down := errors.New("store down")
	store.SetFail(down)

	if _, err := store.Batch(context.Background(), []zset.Command{zset.Add("k", 1, "a")}); !errors.Is(err, down) {
		t.Errorf("Batch error = %v, want %v", err, down)
	}
	if _, err := store.RangeAsc(context.Background(), "k", 0, -1); !errors.Is(err, down) {
		t.Errorf("RangeAsc error = %v, want %v", err, down)
	}

	store.SetFail(nil)
	if _, err := store.Batch(context.Background(), []zset.Command{zset.Add("k", 1, "a")}); err != nil {
		t.Errorf("healed store still failing: %v", err)
	}
}
