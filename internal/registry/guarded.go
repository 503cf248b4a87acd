package registry

import (
	"context"
	"errors"

	apperrors "github.com/kersley/resound/pkg/errors"
	"github.com/kersley/resound/pkg/resilience"
)

// Guarded wraps a Registry with a circuit breaker so a dead Postgres cannot
// stall the indexing pipeline. Lookup misses are domain answers, not
// outages, and do not count against the breaker.
type Guarded struct {
	next Registry
	cb   *resilience.CircuitBreaker
}

var _ Registry = (*Guarded)(nil)

// Guard wraps next with cb.
func Guard(next Registry, cb *resilience.CircuitBreaker) *Guarded {
	return &Guarded{next: next, cb: cb}
}

// State reports the breaker's current state.
func (g *Guarded) State() resilience.State {
	return g.cb.GetState()
}

func (g *Guarded) Upsert(ctx context.Context, doc Document) error {
	return g.cb.Execute(func() error {
		return g.next.Upsert(ctx, doc)
	})
}

func (g *Guarded) MarkIndexed(ctx context.Context, id string) error {
	return g.execStatus(func() error {
		return g.next.MarkIndexed(ctx, id)
	})
}

func (g *Guarded) MarkFailed(ctx context.Context, id string, cause string) error {
	return g.execStatus(func() error {
		return g.next.MarkFailed(ctx, id, cause)
	})
}

func (g *Guarded) MarkRemoved(ctx context.Context, id string) error {
	return g.execStatus(func() error {
		return g.next.MarkRemoved(ctx, id)
	})
}

func (g *Guarded) Get(ctx context.Context, id string) (*Document, error) {
	var (
		doc    *Document
		getErr error
	)
	err := g.cb.Execute(func() error {
		doc, getErr = g.next.Get(ctx, id)
		if errors.Is(getErr, apperrors.ErrDocumentNotFound) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return doc, getErr
}

func (g *Guarded) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var counts map[Status]int64
	err := g.cb.Execute(func() error {
		var err error
		counts, err = g.next.CountByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// execStatus runs a status transition, passing unknown-id answers through
// without tripping the breaker.
func (g *Guarded) execStatus(fn func() error) error {
	var opErr error
	err := g.cb.Execute(func() error {
		opErr = fn()
		if errors.Is(opErr, apperrors.ErrDocumentNotFound) {
			return nil
		}
		return opErr
	})
	if err != nil {
		return err
	}
	return opErr
}
