package store

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/dbx"
)

type unitKey struct{}

type unit struct {
	after []func()
}

// Unit runs fn as one unit of work: under the account's exclusive lock and
// inside one transaction. A Unit started from a ctx that already carries one
// joins it. Hooks registered with AfterCommit run once the outermost unit
// has committed, and never when it rolls back.
func (s *Store) Unit(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(unitKey{}).(*unit); ok {
		return fn(ctx)
	}

	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	u := &unit{}
	err := dbx.WithTx(context.WithValue(ctx, unitKey{}, u), s.db, nil, func(ctx context.Context, _ dbx.DBTX) error {
		return fn(ctx)
	})
	<-s.lock

	if err != nil {
		return err
	}
	for _, hook := range u.after {
		hook()
	}
	return nil
}

// AfterCommit defers hook until the unit carried by ctx commits. Outside a
// unit the hook runs immediately.
func AfterCommit(ctx context.Context, hook func()) {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok {
		u.after = append(u.after, hook)
		return
	}
	hook()
}

// InUnit reports whether ctx carries a unit of work.
func InUnit(ctx context.Context) bool {
	_, ok := ctx.Value(unitKey{}).(*unit)
	return ok
}
