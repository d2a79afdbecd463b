// savepoint.go - nested transactional scope over both cache and store, per
// §4.3.6. Commit and rollback are explicit actions of the scope, never
// destructor-driven, so a successful path can suppress rollback outright.
package erp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Savepoint snapshots the cache, opens a uuid-named store savepoint, then
// runs body. A nil error from body commits the savepoint and discards the
// snapshot; an error or panic restores the snapshot and rolls the store
// savepoint back, propagating the original error, or the store's rollback
// error if that rollback fails (panics are converted to errors, never left
// to unwind past this call).
func (e *Environment) Savepoint(ctx context.Context, body func(*Environment) error) (err error) {
	name := uuid.NewString()
	snapshot := e.cache.ExportSnapshot()

	if err = e.store.Savepoint(ctx, name); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			e.cache.ImportSnapshot(snapshot)
			_ = e.store.Rollback(ctx, name)
			err = fmt.Errorf("erp: savepoint %s: panic: %v", name, r)
		}
	}()

	if bodyErr := body(e); bodyErr != nil {
		e.cache.ImportSnapshot(snapshot)
		if rbErr := e.store.Rollback(ctx, name); rbErr != nil {
			return rbErr
		}
		return bodyErr
	}

	return e.store.Commit(ctx, name)
}
