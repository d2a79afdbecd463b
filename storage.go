// storage.go - the storage contract the environment drives: any backend
// (in-memory, SQL) that implements Store works identically from its point
// of view.
package erp

import "context"

// FieldMap is a flat set of stored field values for one record, keyed by
// field name. Storage backends read and write records exclusively through
// FieldMap; neither backend ever sees a Go struct tied to a model.
type FieldMap map[string]FieldValue

// Clone returns a shallow copy of m (FieldValue is itself a value type, so
// this is also a deep copy of the map's contents).
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PluginRecord is one row of the bootstrap plugin-state table the plugin
// manager persists across runs.
type PluginRecord struct {
	Name        string
	Description string
	Website     string
	Version     string
	State       string
}

// Store is the contract every storage backend implements. The fields
// argument of Browse is the column set to read; a nil or empty fields means
// "every stored field".
type Store interface {
	// IsInstalled reports whether the backend has already been initialized
	// (for the SQL backend: whether the bootstrap plugin table exists).
	IsInstalled(ctx context.Context) (bool, error)

	// Initialize prepares a fresh backend: creates the schema for every
	// model the registry knows about and the bootstrap plugin table.
	Initialize(ctx context.Context, registry *Registry) error

	// Browse fetches the FieldMap of every id given, restricted to fields.
	// Missing ids are simply absent from the result, not an error.
	Browse(ctx context.Context, model string, ids []Id, fields []string) (map[Id]FieldMap, error)

	// Search returns the ids of model matching expr, in backend-defined
	// order unless orderBy is set.
	Search(ctx context.Context, model string, expr SearchExpr, orderBy []string, limit, offset int) ([]Id, error)

	// Create inserts one new record per FieldMap given and returns the
	// assigned ids in the same order.
	Create(ctx context.Context, model string, records []FieldMap) ([]Id, error)

	// Update writes values into the existing records named by ids. values
	// applies identically to every id.
	Update(ctx context.Context, model string, ids []Id, values FieldMap) error

	// GetInstalledPlugins lists the plugin-state rows persisted by a prior
	// run, for the plugin manager to diff against the requested load set.
	GetInstalledPlugins(ctx context.Context) ([]PluginRecord, error)

	// SetInstalledPlugin upserts one plugin-state row.
	SetInstalledPlugin(ctx context.Context, rec PluginRecord) error

	// Savepoint opens a new nested savepoint and returns its name, to be
	// passed back to Commit or Rollback.
	Savepoint(ctx context.Context, name string) error

	// Commit releases the named savepoint, folding its effects into the
	// enclosing one.
	Commit(ctx context.Context, name string) error

	// Rollback undoes every write made since the named savepoint was
	// opened, without closing the ones enclosing it.
	Rollback(ctx context.Context, name string) error
}

// Sessioner is an optional capability a Store may implement when it wraps a
// stateful connection (the SQL backend's open transaction): Begin opens the
// session a Browse/Search/Create/Update/Savepoint call runs inside, and
// Close commits it (err == nil) or rolls it back (err != nil). A Store with
// no session semantics (MemStore) need not implement this.
type Sessioner interface {
	Begin(ctx context.Context) error
	Close(ctx context.Context, err error) error
}

// BatchFlusher is an optional capability a Store may implement to flush a
// whole group of dirty ids in fewer round trips than one Update per id (the
// SQL backend's CASE-based multi-row UPDATE). The environment falls back to
// one Update call per id against stores that don't implement it.
type BatchFlusher interface {
	FlushDirty(ctx context.Context, cache *Cache, fm *FinalModel, fields []string, ids []Id) error
}
