// memstore.go - in-memory Store, used by tests and by Application.NewTest
// in place of a Postgres-backed one.
package erp

import (
	"context"
	"sync"
)

type memTable struct {
	rows   map[Id]FieldMap
	nextId Id
}

func newMemTable() *memTable {
	return &memTable{rows: map[Id]FieldMap{}, nextId: 1}
}

// memSnapshot is a deep copy of one savepoint's worth of backend state.
type memSnapshot struct {
	tables  map[string]*memTable
	plugins map[string]PluginRecord
}

// MemStore is an in-process Store backed by plain Go maps. Savepoints are a
// stack of full deep-copy snapshots; this trades memory for the simplicity
// appropriate to a test double.
type MemStore struct {
	mu         sync.Mutex
	tables     map[string]*memTable
	plugins    map[string]PluginRecord
	installed  bool
	savepoints []namedSnapshot
}

type namedSnapshot struct {
	name string
	snap memSnapshot
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tables:  map[string]*memTable{},
		plugins: map[string]PluginRecord{},
	}
}

func (s *MemStore) table(model string) *memTable {
	t, ok := s.tables[model]
	if !ok {
		t = newMemTable()
		s.tables[model] = t
	}
	return t
}

// IsInstalled implements Store.
func (s *MemStore) IsInstalled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed, nil
}

// Initialize implements Store. For the in-memory backend this only needs to
// make sure every registered model has a backing table and mark the store
// installed; there is no schema DDL to run.
func (s *MemStore) Initialize(ctx context.Context, registry *Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range registry.ModelNames() {
		s.table(name)
	}
	s.installed = true
	return nil
}

// Browse implements Store.
func (s *MemStore) Browse(ctx context.Context, model string, ids []Id, fields []string) (map[Id]FieldMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(model)
	out := make(map[Id]FieldMap, len(ids))
	for _, id := range ids {
		row, ok := t.rows[id]
		if !ok {
			continue
		}
		out[id] = projectFields(row, fields)
	}
	return out, nil
}

func projectFields(row FieldMap, fields []string) FieldMap {
	if len(fields) == 0 {
		return row.Clone()
	}
	out := make(FieldMap, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Search implements Store, evaluating expr directly against in-memory rows.
// Results are always in ascending id order; orderBy is ignored.
func (s *MemStore) Search(ctx context.Context, model string, expr SearchExpr, orderBy []string, limit, offset int) ([]Id, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(model)

	var matched []Id
	for id, row := range t.rows {
		ok, err := evalSearchExpr(expr, row)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, id)
		}
	}

	sortIds(matched)

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func sortIds(ids []Id) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// evalSearchExpr evaluates a SearchExpr against one record's known fields.
// A field absent from row is treated as not matching any comparison except
// NotEqual/NotIn, mirroring SQL NULL-is-distinct semantics closely enough
// for a test double.
func evalSearchExpr(e SearchExpr, row FieldMap) (bool, error) {
	switch v := e.(type) {
	case Nothing:
		return true, nil
	case And:
		l, err := evalSearchExpr(v.Left, row)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return evalSearchExpr(v.Right, row)
	case Or:
		l, err := evalSearchExpr(v.Left, row)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalSearchExpr(v.Right, row)
	case Tuple:
		return evalTuple(v, row)
	default:
		return false, &InvalidDomainError{}
	}
}

func evalTuple(t Tuple, row FieldMap) (bool, error) {
	val, present := row[t.Left]
	switch t.Op {
	case OpEqual:
		if !present {
			return false, nil
		}
		rhs, ok := t.Right.(FieldValue)
		if !ok {
			return false, &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		return val.Equal(rhs), nil
	case OpNotEqual:
		if !present {
			return true, nil
		}
		rhs, ok := t.Right.(FieldValue)
		if !ok {
			return false, &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		return !val.Equal(rhs), nil
	case OpIn:
		if !present {
			return false, nil
		}
		list, ok := t.Right.([]FieldValue)
		if !ok {
			return false, &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		for _, rhs := range list {
			if val.Equal(rhs) {
				return true, nil
			}
		}
		return false, nil
	case OpNotIn:
		if !present {
			return true, nil
		}
		list, ok := t.Right.([]FieldValue)
		if !ok {
			return false, &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		for _, rhs := range list {
			if val.Equal(rhs) {
				return false, nil
			}
		}
		return true, nil
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if !present {
			return false, nil
		}
		rhs, ok := t.Right.(FieldValue)
		if !ok {
			return false, &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		return compareOrdered(val, rhs, t.Op)
	default:
		return false, &UnknownSearchOperatorError{Op: string(t.Op)}
	}
}

func compareOrdered(a, b FieldValue, op SearchOp) (bool, error) {
	var cmp int
	switch a.Kind() {
	case KindI32:
		av, _ := a.AsI32()
		bv, _ := b.AsI32()
		cmp = compareInt(int64(av), int64(bv))
	case KindU32:
		av, _ := a.AsU32()
		bv, _ := b.AsU32()
		cmp = compareInt(int64(av), int64(bv))
	case KindI64:
		av, _ := a.AsI64()
		bv, _ := b.AsI64()
		cmp = compareInt(av, bv)
	case KindF64:
		av, _ := a.AsF64()
		bv, _ := b.AsF64()
		switch {
		case av < bv:
			cmp = -1
		case av > bv:
			cmp = 1
		}
	case KindString:
		av, _ := a.AsString()
		bv, _ := b.AsString()
		switch {
		case av < bv:
			cmp = -1
		case av > bv:
			cmp = 1
		}
	default:
		return false, &UnknownSearchOperatorError{Op: string(op)}
	}

	switch op {
	case OpGreaterThan:
		return cmp > 0, nil
	case OpGreaterEqual:
		return cmp >= 0, nil
	case OpLessThan:
		return cmp < 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	default:
		return false, &UnknownSearchOperatorError{Op: string(op)}
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Create implements Store.
func (s *MemStore) Create(ctx context.Context, model string, records []FieldMap) ([]Id, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(model)
	ids := make([]Id, 0, len(records))
	for _, rec := range records {
		id := t.nextId
		t.nextId++
		t.rows[id] = rec.Clone()
		ids = append(ids, id)
	}
	return ids, nil
}

// Update implements Store.
func (s *MemStore) Update(ctx context.Context, model string, ids []Id, values FieldMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(model)
	for _, id := range ids {
		row, ok := t.rows[id]
		if !ok {
			return &RecordsNotFoundError{Model: model, Ids: []Id{id}}
		}
		for k, v := range values {
			row[k] = v
		}
		t.rows[id] = row
	}
	return nil
}

// GetInstalledPlugins implements Store.
func (s *MemStore) GetInstalledPlugins(ctx context.Context) ([]PluginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginRecord, 0, len(s.plugins))
	for _, p := range s.plugins {
		out = append(out, p)
	}
	return out, nil
}

// SetInstalledPlugin implements Store.
func (s *MemStore) SetInstalledPlugin(ctx context.Context, rec PluginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins[rec.Name] = rec
	return nil
}

func (s *MemStore) snapshot() memSnapshot {
	tables := make(map[string]*memTable, len(s.tables))
	for name, t := range s.tables {
		nt := newMemTable()
		nt.nextId = t.nextId
		for id, row := range t.rows {
			nt.rows[id] = row.Clone()
		}
		tables[name] = nt
	}
	plugins := make(map[string]PluginRecord, len(s.plugins))
	for k, v := range s.plugins {
		plugins[k] = v
	}
	return memSnapshot{tables: tables, plugins: plugins}
}

// Savepoint implements Store by pushing a deep-copy snapshot onto a stack.
func (s *MemStore) Savepoint(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savepoints = append(s.savepoints, namedSnapshot{name: name, snap: s.snapshot()})
	return nil
}

// Commit implements Store by discarding the named snapshot: its writes
// become part of the enclosing savepoint (or the base state, if outermost).
func (s *MemStore) Commit(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popSavepoint(name, false)
}

// Rollback implements Store by restoring the named snapshot and discarding
// every savepoint nested inside it.
func (s *MemStore) Rollback(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popSavepoint(name, true)
}

func (s *MemStore) popSavepoint(name string, restore bool) error {
	idx := -1
	for i := len(s.savepoints) - 1; i >= 0; i-- {
		if s.savepoints[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &SavepointNotFoundError{Name: name}
	}
	target := s.savepoints[idx]
	s.savepoints = s.savepoints[:idx]
	if restore {
		s.tables = target.snap.tables
		s.plugins = target.snap.plugins
	}
	return nil
}
