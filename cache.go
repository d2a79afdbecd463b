// cache.go - write-back, per-model/per-id field cache with dirty and
// recompute-pending tracking, plus snapshot/restore for savepoints.
package erp

import "sync"

// DirtyPolicy controls whether Insert marks a changed field dirty.
type DirtyPolicy uint8

const (
	UpdateDirty DirtyPolicy = iota
	NotUpdateDirty
)

// UpdatePolicy controls whether Insert overwrites an already-present key.
type UpdatePolicy uint8

const (
	UpdateIfExists UpdatePolicy = iota
	NotUpdateIfExists
)

// ComputePolicy controls whether Insert clears a pending-recompute mark.
type ComputePolicy uint8

const (
	ResetCompute ComputePolicy = iota
	KeepCompute
)

// row is one record's known fields. A missing key means "unknown, must be
// loaded or computed"; a present key whose value is nil means "known to be
// absent" (distinct from unknown).
type row struct {
	fields map[string]*FieldValue
}

func newRow() *row { return &row{fields: map[string]*FieldValue{}} }

type modelCache struct {
	rows        map[Id]*row
	dirty       map[Id]map[string]struct{}
	toRecompute map[string]map[Id]struct{}
}

func newModelCache() *modelCache {
	return &modelCache{
		rows:        map[Id]*row{},
		dirty:       map[Id]map[string]struct{}{},
		toRecompute: map[string]map[Id]struct{}{},
	}
}

func (mc *modelCache) clone() *modelCache {
	cp := newModelCache()
	for id, r := range mc.rows {
		nr := newRow()
		for f, v := range r.fields {
			if v == nil {
				nr.fields[f] = nil
				continue
			}
			vv := *v
			nr.fields[f] = &vv
		}
		cp.rows[id] = nr
	}
	for id, set := range mc.dirty {
		ns := make(map[string]struct{}, len(set))
		for f := range set {
			ns[f] = struct{}{}
		}
		cp.dirty[id] = ns
	}
	for field, set := range mc.toRecompute {
		ns := make(map[Id]struct{}, len(set))
		for id := range set {
			ns[id] = struct{}{}
		}
		cp.toRecompute[field] = ns
	}
	return cp
}

// Cache is the per-environment record cache: rows, dirty bits and
// recompute-pending marks, keyed first by model name.
type Cache struct {
	mu     sync.Mutex
	models map[string]*modelCache
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{models: map[string]*modelCache{}}
}

func (c *Cache) modelFor(model string) *modelCache {
	mc, ok := c.models[model]
	if !ok {
		mc = newModelCache()
		c.models[model] = mc
	}
	return mc
}

// IsPresent reports whether a row exists in cache for (model, id), regardless
// of which of its fields are known.
func (c *Cache) IsPresent(model string, id Id) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return false
	}
	_, ok = mc.rows[id]
	return ok
}

// Get returns (value, true) iff the field key is present and its value is
// not None. Callers that must distinguish "missing" from "present-None"
// should use Contains.
func (c *Cache) Get(model string, id Id, field string) (FieldValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return FieldValue{}, false
	}
	r, ok := mc.rows[id]
	if !ok {
		return FieldValue{}, false
	}
	v, ok := r.fields[field]
	if !ok || v == nil {
		return FieldValue{}, false
	}
	return *v, true
}

// Contains reports whether the field key is present at all (value may still
// be None).
func (c *Cache) Contains(model string, id Id, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return false
	}
	r, ok := mc.rows[id]
	if !ok {
		return false
	}
	_, ok = r.fields[field]
	return ok
}

func valuesEqual(a, b *FieldValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Insert writes value (nil meaning None) for (model, id, field) under the
// given policies, returning whether the stored value changed.
func (c *Cache) Insert(model string, id Id, field string, value *FieldValue, dp DirtyPolicy, up UpdatePolicy, cp ComputePolicy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	mc := c.modelFor(model)
	r, existed := mc.rows[id]
	if !existed {
		r = newRow()
		mc.rows[id] = r
	}

	prior, keyExisted := r.fields[field]
	if keyExisted && up == NotUpdateIfExists {
		return false
	}

	changed := !keyExisted || !valuesEqual(prior, value)
	r.fields[field] = value

	if changed && dp == UpdateDirty {
		d, ok := mc.dirty[id]
		if !ok {
			d = map[string]struct{}{}
			mc.dirty[id] = d
		}
		d[field] = struct{}{}
	}

	if cp == ResetCompute {
		if ids, ok := mc.toRecompute[field]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(mc.toRecompute, field)
			}
		}
	}

	return changed
}

// ClearDirty clears every dirty field of every id given, for model.
func (c *Cache) ClearDirty(model string, ids []Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return
	}
	for _, id := range ids {
		delete(mc.dirty, id)
	}
}

// ClearDirtyField clears field's dirty bit for every id given, for model.
func (c *Cache) ClearDirtyField(model, field string, ids []Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return
	}
	for _, id := range ids {
		if d, ok := mc.dirty[id]; ok {
			delete(d, field)
			if len(d) == 0 {
				delete(mc.dirty, id)
			}
		}
	}
}

// DirtyIds returns the ids of model that have at least one dirty field,
// restricted to restrict when non-nil.
func (c *Cache) DirtyIds(model string, restrict []Id) []Id {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return nil
	}
	if restrict == nil {
		out := make([]Id, 0, len(mc.dirty))
		for id := range mc.dirty {
			out = append(out, id)
		}
		return out
	}
	restrictSet := make(map[Id]struct{}, len(restrict))
	for _, id := range restrict {
		restrictSet[id] = struct{}{}
	}
	var out []Id
	for id := range mc.dirty {
		if _, ok := restrictSet[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// DirtyFields returns the dirty field names for (model, id).
func (c *Cache) DirtyFields(model string, id Id) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return nil
	}
	d, ok := mc.dirty[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(d))
	for f := range d {
		out = append(out, f)
	}
	return out
}

// AddToRecompute schedules every (field, id) pair for fields x ids as
// pending recompute, for model.
func (c *Cache) AddToRecompute(model string, fields []string, ids []Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modelFor(model)
	for _, f := range fields {
		set, ok := mc.toRecompute[f]
		if !ok {
			set = map[Id]struct{}{}
			mc.toRecompute[f] = set
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
}

// PendingRecompute returns, without draining, the id set currently scheduled
// to recompute field on model.
func (c *Cache) PendingRecompute(model, field string) []Id {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return nil
	}
	set, ok := mc.toRecompute[field]
	if !ok {
		return nil
	}
	out := make([]Id, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// TakeAnyToRecomputeEntry drains one field's full pending id set from
// model's to-recompute map, with no restriction. Each call that reports ok
// removes at least one pending (field, id) pair.
func (c *Cache) TakeAnyToRecomputeEntry(model string) (string, []Id, bool) {
	return c.takeToRecomputeEntryFiltered(model, nil, nil)
}

// TakeToRecomputeEntryForFields drains one entry among fieldNames only.
func (c *Cache) TakeToRecomputeEntryForFields(model string, fieldNames []string) (string, []Id, bool) {
	return c.takeToRecomputeEntryFiltered(model, fieldNames, nil)
}

// TakeToRecomputeEntryFiltered drains one entry restricted to fieldNames and
// ids, either of which may be nil to mean "no restriction". Used by the
// save_fields/save_records flush grains to drain only the slice of pending
// recompute work relevant to the grain's scope.
func (c *Cache) TakeToRecomputeEntryFiltered(model string, fieldNames []string, ids []Id) (string, []Id, bool) {
	return c.takeToRecomputeEntryFiltered(model, fieldNames, ids)
}

func (c *Cache) takeToRecomputeEntryFiltered(model string, fieldNames []string, idFilter []Id) (string, []Id, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.models[model]
	if !ok {
		return "", nil, false
	}

	var allow map[string]struct{}
	if fieldNames != nil {
		allow = make(map[string]struct{}, len(fieldNames))
		for _, f := range fieldNames {
			allow[f] = struct{}{}
		}
	}
	var idAllow map[Id]struct{}
	if idFilter != nil {
		idAllow = make(map[Id]struct{}, len(idFilter))
		for _, id := range idFilter {
			idAllow[id] = struct{}{}
		}
	}

	for field, set := range mc.toRecompute {
		if allow != nil {
			if _, ok := allow[field]; !ok {
				continue
			}
		}
		var ids []Id
		if idAllow != nil {
			for id := range set {
				if _, ok := idAllow[id]; ok {
					ids = append(ids, id)
					delete(set, id)
				}
			}
		} else {
			for id := range set {
				ids = append(ids, id)
			}
			delete(mc.toRecompute, field)
		}
		if len(set) == 0 {
			delete(mc.toRecompute, field)
		}
		if len(ids) == 0 {
			continue
		}
		return field, ids, true
	}
	return "", nil, false
}

// Snapshot is a deep logical copy of the full cache, taken for savepoints.
type Snapshot struct {
	models map[string]*modelCache
}

// ExportSnapshot deep-copies the whole cache.
func (c *Cache) ExportSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*modelCache, len(c.models))
	for name, mc := range c.models {
		out[name] = mc.clone()
	}
	return &Snapshot{models: out}
}

// ImportSnapshot replaces the cache's contents with a fresh deep copy of s,
// so the live cache never aliases the snapshot's storage and a later export
// of s can still be imported again.
func (c *Cache) ImportSnapshot(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := make(map[string]*modelCache, len(s.models))
	for name, mc := range s.models {
		fresh[name] = mc.clone()
	}
	c.models = fresh
}
