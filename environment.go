// environment.go - the transactional, compute-aware front door: owns a
// Cache, a shared Registry and an exclusive Store, per the teacher's own
// single-pool-owner approach in fsql.go.
package erp

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

// Environment mediates every read and write against cached, plugin-declared
// models. One Environment is owned by one logical request at a time; it is
// not safe for concurrent use from multiple goroutines.
type Environment struct {
	cache    *Cache
	registry *Registry
	store    Store
	log      zerolog.Logger
}

// NewEnvironment wires a fresh cache around registry and store. If store is
// a Sessioner, its session must already be open (see Application.NewEnv).
func NewEnvironment(registry *Registry, store Store, log zerolog.Logger) *Environment {
	return &Environment{
		cache:    NewCache(),
		registry: registry,
		store:    store,
		log:      log,
	}
}

// Close finalizes the environment's session: commits the underlying store's
// transaction when err is nil, rolls it back otherwise. A no-op against a
// store with no session semantics.
func (e *Environment) Close(ctx context.Context, err error) error {
	if s, ok := e.store.(Sessioner); ok {
		return s.Close(ctx, err)
	}
	return nil
}

// Get implements the read path of §4.3.1: partition ids into present,
// to-compute and to-load buckets, resolve each, then re-read from cache.
// An id pending recompute for field is computed even when a value for it is
// already cached. The result has one entry per input id, in order; a nil
// entry means the field is None, or the record was not found in storage.
func (e *Environment) Get(ctx context.Context, model, field string, ids []Id) ([]*FieldValue, error) {
	fm := e.registry.Get(model)
	if _, ok := fm.Fields[field]; !ok {
		panic("erp: unregistered field " + model + "." + field)
	}

	pending := map[Id]struct{}{}
	for _, id := range e.cache.PendingRecompute(model, field) {
		pending[id] = struct{}{}
	}

	var toCompute, toLoad []Id
	for _, id := range ids {
		if _, ok := pending[id]; ok {
			toCompute = append(toCompute, id)
			continue
		}
		if e.cache.Contains(model, id, field) {
			continue
		}
		toLoad = append(toLoad, id)
	}

	if len(toCompute) > 0 {
		if err := e.compute(ctx, model, []string{field}, toCompute); err != nil {
			return nil, err
		}
	}

	if len(toLoad) > 0 {
		ff := fm.Fields[field]
		if ff.Reference != nil && ff.Reference.Kind == RefO2M {
			if err := e.loadO2M(ctx, model, field, ff, toLoad); err != nil {
				return nil, err
			}
		} else {
			stored := fm.StoredFieldNames()
			rows, err := e.store.Browse(ctx, model, toLoad, stored)
			if err != nil {
				return nil, err
			}
			for _, id := range toLoad {
				row := rows[id]
				for _, name := range stored {
					v, ok := row[name]
					if !ok {
						continue
					}
					vv := v
					e.cache.Insert(model, id, name, &vv, NotUpdateDirty, NotUpdateIfExists, ResetCompute)
				}
			}
		}
	}

	out := make([]*FieldValue, len(ids))
	for i, id := range ids {
		if v, ok := e.cache.Get(model, id, field); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out, nil
}

// loadO2M resolves a virtual O2M field for ownerIds by searching its target
// model for every record whose inverse M2O field points at one of them, then
// groups the results back by owner id into the cache.
func (e *Environment) loadO2M(ctx context.Context, model, field string, ff *FinalField, ownerIds []Id) error {
	ref := ff.Reference
	fvs := make([]FieldValue, len(ownerIds))
	for i, id := range ownerIds {
		fvs[i] = U32Value(id)
	}
	expr := NewTuple(ref.InverseField, OpIn, fvs)
	targetIds, err := e.store.Search(ctx, ref.TargetModel, expr, nil, 0, 0)
	if err != nil {
		return err
	}

	grouped := make(map[Id][]Id, len(ownerIds))
	for _, id := range ownerIds {
		grouped[id] = nil
	}
	if len(targetIds) > 0 {
		rows, err := e.store.Browse(ctx, ref.TargetModel, targetIds, []string{ref.InverseField})
		if err != nil {
			return err
		}
		for _, targetId := range targetIds {
			v, ok := rows[targetId][ref.InverseField]
			if !ok {
				continue
			}
			ownerId, ok := v.AsU32()
			if !ok {
				continue
			}
			grouped[ownerId] = append(grouped[ownerId], targetId)
		}
	}

	for _, id := range ownerIds {
		v := IdListValue(grouped[id])
		e.cache.Insert(model, id, field, &v, NotUpdateDirty, NotUpdateIfExists, ResetCompute)
	}
	return nil
}

// SetO2M replaces the full set of field records linked to owner with ids,
// per record-reference replace-all semantics: records in the prior set but
// absent from ids have their inverse M2O field cleared, records newly
// present have it set to owner, and records already linked are left alone.
func (e *Environment) SetO2M(ctx context.Context, model, field string, owner Id, ids []Id) error {
	fm := e.registry.Get(model)
	ff, ok := fm.Fields[field]
	if !ok || ff.Reference == nil || ff.Reference.Kind != RefO2M {
		panic("erp: " + model + "." + field + " is not an O2M field")
	}
	ref := ff.Reference

	current, err := e.Get(ctx, model, field, []Id{owner})
	if err != nil {
		return err
	}
	var before []Id
	if len(current) > 0 && current[0] != nil {
		before, _ = current[0].AsIdList()
	}

	beforeSet := make(map[Id]struct{}, len(before))
	for _, id := range before {
		beforeSet[id] = struct{}{}
	}
	afterSet := make(map[Id]struct{}, len(ids))
	for _, id := range ids {
		afterSet[id] = struct{}{}
	}

	var removed, added []Id
	for _, id := range before {
		if _, ok := afterSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range ids {
		if _, ok := beforeSet[id]; !ok {
			added = append(added, id)
		}
	}

	if len(removed) > 0 {
		if err := e.Set(ctx, ref.TargetModel, ref.InverseField, removed, nil); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		ownerVal := U32Value(owner)
		if err := e.Set(ctx, ref.TargetModel, ref.InverseField, added, &ownerVal); err != nil {
			return err
		}
	}

	v := IdListValue(ids)
	e.cache.Insert(model, owner, field, &v, NotUpdateDirty, UpdateIfExists, ResetCompute)
	return nil
}

// Set implements the write path of §4.3.2: write to cache, then schedule
// same-model and cross-model dependents for recompute.
func (e *Environment) Set(ctx context.Context, model, field string, ids []Id, value *FieldValue) error {
	fm := e.registry.Get(model)
	if _, ok := fm.Fields[field]; !ok {
		panic("erp: unregistered field " + model + "." + field)
	}

	for _, id := range ids {
		e.cache.Insert(model, id, field, value, UpdateDirty, UpdateIfExists, ResetCompute)
	}

	if deps := fm.FieldsDependingOn(field); len(deps) > 0 {
		e.cache.AddToRecompute(model, deps, ids)
	}

	for _, cd := range fm.CrossDependents[field] {
		depIds, err := e.translateCrossDependency(ctx, cd, ids)
		if err != nil {
			return err
		}
		if len(depIds) > 0 {
			e.cache.AddToRecompute(cd.DependentModel, []string{cd.RecomputeField}, depIds)
		}
	}
	return nil
}

// translateCrossDependency finds every id of cd.DependentModel whose
// cd.ViaField (an M2O) points at one of changedIds, so a change to the
// target model's field can invalidate the dependent model's computed field.
func (e *Environment) translateCrossDependency(ctx context.Context, cd CrossDependency, changedIds []Id) ([]Id, error) {
	fvs := make([]FieldValue, len(changedIds))
	for i, id := range changedIds {
		fvs[i] = U32Value(id)
	}
	expr := NewTuple(cd.ViaField, OpIn, fvs)
	return e.store.Search(ctx, cd.DependentModel, expr, nil, 0, 0)
}

// Create implements the create path of §4.3.3: fill missing fields from
// defaults, persist, insert the full row into cache, then schedule every
// stored computed field that was left to its default for recompute.
func (e *Environment) Create(ctx context.Context, model string, fields FieldMap) (Id, error) {
	fm := e.registry.Get(model)

	complete := fields.Clone()
	var missing []string
	for name, ff := range fm.Fields {
		if ff.Reference != nil && ff.Reference.Kind == RefO2M {
			continue
		}
		if _, ok := complete[name]; !ok {
			complete[name] = ff.DefaultValue
			missing = append(missing, name)
		}
	}

	ids, err := e.store.Create(ctx, model, []FieldMap{complete})
	if err != nil {
		return 0, err
	}
	id := ids[0]

	for name, v := range complete {
		vv := v
		e.cache.Insert(model, id, name, &vv, NotUpdateDirty, UpdateIfExists, ResetCompute)
	}

	var stored []string
	for _, name := range missing {
		if ff := fm.Fields[name]; ff.Compute != nil {
			stored = append(stored, name)
		}
	}
	if len(stored) > 0 {
		e.cache.AddToRecompute(model, stored, []Id{id})
	}
	return id, nil
}

// SaveModel drains every pending recompute of model, then flushes every
// dirty row.
func (e *Environment) SaveModel(ctx context.Context, model string) error {
	if err := e.drainRecompute(ctx, model, nil, nil); err != nil {
		return err
	}
	ids := e.cache.DirtyIds(model, nil)
	return e.flushDirty(ctx, model, nil, ids)
}

// SaveFields drains pending recompute entries intersecting fields, then
// flushes dirty rows restricted to those fields.
func (e *Environment) SaveFields(ctx context.Context, model string, fields []string) error {
	if err := e.drainRecompute(ctx, model, fields, nil); err != nil {
		return err
	}
	ids := e.cache.DirtyIds(model, nil)
	return e.flushDirty(ctx, model, fields, ids)
}

// SaveRecords drains pending recompute entries intersecting ids, then
// flushes dirty rows restricted to those ids.
func (e *Environment) SaveRecords(ctx context.Context, model string, ids []Id) error {
	e.log.Debug().Str("model", model).Interface("ids", sortedIds(ids)).Msg("save_records")
	if err := e.drainRecompute(ctx, model, nil, ids); err != nil {
		return err
	}
	dirty := e.cache.DirtyIds(model, ids)
	return e.flushDirty(ctx, model, nil, dirty)
}

// flushDirty pushes ids' dirty fields (restricted to fields when non-nil) to
// store, then clears the dirty bits that were written. It prefers the
// store's BatchFlusher capability when available, falling back to one
// Update call per id otherwise.
func (e *Environment) flushDirty(ctx context.Context, model string, fields []string, ids []Id) error {
	if len(ids) == 0 {
		return nil
	}
	fm := e.registry.Get(model)

	if bf, ok := e.store.(BatchFlusher); ok {
		return bf.FlushDirty(ctx, e.cache, fm, fields, ids)
	}

	for _, id := range ids {
		dirty := e.cache.DirtyFields(model, id)
		if fields != nil {
			dirty = intersectFields(dirty, fields)
		}
		if len(dirty) == 0 {
			continue
		}
		values := FieldMap{}
		for _, f := range dirty {
			if v, ok := e.cache.Get(model, id, f); ok {
				values[f] = v
			}
		}
		if err := e.store.Update(ctx, model, []Id{id}, values); err != nil {
			return err
		}
		if fields == nil {
			e.cache.ClearDirty(model, []Id{id})
		} else {
			for _, f := range dirty {
				e.cache.ClearDirtyField(model, f, []Id{id})
			}
		}
	}
	return nil
}

func intersectFields(a, b []string) []string {
	allow := make(map[string]struct{}, len(b))
	for _, f := range b {
		allow[f] = struct{}{}
	}
	var out []string
	for _, f := range a {
		if _, ok := allow[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// sortedIds returns a sorted copy of ids, for deterministic logging/tests.
func sortedIds(ids []Id) []Id {
	out := append([]Id{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
