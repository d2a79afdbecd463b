// compute.go - the compute driver of §4.3.4: runs a stored computed field's
// owning method, then drains cascading recompute entries under a recursion
// cap, all inside a savepoint.
package erp

import "context"

// maxComputeIterations bounds the compute driver's cascade-drain loop, per
// §4.3.4's recursion cap of 1024.
const maxComputeIterations = 1024

// compute enters a savepoint, runs fields over ids, then drains whatever
// cascading recompute entries surfaced on model, committing on success and
// rolling back cache and store together on error.
func (e *Environment) compute(ctx context.Context, model string, fields []string, ids []Id) error {
	return e.Savepoint(ctx, func(env *Environment) error {
		return env.driveCompute(ctx, model, fields, ids)
	})
}

func (e *Environment) driveCompute(ctx context.Context, model string, fields []string, ids []Id) error {
	fm := e.registry.Get(model)

	if err := e.callComputeFields(ctx, fm, fields, ids); err != nil {
		return err
	}

	iterations := 0
	for {
		field, pendingIds, ok := e.cache.TakeAnyToRecomputeEntry(model)
		if !ok {
			return nil
		}
		iterations++
		if iterations > maxComputeIterations {
			return &MaximumRecursionDepthComputeError{Model: model, Fields: fields, Ids: ids}
		}
		if err := e.callComputeFields(ctx, fm, []string{field}, pendingIds); err != nil {
			return err
		}
	}
}

// drainRecompute enters a savepoint and drains every pending recompute entry
// of model matching fieldFilter/idFilter (either may be nil for
// unrestricted), running each owning compute method as it's drained. Used by
// the save_* flush grains, which must compute before they flush.
func (e *Environment) drainRecompute(ctx context.Context, model string, fieldFilter []string, idFilter []Id) error {
	return e.Savepoint(ctx, func(env *Environment) error {
		fm := env.registry.Get(model)
		iterations := 0
		for {
			field, ids, ok := env.cache.TakeToRecomputeEntryFiltered(model, fieldFilter, idFilter)
			if !ok {
				return nil
			}
			iterations++
			if iterations > maxComputeIterations {
				return &MaximumRecursionDepthComputeError{Model: model, Fields: fieldFilter, Ids: idFilter}
			}
			if err := env.callComputeFields(ctx, fm, []string{field}, ids); err != nil {
				return err
			}
		}
	})
}

// callComputeFields dispatches each field's owning compute method over ids,
// instantiating a fresh transient wrapper per call via the contributor's
// constructor, per the design note against boxing closures over env.
func (e *Environment) callComputeFields(ctx context.Context, fm *FinalModel, fields []string, ids []Id) error {
	for _, field := range fields {
		ff, ok := fm.Fields[field]
		if !ok || ff.Compute == nil {
			continue
		}
		contributor, ok := fm.ContributorOwning(field)
		if !ok || contributor.Constructor == nil {
			continue
		}
		receiver := contributor.Constructor(NewIdSet(ids...))
		if err := receiver.CallCompute(field, e); err != nil {
			return err
		}
	}
	return nil
}
