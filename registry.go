// registry.go - merged-schema registry: Register, PostRegister, Get
package erp

import (
	"strings"
	"sync"

	"github.com/coffyg/utils"
	"github.com/rs/zerolog"
)

// Registry maps model name to its merged FinalModel. It is assembled once at
// startup by successive calls to Register from each plugin's InitModels, then
// finalized by PostRegister, and is read-only for the remainder of the
// process lifetime — safe to share across environments.
//
// The name -> *FinalModel table is a coffyg/utils.OptimizedSafeMap, the same
// structure the teacher repository uses for its own read-heavy,
// write-rarely model metadata cache.
type Registry struct {
	models *utils.OptimizedSafeMap[*FinalModel]

	mu         sync.Mutex
	modelNames []string

	// currentPlugin names the plugin whose InitModels is in progress, for
	// diagnostics (see SPEC_FULL.md's "supplemented from original_source").
	currentPlugin string

	log zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		models: utils.NewOptimizedSafeMap[*FinalModel](),
		log:    log,
	}
}

// beginPlugin marks pluginName as the current contributor; called by the
// plugin manager around a plugin's InitModels hook.
func (r *Registry) beginPlugin(pluginName string) {
	r.mu.Lock()
	r.currentPlugin = pluginName
	r.mu.Unlock()
}

func (r *Registry) endPlugin() {
	r.mu.Lock()
	r.currentPlugin = ""
	r.mu.Unlock()
}

// Register merges desc into the final model named desc.Name, recording a
// contributor entry keyed by typeID (stable per contributing Go type).
func (r *Registry) Register(typeID string, desc ModelDescriptor) {
	pluginName := r.currentPlugin

	fm, ok := r.models.Get(desc.Name)
	if !ok {
		fm = newFinalModel(desc.Name)
		r.mu.Lock()
		r.modelNames = append(r.modelNames, desc.Name)
		r.mu.Unlock()
	}
	if desc.Description != "" {
		fm.Description = desc.Description
	}

	fieldNames := make([]string, 0, len(desc.Fields))
	for _, fd := range desc.Fields {
		existing := fm.Fields[fd.Name]
		merged, err := mergeField(existing, fd.Name, typeID, fd)
		if err != nil {
			panic(err)
		}
		fm.Fields[fd.Name] = merged
		fieldNames = append(fieldNames, fd.Name)
	}

	fm.Contributors[typeID] = &Contributor{
		TypeID:      typeID,
		PluginName:  pluginName,
		FieldNames:  fieldNames,
		Constructor: desc.Constructor,
	}

	r.models.Set(desc.Name, fm)
	r.log.Debug().Str("model", desc.Name).Str("plugin", pluginName).Str("type_id", typeID).Msg("registered model contribution")
}

// PostRegister links reciprocal references: for every O2M field declared on
// a model, it appends that field's name into the target model's inverse M2O
// field's InverseFields, and precomputes cross-model recompute edges for
// depends entries of the form "refField.remoteField" (see SPEC_FULL.md).
func (r *Registry) PostRegister() error {
	r.mu.Lock()
	names := append([]string{}, r.modelNames...)
	r.mu.Unlock()

	for _, name := range names {
		fm, _ := r.models.Get(name)
		for fieldName, ff := range fm.Fields {
			if ff.Reference == nil || ff.Reference.Kind != RefO2M {
				continue
			}
			target, ok := r.models.Get(ff.Reference.TargetModel)
			if !ok {
				panic(&InverseLinkMismatchError{Model: name, Field: fieldName})
			}
			inverseFieldName := ff.Reference.InverseField
			inverse, ok := target.Fields[inverseFieldName]
			if !ok || inverse.Reference == nil || inverse.Reference.Kind != RefM2O {
				return &InverseLinkMismatchError{Model: name, Field: fieldName}
			}
			inverse.Reference.InverseFields = dedupStrings(append(inverse.Reference.InverseFields, fieldName))
		}
	}

	for _, name := range names {
		fm, _ := r.models.Get(name)
		for fieldName, ff := range fm.Fields {
			if ff.Compute == nil {
				continue
			}
			for _, dep := range ff.Compute.Depends {
				refField, remoteField, ok := splitCrossDep(dep)
				if !ok {
					continue
				}
				refFF, ok := fm.Fields[refField]
				if !ok || refFF.Reference == nil || refFF.Reference.Kind != RefM2O {
					continue
				}
				target, ok := r.models.Get(refFF.Reference.TargetModel)
				if !ok {
					continue
				}
				if _, ok := target.Fields[remoteField]; !ok {
					continue
				}
				target.CrossDependents[remoteField] = append(target.CrossDependents[remoteField], CrossDependency{
					DependentModel: name,
					ViaField:       refField,
					RecomputeField: fieldName,
				})
			}
		}
	}

	r.log.Info().Int("models", len(names)).Msg("registry post-registration complete")
	return nil
}

// splitCrossDep splits a "refField.remoteField" dependency path. Plain
// (same-model) dependency names never contain a dot.
func splitCrossDep(dep string) (refField, remoteField string, ok bool) {
	idx := strings.IndexByte(dep, '.')
	if idx < 0 {
		return "", "", false
	}
	return dep[:idx], dep[idx+1:], true
}

// Get returns the final model by name, panicking if unknown — an unknown
// model name is a programmer error, not a runtime condition.
func (r *Registry) Get(modelName string) *FinalModel {
	fm, ok := r.models.Get(modelName)
	if !ok {
		panic(&ModelNotFoundError{Model: modelName})
	}
	return fm
}

// TryGet returns the final model by name without panicking, for callers
// that need to treat an unknown model as a recoverable condition.
func (r *Registry) TryGet(modelName string) (*FinalModel, bool) {
	return r.models.Get(modelName)
}

// GetMut is identical to Get; final models are merged in place, so mutation
// through the returned pointer is always valid during the registration
// phase. It exists to mirror the Rust API's separate read/write accessors.
func (r *Registry) GetMut(modelName string) *FinalModel {
	return r.Get(modelName)
}

// AllModelsForPlugin returns every contributor a plugin registered, across
// all models, for schema-diff tooling.
func (r *Registry) AllModelsForPlugin(pluginName string) []*Contributor {
	r.mu.Lock()
	names := append([]string{}, r.modelNames...)
	r.mu.Unlock()

	var out []*Contributor
	for _, name := range names {
		fm, _ := r.models.Get(name)
		for _, c := range fm.Contributors {
			if c.PluginName == pluginName {
				out = append(out, c)
			}
		}
	}
	return out
}

// ModelNames returns every registered model name, in registration order.
func (r *Registry) ModelNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.modelNames...)
}
