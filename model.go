// model.go - per-plugin model descriptors merged into one final model
package erp

// Constructor instantiates a transient compute-capable wrapper around an id
// set. The environment calls this instead of holding a long-lived receiver,
// per the design note against boxing closures that capture the environment:
// the environment is passed as an argument to CallCompute, not captured.
type Constructor func(ids IdSet) ComputeReceiver

// ComputeReceiver is implemented by the transient wrapper a plugin's
// Constructor produces. CallCompute runs the named compute method, writing
// its results back into the environment via Environment.Set.
type ComputeReceiver interface {
	CallCompute(field string, env *Environment) error
}

// ModelDescriptor is what one plugin contributes for one model: its field
// descriptors plus the constructor used to dispatch compute methods declared
// by this contribution.
type ModelDescriptor struct {
	Name        string
	Description string
	Fields      []FieldDescriptor
	Constructor Constructor
}

// Contributor is the registry's record of one plugin's contribution to a
// model: which fields it declared and the constructor to use when a compute
// method it owns needs to run.
type Contributor struct {
	TypeID      string // plugin-provided type key, stable identity for the contribution
	PluginName  string
	FieldNames  []string
	Constructor Constructor
}

// CrossDependency is a precomputed cross-model invalidation edge: when the
// field it is listed under in FinalModel.CrossDependents changes,
// records of DependentModel reachable through ViaField (an M2O field on
// DependentModel pointing back at this model) must have RecomputeField
// scheduled. See DESIGN.md for the traversal-direction decision.
type CrossDependency struct {
	DependentModel  string
	ViaField        string
	RecomputeField  string
}

// FinalModel is the merged view of all contributions to one model name.
type FinalModel struct {
	Name          string
	Description   string
	Contributors  map[string]*Contributor // keyed by TypeID
	Fields        map[string]*FinalField  // keyed by field name
	// CrossDependents maps a field name on THIS model to the dependent
	// fields (on other models) that must recompute when it changes.
	CrossDependents map[string][]CrossDependency
}

func newFinalModel(name string) *FinalModel {
	return &FinalModel{
		Name:            name,
		Contributors:    map[string]*Contributor{},
		Fields:          map[string]*FinalField{},
		CrossDependents: map[string][]CrossDependency{},
	}
}

// StoredFieldNames returns the names of every field backed by a storage
// column, i.e. every field except non-stored O2M (virtual, computed on read
// by browsing the target model).
func (m *FinalModel) StoredFieldNames() []string {
	out := make([]string, 0, len(m.Fields))
	for name, f := range m.Fields {
		if f.Reference != nil && f.Reference.Kind == RefO2M {
			continue
		}
		out = append(out, name)
	}
	return out
}

// StoredComputedFieldNames returns the names of computed fields that are
// also persisted (i.e. every Compute field in this design, since §3 only
// specifies stored computed fields).
func (m *FinalModel) StoredComputedFieldNames() []string {
	var out []string
	for name, f := range m.Fields {
		if f.Compute != nil {
			out = append(out, name)
		}
	}
	return out
}

// FieldsDependingOn returns the names of final fields on this model whose
// Compute.Depends contains field.
func (m *FinalModel) FieldsDependingOn(field string) []string {
	var out []string
	for name, f := range m.Fields {
		if f.Compute == nil {
			continue
		}
		for _, dep := range f.Compute.Depends {
			if dep == field {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// ContributorOwning returns the contributor responsible for the compute
// method of field, looked up by the final field's OwnerTypeID.
func (m *FinalModel) ContributorOwning(field string) (*Contributor, bool) {
	ff, ok := m.Fields[field]
	if !ok || ff.Compute == nil {
		return nil, false
	}
	c, ok := m.Contributors[ff.OwnerTypeID]
	return c, ok
}
