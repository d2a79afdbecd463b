// field.go - per-contribution field descriptors and their merged final form
package erp

// ReferenceKind distinguishes many-to-one from one-to-many reference fields.
type ReferenceKind uint8

const (
	RefNone ReferenceKind = iota
	RefM2O
	RefO2M
)

// ComputeDecl declares a field as stored-computed and names its dependencies.
type ComputeDecl struct {
	MethodKey string
	Depends   []string
}

// ReferenceDecl declares a field as a model reference.
type ReferenceDecl struct {
	TargetModel string
	Kind        ReferenceKind
	// InverseFields is populated for M2O (the O2M fields on TargetModel that
	// point back at this field) after Registry.PostRegister runs.
	InverseFields []string
	// InverseField names the M2O field on TargetModel this O2M corresponds
	// to; only meaningful when Kind == RefO2M.
	InverseField string
}

// FieldDescriptor is one plugin contribution's view of one field.
type FieldDescriptor struct {
	Name         string
	DefaultValue *FieldValue
	Description  string
	Required     bool
	Compute      *ComputeDecl
	Reference    *ReferenceDecl
}

// FinalField is the merged view of a field across every plugin that
// contributed to it.
type FinalField struct {
	Name         string
	DefaultValue FieldValue
	Description  string
	Required     bool
	Compute      *ComputeDecl
	Reference    *ReferenceDecl
	// OwnerTypeID is the contributor type-key that most recently touched
	// Compute; it is the constructor used to instantiate the transient
	// wrapper the compute driver dispatches on.
	OwnerTypeID string
}

// IsStored reports whether this field is persisted and therefore eligible
// for stored-computed scheduling on create.
func (f *FinalField) IsStored() bool {
	return f.Reference == nil || f.Reference.Kind != RefO2M
}

// mergeField folds a new contribution into an existing (possibly nil) final
// field, enforcing the merge invariants of §4.1:
//   - the first contribution must set DefaultValue, which pins the tag
//   - later contributions must not retype DefaultValue
//   - Required follows the last contribution
//   - Compute.Depends is a de-duplicated union across contributions
func mergeField(existing *FinalField, name, ownerTypeID string, d FieldDescriptor) (*FinalField, error) {
	if existing == nil {
		if d.DefaultValue == nil {
			panic("erp: first contribution to field " + name + " must provide a default value")
		}
		ff := &FinalField{
			Name:         name,
			DefaultValue: *d.DefaultValue,
			Description:  d.Description,
			Required:     d.Required,
			Reference:    d.Reference,
		}
		if d.Compute != nil {
			ff.Compute = &ComputeDecl{MethodKey: d.Compute.MethodKey, Depends: dedupStrings(d.Compute.Depends)}
			ff.OwnerTypeID = ownerTypeID
		}
		return ff, nil
	}

	if d.DefaultValue != nil && d.DefaultValue.Kind() != existing.DefaultValue.Kind() {
		panic("erp: field " + name + " retyped from " + existing.DefaultValue.Kind().String() + " to " + d.DefaultValue.Kind().String())
	}
	if d.DefaultValue != nil {
		existing.DefaultValue = *d.DefaultValue
	}
	if d.Description != "" {
		existing.Description = d.Description
	}
	existing.Required = d.Required
	if d.Reference != nil {
		existing.Reference = d.Reference
	}
	if d.Compute != nil {
		if existing.Compute == nil {
			existing.Compute = &ComputeDecl{}
		}
		merged := append(append([]string{}, existing.Compute.Depends...), d.Compute.Depends...)
		existing.Compute.Depends = dedupStrings(merged)
		existing.Compute.MethodKey = d.Compute.MethodKey
		existing.OwnerTypeID = ownerTypeID
	}
	return existing, nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
