package erp

import (
	"context"
	"testing"
)

// doubleReceiver implements ComputeReceiver for a "doubled" field computed as
// 2 * base over whatever ids it was constructed with.
type doubleReceiver struct{ ids IdSet }

func (r *doubleReceiver) CallCompute(field string, env *Environment) error {
	ids := IdsOf(r.ids)
	base, err := env.Get(context.Background(), "counter", "base", ids)
	if err != nil {
		return err
	}
	for i, id := range ids {
		n := int32(0)
		if base[i] != nil {
			n, _ = base[i].AsI32()
		}
		v := I32Value(n * 2)
		if err := env.Set(context.Background(), "counter", "doubled", []Id{id}, &v); err != nil {
			return err
		}
	}
	return nil
}

func newCounterRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("counter.Counter", ModelDescriptor{
		Name: "counter",
		Fields: []FieldDescriptor{
			{Name: "base", DefaultValue: ptr(I32Value(0))},
			{Name: "doubled", DefaultValue: ptr(I32Value(0)), Compute: &ComputeDecl{
				MethodKey: "computeDoubled", Depends: []string{"base"},
			}},
		},
		Constructor: func(ids IdSet) ComputeReceiver { return &doubleReceiver{ids: ids} },
	})
	r.endPlugin()
	if err := r.PostRegister(); err != nil {
		t.Fatalf("PostRegister: %v", err)
	}
	return r
}

func TestEnvironmentCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newCounterRegistry(t)
	store := NewMemStore()
	env := NewEnvironment(r, store, NewDefaultLogger())

	base := I32Value(5)
	id, err := env.Create(ctx, "counter", FieldMap{"base": base})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := env.Get(ctx, "counter", "doubled", []Id{id})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[0] == nil {
		t.Fatalf("expected computed value, got nil")
	}
	if n, _ := got[0].AsI32(); n != 10 {
		t.Fatalf("doubled = %d, want 10", n)
	}
}

func TestEnvironmentSetTriggersRecompute(t *testing.T) {
	ctx := context.Background()
	r := newCounterRegistry(t)
	store := NewMemStore()
	env := NewEnvironment(r, store, NewDefaultLogger())

	id, err := env.Create(ctx, "counter", FieldMap{"base": I32Value(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.Get(ctx, "counter", "doubled", []Id{id}); err != nil {
		t.Fatalf("Get: %v", err)
	}

	newBase := I32Value(10)
	if err := env.Set(ctx, "counter", "base", []Id{id}, &newBase); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := env.Get(ctx, "counter", "doubled", []Id{id})
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if n, _ := got[0].AsI32(); n != 20 {
		t.Fatalf("doubled after recompute = %d, want 20", n)
	}
}

func TestEnvironmentSaveRecordsFlushesDirty(t *testing.T) {
	ctx := context.Background()
	r := newCounterRegistry(t)
	store := NewMemStore()
	env := NewEnvironment(r, store, NewDefaultLogger())

	id, err := env.Create(ctx, "counter", FieldMap{"base": I32Value(3)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newBase := I32Value(7)
	if err := env.Set(ctx, "counter", "base", []Id{id}, &newBase); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := env.SaveRecords(ctx, "counter", []Id{id}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	rows, err := store.Browse(ctx, "counter", []Id{id}, []string{"base", "doubled"})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if n, _ := rows[id]["base"].AsI32(); n != 7 {
		t.Fatalf("stored base = %d, want 7", n)
	}
	if n, _ := rows[id]["doubled"].AsI32(); n != 14 {
		t.Fatalf("stored doubled = %d, want 14 (computed before flush)", n)
	}
}

func newProjectTaskRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("project.Project", ModelDescriptor{
		Name: "project",
		Fields: []FieldDescriptor{
			{Name: "name", DefaultValue: ptr(StringValue(""))},
			{Name: "tasks", DefaultValue: ptr(IdListValue(nil)), Reference: &ReferenceDecl{
				TargetModel: "task", Kind: RefO2M, InverseField: "project_id",
			}},
		},
	})
	r.Register("task.Task", ModelDescriptor{
		Name: "task",
		Fields: []FieldDescriptor{
			{Name: "title", DefaultValue: ptr(StringValue(""))},
			{Name: "project_id", DefaultValue: ptr(U32Value(0)), Reference: &ReferenceDecl{
				TargetModel: "project", Kind: RefM2O,
			}},
		},
	})
	r.endPlugin()
	if err := r.PostRegister(); err != nil {
		t.Fatalf("PostRegister: %v", err)
	}
	return r
}

func TestEnvironmentO2MReadFollowsInverseM2O(t *testing.T) {
	ctx := context.Background()
	r := newProjectTaskRegistry(t)
	store := NewMemStore()
	env := NewEnvironment(r, store, NewDefaultLogger())

	projectId, err := env.Create(ctx, "project", FieldMap{"name": StringValue("p1")})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	projVal := U32Value(projectId)
	task1, err := env.Create(ctx, "task", FieldMap{"title": StringValue("t1"), "project_id": projVal})
	if err != nil {
		t.Fatalf("Create task1: %v", err)
	}
	task2, err := env.Create(ctx, "task", FieldMap{"title": StringValue("t2"), "project_id": projVal})
	if err != nil {
		t.Fatalf("Create task2: %v", err)
	}

	got, err := env.Get(ctx, "project", "tasks", []Id{projectId})
	if err != nil {
		t.Fatalf("Get tasks: %v", err)
	}
	ids, _ := got[0].AsIdList()
	if len(ids) != 2 {
		t.Fatalf("tasks = %v, want 2 entries", ids)
	}
	seen := map[Id]bool{task1: false, task2: false}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[task1] || !seen[task2] {
		t.Fatalf("tasks = %v, want both %d and %d", ids, task1, task2)
	}
}

func TestEnvironmentSetO2MReplacesLinks(t *testing.T) {
	ctx := context.Background()
	r := newProjectTaskRegistry(t)
	store := NewMemStore()
	env := NewEnvironment(r, store, NewDefaultLogger())

	projectId, _ := env.Create(ctx, "project", FieldMap{"name": StringValue("p1")})
	task1, _ := env.Create(ctx, "task", FieldMap{"title": StringValue("t1")})
	task2, _ := env.Create(ctx, "task", FieldMap{"title": StringValue("t2")})

	if err := env.SetO2M(ctx, "project", "tasks", projectId, []Id{task1}); err != nil {
		t.Fatalf("SetO2M: %v", err)
	}
	got, _ := env.Get(ctx, "task", "project_id", []Id{task1, task2})
	if got[0] == nil {
		t.Fatalf("task1.project_id should be set")
	}
	if id, _ := got[0].AsU32(); id != projectId {
		t.Fatalf("task1.project_id = %d, want %d", id, projectId)
	}
	if got[1] == nil {
		t.Fatalf("task2.project_id should keep its default, got nil")
	}
	if id, _ := got[1].AsU32(); id != 0 {
		t.Fatalf("task2.project_id = %d, want its default 0 (not linked)", id)
	}

	if err := env.SetO2M(ctx, "project", "tasks", projectId, []Id{task2}); err != nil {
		t.Fatalf("SetO2M (swap): %v", err)
	}
	got, _ = env.Get(ctx, "task", "project_id", []Id{task1, task2})
	if got[0] != nil {
		t.Fatalf("task1.project_id should be cleared after swap, got %v", got[0])
	}
	if got[1] == nil {
		t.Fatalf("task2.project_id should be set after swap")
	}
}
