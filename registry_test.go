package erp

import "testing"

func ptr(v FieldValue) *FieldValue { return &v }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("task.Task", ModelDescriptor{
		Name: "task",
		Fields: []FieldDescriptor{
			{Name: "title", DefaultValue: ptr(StringValue(""))},
		},
	})
	r.endPlugin()

	fm := r.Get("task")
	if fm.Name != "task" {
		t.Fatalf("Get(task).Name = %q", fm.Name)
	}
	if _, ok := fm.Fields["title"]; !ok {
		t.Fatalf("expected title field to be registered")
	}
}

func TestRegistryGetUnknownModelPanics(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Get on an unknown model to panic")
		}
	}()
	r.Get("ghost")
}

func TestRegistryTryGet(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	if _, ok := r.TryGet("ghost"); ok {
		t.Fatalf("TryGet should report false for an unregistered model")
	}
}

func TestRegistryPostRegisterLinksO2MInverse(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("project.Project", ModelDescriptor{
		Name: "project",
		Fields: []FieldDescriptor{
			{Name: "tasks", DefaultValue: ptr(IdListValue(nil)), Reference: &ReferenceDecl{
				TargetModel: "task", Kind: RefO2M, InverseField: "project_id",
			}},
		},
	})
	r.Register("task.Task", ModelDescriptor{
		Name: "task",
		Fields: []FieldDescriptor{
			{Name: "project_id", DefaultValue: ptr(U32Value(0)), Reference: &ReferenceDecl{
				TargetModel: "project", Kind: RefM2O,
			}},
		},
	})
	r.endPlugin()

	if err := r.PostRegister(); err != nil {
		t.Fatalf("PostRegister: %v", err)
	}

	task := r.Get("task")
	inverse := task.Fields["project_id"].Reference.InverseFields
	if len(inverse) != 1 || inverse[0] != "tasks" {
		t.Fatalf("InverseFields = %v, want [tasks]", inverse)
	}
}

func TestRegistryPostRegisterRejectsBadInverse(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("project.Project", ModelDescriptor{
		Name: "project",
		Fields: []FieldDescriptor{
			{Name: "tasks", DefaultValue: ptr(IdListValue(nil)), Reference: &ReferenceDecl{
				TargetModel: "task", Kind: RefO2M, InverseField: "not_a_m2o",
			}},
		},
	})
	r.Register("task.Task", ModelDescriptor{
		Name: "task",
		Fields: []FieldDescriptor{
			{Name: "not_a_m2o", DefaultValue: ptr(StringValue(""))},
		},
	})
	r.endPlugin()

	err := r.PostRegister()
	if _, ok := err.(*InverseLinkMismatchError); !ok {
		t.Fatalf("expected InverseLinkMismatchError, got %v", err)
	}
}

func TestRegistryPostRegisterBuildsCrossDependency(t *testing.T) {
	r := NewRegistry(NewDefaultLogger())
	r.beginPlugin("core")
	r.Register("project.Project", ModelDescriptor{
		Name: "project",
		Fields: []FieldDescriptor{
			{Name: "task_count", DefaultValue: ptr(I32Value(0))},
		},
	})
	r.Register("task.Task", ModelDescriptor{
		Name: "task",
		Fields: []FieldDescriptor{
			{Name: "project_id", DefaultValue: ptr(U32Value(0)), Reference: &ReferenceDecl{
				TargetModel: "project", Kind: RefM2O,
			}},
			{Name: "is_done", DefaultValue: ptr(BoolValue(false)), Compute: &ComputeDecl{
				MethodKey: "computeIsDone", Depends: []string{"project_id.task_count"},
			}},
		},
	})
	r.endPlugin()

	if err := r.PostRegister(); err != nil {
		t.Fatalf("PostRegister: %v", err)
	}

	project := r.Get("project")
	deps := project.CrossDependents["task_count"]
	if len(deps) != 1 {
		t.Fatalf("CrossDependents[task_count] = %v, want 1 entry", deps)
	}
	if deps[0].DependentModel != "task" || deps[0].ViaField != "project_id" || deps[0].RecomputeField != "is_done" {
		t.Fatalf("unexpected cross-dependency: %+v", deps[0])
	}
}

func TestSplitCrossDep(t *testing.T) {
	ref, remote, ok := splitCrossDep("project_id.task_count")
	if !ok || ref != "project_id" || remote != "task_count" {
		t.Fatalf("splitCrossDep = (%q, %q, %v)", ref, remote, ok)
	}
	if _, _, ok := splitCrossDep("plain_field"); ok {
		t.Fatalf("splitCrossDep should report false for a dot-less name")
	}
}
