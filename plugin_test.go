package erp

import (
	"context"
	"testing"
)

type fakePlugin struct {
	name      string
	depends   []string
	initModel func(*Registry) error
	postInit  func(env *Environment) error
}

func (p *fakePlugin) Name() string      { return p.name }
func (p *fakePlugin) Depends() []string { return p.depends }
func (p *fakePlugin) PreInit() error    { return nil }
func (p *fakePlugin) InitModels(r *Registry) error {
	if p.initModel != nil {
		return p.initModel(r)
	}
	return nil
}
func (p *fakePlugin) Unload() error { return nil }
func (p *fakePlugin) PostInit(env *Environment) error {
	if p.postInit != nil {
		return p.postInit(env)
	}
	return nil
}

func TestSortPluginsOrdersByDependency(t *testing.T) {
	a := &fakePlugin{name: "a"}
	b := &fakePlugin{name: "b", depends: []string{"a"}}
	c := &fakePlugin{name: "c", depends: []string{"b"}}

	ordered, err := sortPlugins([]Plugin{c, b, a})
	if err != nil {
		t.Fatalf("sortPlugins: %v", err)
	}
	if len(ordered) != 3 || ordered[0].Name() != "a" || ordered[1].Name() != "b" || ordered[2].Name() != "c" {
		names := make([]string, len(ordered))
		for i, p := range ordered {
			names[i] = p.Name()
		}
		t.Fatalf("order = %v, want [a b c]", names)
	}
}

func TestSortPluginsDetectsCycle(t *testing.T) {
	a := &fakePlugin{name: "a", depends: []string{"b"}}
	b := &fakePlugin{name: "b", depends: []string{"a"}}

	_, err := sortPlugins([]Plugin{a, b})
	if _, ok := err.(*CircularDependencyError); !ok {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}
}

func TestSortPluginsDetectsMissingDependency(t *testing.T) {
	a := &fakePlugin{name: "a", depends: []string{"ghost"}}

	_, err := sortPlugins([]Plugin{a})
	if _, ok := err.(*MissingDependencyError); !ok {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
}

func TestApplicationRegisterPluginRejectsDuplicate(t *testing.T) {
	app := NewTest(NewDefaultLogger())
	if err := app.RegisterPlugin(&fakePlugin{name: "core"}); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}
	err := app.RegisterPlugin(&fakePlugin{name: "core"})
	if _, ok := err.(*PluginAlreadyRegisteredError); !ok {
		t.Fatalf("expected PluginAlreadyRegisteredError, got %v", err)
	}
}

func TestApplicationLoadPluginRunsPostInitAndPersists(t *testing.T) {
	ctx := context.Background()
	var sawId Id
	core := &fakePlugin{
		name: "core",
		initModel: func(r *Registry) error {
			r.Register("task.Task", ModelDescriptor{
				Name: "task",
				Fields: []FieldDescriptor{
					{Name: "title", DefaultValue: ptr(StringValue(""))},
				},
			})
			return nil
		},
		postInit: func(env *Environment) error {
			id, err := env.Create(ctx, "task", FieldMap{"title": StringValue("bootstrap")})
			if err != nil {
				return err
			}
			sawId = id
			return nil
		},
	}

	app := NewTest(NewDefaultLogger())
	if err := app.RegisterPlugin(core); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}

	if err := app.LoadPlugin(ctx); err != nil {
		t.Fatalf("LoadPlugin: %v", err)
	}

	if sawId == 0 {
		t.Fatalf("PostInit never ran")
	}

	plugins, err := app.Store().GetInstalledPlugins(ctx)
	if err != nil {
		t.Fatalf("GetInstalledPlugins: %v", err)
	}
	if len(plugins) != 1 || plugins[0].Name != "core" || plugins[0].State != "installed" {
		t.Fatalf("GetInstalledPlugins = %v", plugins)
	}
}

func TestApplicationLoadPluginRejectsMissingDependency(t *testing.T) {
	app := NewTest(NewDefaultLogger())
	_ = app.RegisterPlugin(&fakePlugin{name: "a", depends: []string{"ghost"}})

	err := app.LoadPlugin(context.Background())
	if _, ok := err.(*MissingDependencyError); !ok {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
}
