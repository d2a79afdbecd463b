// plugin.go - plugin dependency sort and the Application that drives plugin
// load order, model registration, and the bootstrap plugin table, per §4.6
// and §6.
package erp

import (
	"context"

	"github.com/rs/zerolog"
)

// Plugin is implemented by every module contributed to an Application.
type Plugin interface {
	// Name identifies this plugin, used as its row key in the bootstrap
	// plugin table and as the node identity in the dependency sort.
	Name() string
	// Depends lists the plugin names that must load (and whose models must
	// be registered) before this one.
	Depends() []string
	// PreInit runs before any environment exists.
	PreInit() error
	// InitModels registers this plugin's model contributions.
	InitModels(registry *Registry) error
	// PostInit runs with a fresh environment, free to create records.
	PostInit(env *Environment) error
	// Unload runs when the plugin is removed from a running Application.
	Unload() error
}

// visitState is the three-state marker the topological sort uses to detect
// cycles.
type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// sortPlugins topologically orders plugins so every plugin follows its
// dependencies, per §4.6. A plugin revisited while visiting is a
// CircularDependencyError; a dependency never registered is a
// MissingDependencyError.
func sortPlugins(plugins []Plugin) ([]Plugin, error) {
	byName := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = p
	}

	state := make(map[string]visitState, len(plugins))
	var order []Plugin

	var visit func(p Plugin) error
	visit = func(p Plugin) error {
		name := p.Name()
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return &CircularDependencyError{Plugin: name}
		}
		state[name] = visiting
		for _, dep := range p.Depends() {
			depPlugin, ok := byName[dep]
			if !ok {
				return &MissingDependencyError{Plugin: name, Dependency: dep}
			}
			if err := visit(depPlugin); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, p)
		return nil
	}

	for _, p := range plugins {
		if err := visit(p); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Application owns the registry, the store and the set of loaded plugins,
// per §6's programmatic surface (new/new_test/register_plugin/load_plugin/
// new_env/unload).
type Application struct {
	registry *Registry
	store    Store
	log      zerolog.Logger

	pending []Plugin
	loaded  []Plugin
}

// New creates an Application backed by store (typically a *SQLStore).
func New(store Store, log zerolog.Logger) *Application {
	return &Application{
		registry: NewRegistry(log),
		store:    store,
		log:      log,
	}
}

// NewTest creates an Application backed by an in-memory store, for tests
// and plugin PostInit fixtures that don't need a real database.
func NewTest(log zerolog.Logger) *Application {
	return New(NewMemStore(), log)
}

// RegisterPlugin queues p to be loaded by LoadPlugin. Registering the same
// name twice is a PluginAlreadyRegisteredError.
func (a *Application) RegisterPlugin(p Plugin) error {
	for _, existing := range a.pending {
		if existing.Name() == p.Name() {
			return &PluginAlreadyRegisteredError{Plugin: p.Name()}
		}
	}
	a.pending = append(a.pending, p)
	return nil
}

// LoadPlugin topologically sorts every registered plugin, runs PreInit and
// InitModels in dependency order, finalizes the registry, initializes the
// store's schema if needed, then runs PostInit against a fresh environment
// and persists each plugin's bootstrap row.
func (a *Application) LoadPlugin(ctx context.Context) error {
	ordered, err := sortPlugins(a.pending)
	if err != nil {
		return err
	}

	for _, p := range ordered {
		if err := p.PreInit(); err != nil {
			return err
		}
	}

	for _, p := range ordered {
		a.registry.beginPlugin(p.Name())
		err := p.InitModels(a.registry)
		a.registry.endPlugin()
		if err != nil {
			return err
		}
	}

	if err := a.registry.PostRegister(); err != nil {
		return err
	}

	env, err := a.NewEnv(ctx)
	if err != nil {
		return err
	}

	loadErr := a.loadOrdered(ctx, ordered, env)
	if closeErr := env.Close(ctx, loadErr); closeErr != nil && loadErr == nil {
		loadErr = closeErr
	}
	return loadErr
}

func (a *Application) loadOrdered(ctx context.Context, ordered []Plugin, env *Environment) error {
	installed, err := a.store.IsInstalled(ctx)
	if err != nil {
		return err
	}
	if !installed {
		if err := a.store.Initialize(ctx, a.registry); err != nil {
			return err
		}
	}

	for _, p := range ordered {
		if err := p.PostInit(env); err != nil {
			return err
		}
		if err := a.store.SetInstalledPlugin(ctx, PluginRecord{Name: p.Name(), State: "installed"}); err != nil {
			return err
		}
		a.loaded = append(a.loaded, p)
		a.log.Info().Str("plugin", p.Name()).Msg("plugin loaded")
	}
	return nil
}

// NewEnv creates a fresh Environment sharing this application's registry and
// store, opening the store's session first when it implements Sessioner.
// The caller must call Environment.Close when done with it.
func (a *Application) NewEnv(ctx context.Context) (*Environment, error) {
	if s, ok := a.store.(Sessioner); ok {
		if err := s.Begin(ctx); err != nil {
			return nil, err
		}
	}
	return NewEnvironment(a.registry, a.store, a.log), nil
}

// Unload runs Unload on every loaded plugin, most-recently-loaded first.
func (a *Application) Unload() error {
	for i := len(a.loaded) - 1; i >= 0; i-- {
		if err := a.loaded[i].Unload(); err != nil {
			return err
		}
	}
	a.loaded = nil
	return nil
}

// Registry exposes the application's registry, read-only after LoadPlugin.
func (a *Application) Registry() *Registry { return a.registry }

// Store exposes the application's store.
func (a *Application) Store() Store { return a.store }
