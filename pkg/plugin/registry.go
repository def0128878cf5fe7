package plugin

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotFound no plugin is registered under the requested name
var ErrNotFound = errors.New("not found")

type (
	// Plugin is a named constructor.
	Plugin[T any] struct {
		// ID identifies the plugin in candidate lists
		ID string
		// Name is the display name plugins are selected by
		Name string
		New  func(ctx context.Context) (T, error)
	}
	// Settings controls which plugins are considered and which one is selected by default.
	Settings struct {
		// Candidates lists plugin ids in lookup order, all registered plugins if empty
		Candidates []string
		// Default is the display name used when none is requested
		Default string
		// Fallback is used when neither a name nor a default is given
		Fallback string
	}
	// Registry selects plugins by display name.
	// Plugins are constructed on first use and reused afterwards.
	Registry[T any] struct {
		l        *zap.Logger
		kind     string
		settings Settings
		plugins  map[string]Plugin[T]
		order    []string
		loaded   map[string]T
		mu       sync.Mutex
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// New creates a registry for the given plugins. The order of plugins is the default lookup order.
func New[T any](l *zap.Logger, kind string, settings Settings, plugins ...Plugin[T]) *Registry[T] {
	inst := &Registry[T]{
		l:        l.Named(kind),
		kind:     kind,
		settings: settings,
		plugins:  make(map[string]Plugin[T], len(plugins)),
		loaded:   map[string]T{},
	}
	names := map[string]string{}
	for _, p := range plugins {
		if id, ok := names[p.Name]; ok && id != p.ID {
			panic("duplicate " + kind + " name " + p.Name + " registered by " + id + " and " + p.ID)
		}
		names[p.Name] = p.ID
		if _, ok := inst.plugins[p.ID]; !ok {
			inst.order = append(inst.order, p.ID)
		}
		inst.plugins[p.ID] = p
	}
	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// IDs returns the registered plugin ids in default lookup order.
func (r *Registry[T]) IDs() []string {
	return append([]string(nil), r.order...)
}

// Candidates returns the plugin ids consulted by Get, in order.
func (r *Registry[T]) Candidates() []string {
	if len(r.settings.Candidates) > 0 {
		return append([]string(nil), r.settings.Candidates...)
	}
	return r.IDs()
}

// Resolve returns the display name Get looks for:
// name if set, else the configured default, else the fallback.
func (r *Registry[T]) Resolve(name string) string {
	if name != "" {
		return name
	}
	if r.settings.Default != "" {
		return r.settings.Default
	}
	return r.settings.Fallback
}

// Get returns the first candidate whose display name equals the resolved name.
// If there is none, ErrNotFound is returned with raiseOnNone, otherwise the zero value and no error.
func (r *Registry[T]) Get(ctx context.Context, name string, raiseOnNone bool) (T, error) {
	var zero T
	name = r.Resolve(name)

	for _, id := range r.Candidates() {
		p, ok := r.plugins[id]
		if !ok {
			r.l.Warn("skipping unknown "+r.kind, zap.String("id", id))
			continue
		}
		if p.Name != name {
			continue
		}
		return r.load(ctx, p)
	}

	r.l.Debug(r.kind+" not found", zap.String("name", name))
	if raiseOnNone {
		return zero, errors.Wrapf(ErrNotFound, "%s %q", r.kind, name)
	}
	return zero, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Registry[T]) load(ctx context.Context, p Plugin[T]) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.loaded[p.ID]; ok {
		return inst, nil
	}

	inst, err := p.New(ctx)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "failed to load %s %q", r.kind, p.Name)
	}
	r.loaded[p.ID] = inst
	r.l.Debug("loaded "+r.kind, zap.String("id", p.ID), zap.String("name", p.Name))
	return inst, nil
}
