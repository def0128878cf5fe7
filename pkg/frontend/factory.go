package frontend

import (
	"context"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/plugin"
	"go.uber.org/zap"
)

// IDStandard identifies the standard frontend in candidate lists
const IDStandard = "standard"

type (
	// Settings configures frontend selection.
	Settings struct {
		// Name is the display name of the default frontend
		Name string `mapstructure:"name"`
		// Frontends lists candidate frontend ids
		Frontends []string `mapstructure:"frontends"`
	}
	// Factory selects a frontend by display name.
	Factory = plugin.Registry[Frontend]
)

// NewFactory registers the built-in frontends. opts configure the standard frontend.
func NewFactory(l *zap.Logger, s Settings, opts ...StandardOption) *Factory {
	return plugin.New(l, "frontend",
		plugin.Settings{
			Candidates: s.Frontends,
			Default:    s.Name,
			Fallback:   NameStandard,
		},
		plugin.Plugin[Frontend]{
			ID:   IDStandard,
			Name: NameStandard,
			New: func(ctx context.Context) (Frontend, error) {
				return NewStandard(l, opts...), nil
			},
		},
	)
}

// FrontendAndBackend resolves a frontend and a backend, empty names select the defaults.
// The first failure is returned.
func FrontendAndBackend(ctx context.Context, frontends *Factory, backends *backend.Factory, frontendName, backendName string) (Frontend, backend.Backend, error) {
	f, err := frontends.Get(ctx, frontendName, true)
	if err != nil {
		return nil, nil, err
	}
	b, err := backends.Get(ctx, backendName, true)
	if err != nil {
		return nil, nil, err
	}
	return f, b, nil
}
