package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modular"
)

// ModuleName is the module and config section name.
const ModuleName = "secrets"

var errInvalidConfigType = errors.New("invalid config type for secrets module")

// Config controls secret resolution.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED" desc:"Resolve awssm:// references in config"`
	Region  string `json:"region" yaml:"region" env:"REGION" desc:"AWS region for Secrets Manager"`
}

// Module resolves secret references in every registered config section.
// Modules holding credentials list it as a dependency so they see resolved
// values in Init.
type Module struct {
	config   *Config
	resolver *Resolver
}

// NewModule creates the secrets module. A non-nil resolver replaces the
// AWS-backed one.
func NewModule(resolver *Resolver) *Module {
	return &Module{resolver: resolver}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the secrets config section
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{}))
	return nil
}

// Init resolves references across all config sections.
func (m *Module) Init(app modular.Application) error {
	provider, err := app.GetConfigSection(ModuleName)
	if err != nil {
		return fmt.Errorf("failed to get config section: %w", err)
	}
	cfg, ok := provider.GetConfig().(*Config)
	if !ok {
		return errInvalidConfigType
	}
	m.config = cfg
	if !cfg.Enabled {
		return nil
	}

	ctx := context.Background()
	if m.resolver == nil {
		if m.resolver, err = NewAWSResolver(ctx, cfg.Region); err != nil {
			return err
		}
	}

	total := 0
	for name, section := range app.ConfigSections() {
		n, err := m.resolver.Resolve(ctx, section.GetConfig())
		if errors.Is(err, ErrNotAStructPtr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve secrets in section %s: %w", name, err)
		}
		total += n
	}
	app.Logger().Info("Secrets resolved", "region", cfg.Region, "fields", total)
	return nil
}
