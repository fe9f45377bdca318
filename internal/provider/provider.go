// Package provider stores named launch profiles for the assistant binary
// and the currently selected profile.
package provider

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Provider kinds.
const (
	KindOAuth  = "oauth"
	KindAPIKey = "api_key"
)

// Credential keys honoured in a provider's env mapping.
const (
	EnvBaseURL = "ANTHROPIC_BASE_URL"
)

// Provider is a named launch profile: authentication mode, config
// directory, and environment overrides for the assistant binary.
// Records are read-only snapshots once handed to the launcher.
type Provider struct {
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Description string            `yaml:"description,omitempty"`
	ConfigDir   string            `yaml:"config_dir"`
	Env         map[string]string `yaml:"env,omitempty"`
	MemoryReset bool              `yaml:"memory_reset,omitempty"`
}

// Validate checks the structural invariants enforced at the store
// boundary: non-empty name, known kind, non-empty config directory, no
// env entries on OAuth providers, and a well-formed base URL when one is
// supplied.
func (p Provider) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Kind, validation.Required, validation.In(KindOAuth, KindAPIKey)),
		validation.Field(&p.ConfigDir, validation.Required),
	); err != nil {
		return err
	}
	if p.Kind == KindOAuth && len(p.Env) > 0 {
		return fmt.Errorf("provider %q: oauth providers take no env entries", p.Name)
	}
	if u, ok := p.Env[EnvBaseURL]; ok && u != "" {
		if err := validation.Validate(u, is.URL); err != nil {
			return fmt.Errorf("provider %q: %s: %w", p.Name, EnvBaseURL, err)
		}
	}
	return nil
}
