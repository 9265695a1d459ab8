package auth

import (
	"github.com/pkg/errors"

	"github.com/payradar/payradar/interfaces"
)

// NewProviderRegistry builds the provider lookup map. Every provider must
// carry a unique, non-empty name; a bad registration is a startup error,
// not a runtime surprise.
func NewProviderRegistry(providers ...interfaces.MailProvider) (map[string]interfaces.MailProvider, error) {
	registry := make(map[string]interfaces.MailProvider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("nil provider registered")
		}
		name := p.Name()
		if name == "" {
			return nil, errors.New("provider with empty name registered")
		}
		if _, exists := registry[name]; exists {
			return nil, errors.Errorf("duplicate provider registration: %s", name)
		}
		registry[name] = p
	}
	return registry, nil
}
