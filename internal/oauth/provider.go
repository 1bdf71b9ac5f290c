// Package oauth adapts external identity providers to the auth service.
// A provider runs the authorization-code exchange and reports what it
// vouches for as a service.ExternalIdentity; linking and provisioning stay
// in the service.
package oauth

import (
	"context"
	"errors"
	"sort"

	"github.com/iliyamo/shipping-auth/internal/service"
)

// ErrUnknownProvider is returned by Registry.Get for names that are not
// configured.
var ErrUnknownProvider = errors.New("oauth: unknown provider")

// Provider is one configured identity provider.
type Provider interface {
	Name() string
	// AuthCodeURL is where the browser is sent to consent. state is echoed
	// back on the callback.
	AuthCodeURL(state string) string
	// Exchange trades the callback code for the provider's identity.
	Exchange(ctx context.Context, code string) (service.ExternalIdentity, error)
}

// Registry maps route names ("google", "facebook") to providers.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		if p != nil {
			r[p.Name()] = p
		}
	}
	return r
}

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names lists the configured providers in a stable order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
