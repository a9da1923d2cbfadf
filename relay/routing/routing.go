// Package routing implements the provider-selection Router described in
// spec §4.6. It is named "routing", distinct from the top-level router
// package that registers gin HTTP routes, to avoid a name collision between
// the two concerns.
package routing

import (
	"context"

	"github.com/Laisky/errors/v2"

	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/store"
)

// Router selects a healthy provider for a request, consulting the
// ProviderStore's failover queue and each candidate's circuit breaker.
type Router struct {
	providers store.ProviderStore
	breakers  *breaker.Registry
}

// New constructs a Router over providers and breakers.
func New(providers store.ProviderStore, breakers *breaker.Registry) *Router {
	return &Router{providers: providers, breakers: breakers}
}

// SelectProvider implements §4.6's algorithm: load the failover queue
// (falling back to the single current() provider if empty), skip excluded
// ids, and return the first candidate whose breaker reports available.
func (r *Router) SelectProvider(ctx context.Context, appType model.AppFamily, excludedIds map[string]bool) (model.Provider, error) {
	queue, err := r.providers.FailoverQueue(ctx, appType)
	if err != nil {
		return model.Provider{}, errors.Wrap(err, "load failover queue")
	}

	if len(queue) == 0 {
		current, err := r.providers.Current(ctx, appType)
		if err != nil {
			return model.Provider{}, errors.Wrap(err, "load current provider")
		}
		if current == "" {
			return model.Provider{}, model.NewNoAvailableProviderError()
		}
		queue = []string{current}
	}

	for _, id := range queue {
		if excludedIds[id] {
			continue
		}

		provider, ok, err := r.providers.GetProvider(ctx, appType, id)
		if err != nil {
			return model.Provider{}, errors.Wrap(err, "load candidate provider")
		}
		if !ok {
			continue
		}

		b := r.breakers.Get(id)
		if b.IsAvailable() {
			return provider, nil
		}
	}

	return model.Provider{}, model.NewNoAvailableProviderError()
}
