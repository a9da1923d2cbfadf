// Package controller implements the HTTP Handlers described in spec §4.11:
// one endpoint per app family, plus the health/status/debug surface from
// §4.13. Handlers are grounded on the teacher's claude_messages.go request
// lifecycle (read body, dispatch upstream, translate or pass through,
// dispatch best-effort usage logging) but carry no billing/quota/user
// concepts, since this domain has no accounts.
package controller

import (
	"net/http"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/billing"
	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/routing"
	"github.com/cliproxy/gateway/relay/store"
)

// Deps bundles the shared collaborators every handler needs. One instance is
// constructed at startup and closed over by each gin.HandlerFunc.
type Deps struct {
	Router    *routing.Router
	Breakers  *breaker.Registry
	Providers store.ProviderStore
	Status    *model.StatusRegistry
	Adapters  map[model.AppFamily]adaptor.Adapter
	Client    *http.Client
	Forwarder *forwarder.Forwarder
	Billing   *billing.Logger
	MaxRetries int
}
