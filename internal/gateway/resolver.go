package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/smc"
)

// Resolver selects the gateway working set for a pipeline run.
type Resolver struct {
	client *smc.Client
	logger zerolog.Logger
}

// NewResolver creates a Resolver over the given management center client.
func NewResolver(client *smc.Client, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the gateways matching filter, or every gateway when the
// filter is empty. A filter that matches nothing yields an empty slice and
// no error; absence of a named gateway is a fact, not a failure. Ordering
// follows the service's native order.
func (r *Resolver) Resolve(ctx context.Context, filter string) ([]Gateway, error) {
	elements, err := r.client.Fetch(ctx, smc.TypeExternalGateway, filter)
	if err != nil {
		return nil, err
	}

	gateways := make([]Gateway, 0, len(elements))
	for _, el := range elements {
		gw, err := DecodeGateway(el)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}

	r.logger.Debug().
		Str("filter", filter).
		Int("count", len(gateways)).
		Msg("resolved gateways")
	return gateways, nil
}
