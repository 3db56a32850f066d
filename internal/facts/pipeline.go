package facts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/gateway"
	"github.com/rampart-sec/rampart/internal/smc"
)

// Request describes one facts retrieval.
type Request struct {
	// Filter narrows the run to a single gateway by exact name. Empty
	// means every gateway.
	Filter string

	// Relations lists relationship names to inline. Unknown names fail
	// the whole request before anything is fetched.
	Relations []string

	// AsYAML selects the canonical YAML document over the mapping.
	AsYAML bool
}

// Pipeline runs the retrieval stages in order: resolve the gateway set,
// expand requested relationships, format. The first failing stage aborts
// the run.
type Pipeline struct {
	resolver *gateway.Resolver
	expander *gateway.Expander
	logger   zerolog.Logger
}

// NewPipeline wires a pipeline over one management center client.
func NewPipeline(client *smc.Client, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		resolver: gateway.NewResolver(client, logger),
		expander: gateway.NewExpander(client, logger),
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline. The expansion request is validated before
// the first network call.
func (p *Pipeline) Run(ctx context.Context, req Request) (Output, error) {
	relations, err := gateway.ParseRelations(req.Relations)
	if err != nil {
		return Output{}, err
	}

	gateways, err := p.resolver.Resolve(ctx, req.Filter)
	if err != nil {
		return Output{}, err
	}

	if len(relations) > 0 {
		expanded := make([]gateway.Gateway, 0, len(gateways))
		for _, gw := range gateways {
			egw, err := p.expander.Expand(ctx, gw, relations)
			if err != nil {
				return Output{}, err
			}
			expanded = append(expanded, egw)
		}
		gateways = expanded
	}

	p.logger.Debug().
		Str("filter", req.Filter).
		Int("gateways", len(gateways)).
		Bool("as_yaml", req.AsYAML).
		Msg("pipeline complete")
	return Format(gateways, req.AsYAML)
}
