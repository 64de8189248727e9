// Package enrich fills missing enrichment fields from local data sources.
// Supplied fields always win over looked-up ones.
package enrich

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ppiankov/iocscore/internal/model"
)

// ErrNotApplicable is returned by providers that have nothing for an
// indicator type
var ErrNotApplicable = errors.New("provider does not handle this indicator type")

// Provider looks up enrichment for one indicator
type Provider interface {
	Name() string
	Enrich(ctx context.Context, t model.IndicatorType, value string) (model.Enrichment, error)
}

// Chain queries providers in order, each only filling what is still missing
type Chain struct {
	providers []Provider
	log       zerolog.Logger
}

// NewChain creates a provider chain
func NewChain(log zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		log:       log.With().Str("component", "enrich").Logger(),
	}
}

// Len returns the number of providers
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

// Enrich returns base with absent fields filled. Provider failures are
// logged and skipped; enrichment is best effort.
func (c *Chain) Enrich(ctx context.Context, t model.IndicatorType, value string, base model.Enrichment) model.Enrichment {
	out := base.Clone()
	if c == nil {
		return out
	}
	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}
		found, err := p.Enrich(ctx, t, value)
		if err != nil {
			if !errors.Is(err, ErrNotApplicable) {
				c.log.Debug().Err(err).Str("provider", p.Name()).Str("value", value).Msg("enrichment lookup failed")
			}
			continue
		}
		out = out.FillMissing(found)
	}
	return out
}

// Close closes every provider that holds resources
func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, p := range c.providers {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
