// Package hybrid combines the API and browser sources behind one Source.
package hybrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

// Coordinator asks the primary source first and the fallback only when the
// primary fails or comes back empty. It never returns a listing error: when
// nothing worked the result is Empty with Err wrapping ErrSourceExhausted.
type Coordinator struct {
	Primary  ports.Source
	Fallback ports.Source
	log      zerolog.Logger
}

func New(primary, fallback ports.Source, log zerolog.Logger) *Coordinator {
	return &Coordinator{Primary: primary, Fallback: fallback, log: log}
}

var _ ports.Source = (*Coordinator)(nil)

func (c *Coordinator) Name() string {
	return "hybrid"
}

func (c *Coordinator) FetchListing(ctx context.Context, sort string, limit int) domain.FetchResult {
	var causes []error

	if c.Primary != nil {
		res := c.Primary.FetchListing(ctx, sort, limit)
		if res.Usable() {
			return res
		}
		causes = append(causes, describe(c.Primary.Name(), res))
		c.log.Warn().Err(res.Err).Str("source", c.Primary.Name()).Str("status", res.Status.String()).
			Msg("primary source produced nothing, falling back")
	}

	if c.Fallback != nil && ctx.Err() == nil {
		res := c.Fallback.FetchListing(ctx, sort, limit)
		if res.Usable() {
			return res
		}
		causes = append(causes, describe(c.Fallback.Name(), res))
		c.log.Error().Err(res.Err).Str("source", c.Fallback.Name()).Str("status", res.Status.String()).
			Msg("fallback source produced nothing")
	}

	return Empty(errors.Join(causes...))
}

// Empty builds the exhausted result. cause may be nil.
func Empty(cause error) domain.FetchResult {
	res := domain.Empty("hybrid")
	if cause == nil {
		res.Err = domain.ErrSourceExhausted
	} else {
		res.Err = fmt.Errorf("%w: %w", domain.ErrSourceExhausted, cause)
	}
	return res
}

func describe(name string, res domain.FetchResult) error {
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("%s: %s listing", name, res.Status)
}

// FetchDetail asks the primary, then the fallback. A source error is only
// returned when no source produced a detail and at least one failed.
func (c *Coordinator) FetchDetail(ctx context.Context, id string) (*domain.RawDetail, error) {
	var errs []error
	for _, src := range []ports.Source{c.Primary, c.Fallback} {
		if src == nil {
			continue
		}
		d, err := src.FetchDetail(ctx, id)
		if err != nil {
			c.log.Debug().Err(err).Str("source", src.Name()).Str("post", id).Msg("detail fetch failed")
			errs = append(errs, err)
			continue
		}
		if d != nil {
			return d, nil
		}
	}
	return nil, errors.Join(errs...)
}
