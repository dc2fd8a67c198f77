package marketdata

import (
	"context"
	"fmt"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
)

// ChainClient defines the market-data call the collector depends on
type ChainClient interface {
	GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]models.Option, error)
}

// Ensure TradierAPI implements ChainClient
var _ ChainClient = (*TradierAPI)(nil)

// FetchError reports the expiration whose request could not be completed or decoded.
type FetchError struct {
	Expiration string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching option chain for %s: %v", e.Expiration, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// GapFunc is called for each expiration that returned no contracts.
type GapFunc func(expiration string)

// FetchChains requests every expiration in order and accumulates the contracts.
// Expirations without data are passed to onGap and skipped. Any request, status
// or decode failure stops the walk and is returned as a *FetchError.
func FetchChains(ctx context.Context, client ChainClient, symbol string, expirations []string, onGap GapFunc) ([]models.Option, error) {
	var all []models.Option
	for _, exp := range expirations {
		if err := ctx.Err(); err != nil {
			return all, &FetchError{Expiration: exp, Err: err}
		}

		options, err := client.GetOptionChainCtx(ctx, symbol, exp)
		if err != nil {
			return all, &FetchError{Expiration: exp, Err: err}
		}
		if len(options) == 0 {
			if onGap != nil {
				onGap(exp)
			}
			continue
		}
		all = append(all, options...)
	}
	return all, nil
}
