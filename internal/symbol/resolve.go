package symbol

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"quotebroker/internal/memo"
)

// LookupTimeout bounds one shared exchange lookup.
const LookupTimeout = 10 * time.Second

// ExchangeLookup finds the listing exchange of a stock ticker. An empty
// exchange with a nil error means the vendor knows no listing.
type ExchangeLookup interface {
	LookupExchange(ctx context.Context, base string) (string, error)
}

// Resolver replaces a defaulted stock exchange with a vendor lookup.
// Results, including "no listing", are memoized; errors are not.
type Resolver struct {
	lookup ExchangeLookup
	memo   *memo.Cache[string]
	group  singleflight.Group
}

func NewResolver(lookup ExchangeLookup, cache *memo.Cache[string]) *Resolver {
	return &Resolver{lookup: lookup, memo: cache}
}

// Resolve returns c unchanged unless it is a stock whose exchange was
// defaulted. On lookup failure the default is kept and the error returned.
func (r *Resolver) Resolve(ctx context.Context, c Canonical) (Canonical, error) {
	if r == nil || c.Class != Stock || !c.ExchangeDefaulted {
		return c, nil
	}
	if exchange, ok := r.memo.Get(c.Base); ok {
		return pin(c, exchange), nil
	}

	// The shared lookup outlives any single caller's cancellation.
	ch := r.group.DoChan(c.Base, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LookupTimeout)
		defer cancel()
		exchange, err := r.lookup.LookupExchange(lookupCtx, c.Base)
		if err != nil {
			return "", err
		}
		r.memo.Set(c.Base, exchange)
		return exchange, nil
	})
	var v any
	select {
	case res := <-ch:
		if res.Err != nil {
			return c, fmt.Errorf("resolving exchange for %s: %w", c.Base, res.Err)
		}
		v = res.Val
	case <-ctx.Done():
		return c, fmt.Errorf("resolving exchange for %s: %w", c.Base, ctx.Err())
	}
	return pin(c, v.(string)), nil
}

func pin(c Canonical, exchange string) Canonical {
	if exchange == "" {
		return c
	}
	return c.WithExchange(exchange)
}
