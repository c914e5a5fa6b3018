// Package ratelimit paces outbound requests below GitHub's server-side
// quotas. Each upstream surface gets its own Throttle because the surfaces
// behave differently: the REST API meters a minute budget and tolerates
// short bursts, while repository HTML pages go through the web frontend,
// which bans scrapers long before the API quota is reached.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle spreads a per-minute request budget over time. A nil Throttle
// never blocks, so callers can leave throttling unconfigured.
type Throttle struct {
	lim *rate.Limiter
}

// PerMinute returns a Throttle allowing n requests per minute in bursts of
// up to burst requests. Bursts below 1 are raised to 1 so the throttle can
// always make progress.
func PerMinute(n, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{lim: rate.NewLimiter(rate.Limit(float64(n)/60.0), burst)}
}

// ForAPI builds the REST throttle: n requests per minute with a burst of
// roughly ten seconds of budget, so a paginated fetch is not serialized
// page by page.
func ForAPI(n int) *Throttle {
	return PerMinute(n, n/6)
}

// ForPages builds the HTML page throttle. Page fetches are strictly
// serialized, one token at a time.
func ForPages(n int) *Throttle {
	return PerMinute(n, 1)
}

// Wait blocks until the next request may go out or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.lim.Wait(ctx)
}
