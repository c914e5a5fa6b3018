// Package dispatch routes slash-separated API paths onto the GitHub client,
// picking and authenticating a pool credential per call, rotating on
// rate-limit exhaustion and retrying 202 responses within a bounded budget.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urizennnn/repograde/credential"
	"github.com/urizennnn/repograde/pool"
)

var (
	// ErrNoCredentials is returned when a call is attempted with neither a
	// custom token nor a pool installed.
	ErrNoCredentials = errors.New("no credentials: install a token or a pool")
	// ErrUnexpectedResponse rejects API results that are neither scalars
	// nor collections.
	ErrUnexpectedResponse = errors.New("unexpected api response type")
	// ErrRetryExhausted is returned when the per-call rotation or 202
	// retry budget runs out.
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// maxRetries bounds both rotations per Call and 202 retries per invoke. The
// bound is part of the contract, not a tunable.
const maxRetries = 5

// acceptedBackoff is the pause before re-polling a 202 response.
const acceptedBackoff = time.Second

// assumedRateLimitWindow is the reset horizon assumed when the client only
// reports a textual "rate limit exceeded" without a reset timestamp.
const assumedRateLimitWindow = 600 * time.Second

// Logger is the optional structured sink used around sleeps and rotations.
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// Dispatcher serializes API calls for one consumer. It is single-threaded by
// contract; run one Dispatcher per goroutine and share the pool file between
// them.
type Dispatcher struct {
	inv   Invoker
	pool  *pool.Store
	token *credential.Credential
	log   Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPool installs the shared credential pool.
func WithPool(p *pool.Store) DispatcherOption {
	return func(d *Dispatcher) { d.pool = p }
}

// WithToken installs a single custom credential. The pool is bypassed and
// rate-limit exhaustion surfaces to the caller instead of rotating. Passing
// an explicit Anonymous credential forces unauthenticated calls.
func WithToken(c *credential.Credential) DispatcherOption {
	return func(d *Dispatcher) { d.token = c }
}

// WithLogger attaches an optional structured logger.
func WithLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithClockAndSleep replaces the wall clock and the sleeper, used by tests
// to freeze time and count sleeps.
func WithClockAndSleep(now func() time.Time, sleep func(time.Duration)) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
		d.sleep = sleep
	}
}

// New builds a Dispatcher over the given invoker.
func New(inv Invoker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		inv:   inv,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call resolves path, runs the rate-limit protocol and returns the plain
// JSON result. args are the method's positional arguments.
func (d *Dispatcher) Call(ctx context.Context, path string, args ...string) (any, error) {
	route, err := Resolve(path)
	if err != nil {
		return nil, err
	}
	out, err := d.call(ctx, route, args, 0)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// call is the shared protocol path used by Call and the Pager.
func (d *Dispatcher) call(ctx context.Context, route Route, args []string, page int) (Outcome, error) {
	if d.token != nil {
		out, err := d.invoke(ctx, d.token, route, args, page)
		if err != nil {
			return Outcome{}, err
		}
		return out, guard(out.Value)
	}
	if d.pool == nil {
		return Outcome{}, ErrNoCredentials
	}

	for attempt := 0; ; attempt++ {
		cred := d.pool.Current(route.Scope)
		if cred == nil {
			var err error
			cred, err = d.pool.GetToken(route.Scope)
			if err != nil {
				return Outcome{}, err
			}
		}

		if wait := cred.Wait(route.Scope, d.now()); wait > 0 {
			if attempt >= maxRetries {
				return Outcome{}, fmt.Errorf("%w: %s still limited after %d attempts", ErrRetryExhausted, route, attempt)
			}
			d.warn("scope limited, sleeping", "scope", route.Scope, "id", cred.ShortID(), "wait", wait)
			d.sleep(wait)
			continue
		}

		out, err := d.invoke(ctx, cred, route, args, page)
		if err == nil {
			return out, guard(out.Value)
		}

		reset, limited := rateLimitReset(err, d.now())
		if !limited {
			return Outcome{}, err
		}
		if attempt >= maxRetries {
			return Outcome{}, fmt.Errorf("%w: %s rate limited after %d rotations", ErrRetryExhausted, route, attempt)
		}
		d.warn("rate limit hit, rotating credential", "scope", route.Scope, "id", cred.ShortID(), "reset", reset.Unix())
		if _, err := d.pool.NextToken(route.Scope, reset.Unix()); err != nil {
			return Outcome{}, err
		}
	}
}

// invoke authenticates and performs the call, re-polling bounded times while
// the API answers 202.
func (d *Dispatcher) invoke(ctx context.Context, cred *credential.Credential, route Route, args []string, page int) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		out, err := d.inv.Invoke(ctx, cred, route, args, page)
		if err != nil {
			return Outcome{}, err
		}
		if out.StatusCode != http.StatusAccepted {
			return out, nil
		}
		if attempt >= maxRetries {
			return Outcome{}, fmt.Errorf("%w: %s still computing after %d retries", ErrRetryExhausted, route, attempt)
		}
		d.debug("api answered 202, retrying", "route", route.String(), "attempt", attempt+1)
		d.sleep(acceptedBackoff)
	}
}

// rateLimitReset extracts a reset instant from a rate-limit failure. Typed
// errors carry the reset; a textual "rate limit exceeded" assumes a
// ten-minute window.
func rateLimitReset(err error, now time.Time) (time.Time, bool) {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return limited.Reset, true
	}
	if strings.Contains(err.Error(), "rate limit exceeded") {
		return now.Add(assumedRateLimitWindow), true
	}
	return time.Time{}, false
}

// guard rejects results that decoded to something other than a JSON scalar
// or collection.
func guard(v any) error {
	switch v.(type) {
	case nil, bool, string, float64, int, int64, map[string]any, []any:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedResponse, v)
	}
}

func (d *Dispatcher) warn(msg string, keyvals ...interface{}) {
	if d.log != nil {
		d.log.Warn(msg, keyvals...)
	}
}

func (d *Dispatcher) debug(msg string, keyvals ...interface{}) {
	if d.log != nil {
		d.log.Debug(msg, keyvals...)
	}
}
