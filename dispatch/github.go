package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/urizennnn/repograde/credential"
	"github.com/urizennnn/repograde/ratelimit"
)

// Outcome is the result of one raw API invocation.
type Outcome struct {
	Value      any
	StatusCode int

	NextPage  int
	PrevPage  int
	FirstPage int
	LastPage  int
}

// RateLimitedError signals quota exhaustion for the invoked scope. It is a
// recoverable rotation signal, not a terminal failure.
type RateLimitedError struct {
	Reset time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.Reset.UTC().Format(time.RFC3339))
}

// Invoker performs one authenticated API attempt. The production
// implementation builds a fresh go-github client per call so credentials are
// never carried across rotations; tests substitute stubs.
type Invoker interface {
	Invoke(ctx context.Context, cred *credential.Credential, route Route, args []string, page int) (Outcome, error)
}

// GitHubInvoker is the go-github-backed Invoker.
type GitHubInvoker struct {
	http    *http.Client
	limiter *ratelimit.Throttle
	baseURL *url.URL
	now     func() time.Time
}

// GitHubOption configures a GitHubInvoker.
type GitHubOption func(*GitHubInvoker)

// WithLimiter throttles outgoing API attempts with a client-side throttle.
func WithLimiter(t *ratelimit.Throttle) GitHubOption {
	return func(g *GitHubInvoker) { g.limiter = t }
}

// WithBaseURL points the invoker at an alternate API endpoint, used by tests
// against an httptest server. The URL must end with a slash.
func WithBaseURL(raw string) GitHubOption {
	return func(g *GitHubInvoker) {
		if u, err := url.Parse(raw); err == nil {
			g.baseURL = u
		}
	}
}

// NewGitHubInvoker builds an invoker over the given base HTTP client. A nil
// client falls back to http.DefaultClient; callers normally pass one with the
// configured timeout.
func NewGitHubInvoker(httpClient *http.Client, opts ...GitHubOption) *GitHubInvoker {
	g := &GitHubInvoker{http: httpClient, now: time.Now}
	if g.http == nil {
		g.http = http.DefaultClient
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke authenticates a fresh client for cred, runs the routed method once
// and interprets the response. 202 surfaces as an Outcome with StatusCode
// 202; quota exhaustion surfaces as *RateLimitedError.
func (g *GitHubInvoker) Invoke(ctx context.Context, cred *credential.Credential, route Route, args []string, page int) (Outcome, error) {
	ad, err := lookup(route)
	if err != nil {
		return Outcome{}, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Outcome{}, err
	}

	gh := g.clientFor(ctx, cred)
	value, resp, err := ad(ctx, gh, args, page)
	out := Outcome{Value: value}
	if resp != nil {
		out.StatusCode = resp.StatusCode
		out.NextPage = resp.NextPage
		out.PrevPage = resp.PrevPage
		out.FirstPage = resp.FirstPage
		out.LastPage = resp.LastPage
	}
	if err != nil {
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			// Scheduled for background computation; the dispatcher
			// retries on the status code.
			out.StatusCode = http.StatusAccepted
			return out, nil
		}
		return out, g.translate(err)
	}
	return out, nil
}

// clientFor builds the authenticated client for one call. Anonymous means
// explicit de-authentication: a bare client over the base transport.
func (g *GitHubInvoker) clientFor(ctx context.Context, cred *credential.Credential) *github.Client {
	var gh *github.Client
	switch cred.Kind {
	case credential.KindPersonal:
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.http)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token})
		gh = github.NewClient(oauth2.NewClient(ctx, src))
	case credential.KindClientSecret:
		tr := &github.BasicAuthTransport{
			Username:  cred.ClientID,
			Password:  cred.ClientSecret,
			Transport: g.http.Transport,
		}
		gh = github.NewClient(&http.Client{Transport: tr, Timeout: g.http.Timeout})
	default:
		gh = github.NewClient(g.http)
	}
	if g.baseURL != nil {
		gh.BaseURL = g.baseURL
	}
	return gh
}

// translate maps go-github error types onto the dispatcher's protocol
// signals.
func (g *GitHubInvoker) translate(err error) error {
	var limited *github.RateLimitError
	if errors.As(err, &limited) {
		return &RateLimitedError{Reset: limited.Rate.Reset.Time}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		reset := g.now().Add(10 * time.Minute)
		if abuse.RetryAfter != nil {
			reset = g.now().Add(*abuse.RetryAfter)
		}
		return &RateLimitedError{Reset: reset}
	}
	return err
}
