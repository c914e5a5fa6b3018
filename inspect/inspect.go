// Package inspect drives a full repository inspection: API metadata through
// the dispatcher, HTML counters through the extractor, scores through the
// scoring engine, merged into one plain JSON-shaped result.
package inspect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urizennnn/repograde/pham"
	"github.com/urizennnn/repograde/scrape"
)

// APIError marks a GitHub API failure during inspection.
type APIError struct {
	Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("inspect api: %v", e.Err) }

func (e *APIError) Unwrap() error { return e.Err }

// CrawlerError marks an HTML extraction or scoring failure during inspection.
type CrawlerError struct {
	Err error
}

func (e *CrawlerError) Error() string { return fmt.Sprintf("inspect crawler: %v", e.Err) }

func (e *CrawlerError) Unwrap() error { return e.Err }

// Caller is the dispatcher surface the inspector needs.
type Caller interface {
	Call(ctx context.Context, path string, args ...string) (any, error)
}

// StatsFetcher is the HTML extractor surface the inspector needs.
type StatsFetcher interface {
	Stats(ctx context.Context, htmlURL string) (scrape.Stats, error)
}

// Logger is the optional structured sink. A *charmbracelet/log.Logger
// satisfies it.
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// Inspector fuses API and HTML views of a repository into a scored result.
type Inspector struct {
	api  Caller
	html StatsFetcher
	now  func() time.Time
	log  Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithClock replaces the wall clock, used by tests to freeze scoring.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// WithLogger attaches an optional structured logger.
func WithLogger(l Logger) Option {
	return func(i *Inspector) { i.log = l }
}

// New returns an Inspector over the given dispatcher and extractor.
func New(api Caller, html StatsFetcher, opts ...Option) *Inspector {
	i := &Inspector{api: api, html: html, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect fetches, scrapes and scores owner/name. The returned map is the
// repository JSON with URL keys stripped, augmented with counters, languages,
// scores, their average and the highlight.
func (i *Inspector) Inspect(ctx context.Context, owner, name string) (map[string]any, error) {
	repoAny, err := i.api.Call(ctx, "repo/show", owner, name)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	repo, ok := repoAny.(map[string]any)
	if !ok {
		return nil, &APIError{Err: fmt.Errorf("repo/show returned %T, want an object", repoAny)}
	}
	participationAny, err := i.api.Call(ctx, "repo/participation", owner, name)
	if err != nil {
		return nil, &APIError{Err: err}
	}

	htmlURL, ok := repo["html_url"].(string)
	if !ok || htmlURL == "" {
		return nil, &CrawlerError{Err: fmt.Errorf("repository %s/%s has no html_url", owner, name)}
	}
	stats, err := i.html.Stats(ctx, htmlURL)
	if err != nil {
		return nil, &CrawlerError{Err: err}
	}

	in := pham.Inputs{
		Stargazers:    asInt(repo["stargazers_count"]),
		Subscribers:   asInt(repo["subscribers_count"]),
		Forks:         asInt(repo["forks_count"]),
		SizeKB:        asInt(repo["size"]),
		CreatedAt:     asTime(repo["created_at"]),
		PushedAt:      asTime(repo["pushed_at"]),
		UpdatedAt:     asTime(repo["updated_at"]),
		Participation: participationWeeks(participationAny),
		Commits:       stats.Commits,
		Releases:      stats.Releases,
		Contributors:  stats.Contributors,
	}
	scored, err := pham.Compute(in, i.now())
	if err != nil {
		return nil, &CrawlerError{Err: err}
	}

	result, _ := strip(repo).(map[string]any)
	result["license_id"] = licenseID(repo)
	result["commits_count"] = stats.Commits
	result["branches_count"] = stats.Branches
	result["tags_count"] = stats.Tags
	result["releases_count"] = stats.Releases
	result["contributors_count"] = stats.Contributors
	result["languages"] = languageList(stats.Languages)
	result["scores"] = map[string]any{
		"p": scored.Scores.P,
		"h": scored.Scores.H,
		"a": scored.Scores.A,
		"m": scored.Scores.M,
	}
	result["scores_avg"] = scored.Average
	result["highlight"] = highlightMap(scored.Highlight)

	i.debug("inspection complete", "repo", owner+"/"+name,
		"avg", scored.Average, "highlight", scored.Highlight.Type)
	return result, nil
}

// strip removes every key ending in _url from nested objects, keeping
// avatar_url and renaming html_url to url. Applying it twice is the same as
// applying it once.
func strip(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if strings.HasSuffix(k, "_url") {
				continue
			}
			out[k] = strip(inner)
		}
		if inner, ok := val["avatar_url"]; ok {
			out["avatar_url"] = strip(inner)
		}
		// The renamed html_url wins over any plain url key.
		if inner, ok := val["html_url"]; ok {
			out["url"] = strip(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = strip(inner)
		}
		return out
	default:
		return v
	}
}

// licenseID pulls the SPDX id out of the license object, normalizing the
// placeholder values GitHub uses for unlicensed repositories to empty.
func licenseID(repo map[string]any) string {
	lic, _ := repo["license"].(map[string]any)
	id, _ := lic["spdx_id"].(string)
	switch strings.ToLower(id) {
	case "", "none", "noassertion":
		return ""
	}
	return id
}

// participationWeeks reads the weekly commit counts from the participation
// response's "all" series. Anything malformed yields an empty series.
func participationWeeks(v any) []int {
	obj, _ := v.(map[string]any)
	series, _ := obj["all"].([]any)
	weeks := make([]int, 0, len(series))
	for _, w := range series {
		weeks = append(weeks, asInt(w))
	}
	return weeks
}

func languageList(langs []scrape.Language) []any {
	out := make([]any, len(langs))
	for i, l := range langs {
		out[i] = map[string]any{"name": l.Name, "percent": l.Percent}
	}
	return out
}

func highlightMap(h pham.Highlight) map[string]any {
	out := map[string]any{"type": h.Type, "message": h.Message}
	if h.Component != "" {
		out["component"] = h.Component
	}
	return out
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (i *Inspector) debug(msg string, keyvals ...interface{}) {
	if i.log != nil {
		i.log.Debug(msg, keyvals...)
	}
}
