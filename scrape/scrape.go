// Package scrape pulls repository counters and the language breakdown out of
// GitHub's HTML pages. It exists to save API quota: the counters it reads are
// not all available from the REST surface in one round trip. GitHub's markup
// is not a contract, so extraction failures are reported precisely instead of
// being papered over.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/urizennnn/repograde/cache"
	"github.com/urizennnn/repograde/ratelimit"
)

// ErrIncomplete marks a page pair that yielded fewer than the five expected
// counters.
var ErrIncomplete = errors.New("html extraction incomplete")

// FetchError wraps a network or HTTP failure on an HTML page and carries the
// URL that failed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// Language is one entry of the repository language breakdown.
type Language struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// Stats holds the counters scraped from a repository page and its companion
// branch-and-tag-count page.
type Stats struct {
	Commits      int
	Branches     int
	Tags         int
	Releases     int
	Contributors int
	Languages    []Language
}

// Logger is the optional structured sink. A *charmbracelet/log.Logger
// satisfies it.
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

var (
	reCommits      = regexp.MustCompile(`(?i)([\d,]+)\s+commits?`)
	reReleases     = regexp.MustCompile(`(?i)releases\s+([\d,]+)`)
	reContributors = regexp.MustCompile(`(?i)contributors\s+([\d,]+)`)
	reBranches     = regexp.MustCompile(`(?i)([\d,]+)\s+branch(?:es)?`)
	reTags         = regexp.MustCompile(`(?i)([\d,]+)\s+tags?`)
	reLanguage     = regexp.MustCompile(`([\p{L}+#\-\s]+)\s+([\d.]+)%`)
)

// Extractor fetches and parses repository HTML pages. Fetches go through the
// page throttle and a TTL page cache when either is configured.
type Extractor struct {
	http    *http.Client
	limiter *ratelimit.Throttle
	pages   *cache.Cache[string]
	pageTTL time.Duration
	log     Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimiter attaches the client-side page throttle.
func WithLimiter(t *ratelimit.Throttle) Option {
	return func(e *Extractor) { e.limiter = t }
}

// WithCache attaches a page cache; fetched bodies are kept for ttl.
func WithCache(c *cache.Cache[string], ttl time.Duration) Option {
	return func(e *Extractor) { e.pages, e.pageTTL = c, ttl }
}

// WithLogger attaches an optional structured logger.
func WithLogger(l Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// New returns an Extractor over client. A nil client falls back to
// http.DefaultClient.
func New(client *http.Client, opts ...Option) *Extractor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Extractor{http: client}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats fetches htmlURL and its /branch-and-tag-count companion and extracts
// the five counters plus the language breakdown. Network failures surface as
// *FetchError; fewer than five populated counters surface as ErrIncomplete.
func (e *Extractor) Stats(ctx context.Context, htmlURL string) (Stats, error) {
	repoPage, err := e.page(ctx, htmlURL)
	if err != nil {
		return Stats{}, err
	}
	countPage, err := e.page(ctx, strings.TrimRight(htmlURL, "/")+"/branch-and-tag-count")
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	populated := 0

	repoDoc, err := goquery.NewDocumentFromReader(strings.NewReader(repoPage))
	if err != nil {
		return Stats{}, &FetchError{URL: htmlURL, Err: err}
	}

	// Counters live in link text inside the main container. Releases and
	// contributors default to zero when the markup omits them.
	stats.Releases, stats.Contributors = 0, 0
	populated += 2
	commitsSeen := false
	repoDoc.Find("main a").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		if m := reCommits.FindStringSubmatch(text); m != nil && !commitsSeen {
			if n, ok := parseCount(m[1]); ok {
				stats.Commits = n
				commitsSeen = true
				populated++
			}
		}
		if m := reReleases.FindStringSubmatch(text); m != nil {
			if n, ok := parseCount(m[1]); ok {
				stats.Releases = n
			}
		}
		if m := reContributors.FindStringSubmatch(text); m != nil {
			if n, ok := parseCount(m[1]); ok {
				stats.Contributors = n
			}
		}
	})
	stats.Languages = languages(repoDoc)

	countDoc, err := goquery.NewDocumentFromReader(strings.NewReader(countPage))
	if err != nil {
		return Stats{}, &FetchError{URL: htmlURL, Err: err}
	}
	countText := countDoc.Text()
	if m := reBranches.FindStringSubmatch(countText); m != nil {
		if n, ok := parseCount(m[1]); ok {
			stats.Branches = n
			populated++
		}
	}
	if m := reTags.FindStringSubmatch(countText); m != nil {
		if n, ok := parseCount(m[1]); ok {
			stats.Tags = n
			populated++
		}
	}

	if populated < 5 {
		return Stats{}, fmt.Errorf("%w: %d of 5 counters for %s", ErrIncomplete, populated, htmlURL)
	}
	e.debug("stats extracted", "url", htmlURL,
		"commits", stats.Commits, "branches", stats.Branches, "tags", stats.Tags,
		"releases", stats.Releases, "contributors", stats.Contributors,
		"languages", len(stats.Languages))
	return stats, nil
}

// page returns the body at url, consulting the cache before the network and
// the throttle before every real fetch.
func (e *Extractor) page(ctx context.Context, url string) (string, error) {
	if e.pages != nil {
		if body, ok := e.pages.Get(url); ok {
			e.debug("page cache hit", "url", url)
			return body, nil
		}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	body := string(data)
	if e.pages != nil {
		e.pages.Set(url, body, e.pageTTL)
	}
	return body, nil
}

// languages reads the list under the heading "Languages". Items that do not
// match the name-percent shape are skipped.
func languages(doc *goquery.Document) []Language {
	var langs []Language
	doc.Find("h2").Each(func(_ int, heading *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(heading.Text()), "Languages") {
			return
		}
		heading.Parent().Find("li").Each(func(_ int, item *goquery.Selection) {
			m := reLanguage.FindStringSubmatch(item.Text())
			if m == nil {
				return
			}
			percent, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return
			}
			langs = append(langs, Language{Name: strings.TrimSpace(m[1]), Percent: percent})
		})
	})
	return langs
}

// parseCount strips everything but digits and converts.
func parseCount(s string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Extractor) debug(msg string, keyvals ...interface{}) {
	if e.log != nil {
		e.log.Debug(msg, keyvals...)
	}
}
