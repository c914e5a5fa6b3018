package pham

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrHighlightUnavailable is returned when no dimension yields a highlight.
var ErrHighlightUnavailable = errors.New("no dimension produced a highlight")

// Highlight is the one-line narrative attached to a score bundle. Component
// is set only for maturity highlights.
type Highlight struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Component string `json:"component,omitempty"`
}

// buildHighlight walks the dimensions from highest raw score to lowest and
// returns the first highlight a dimension yields. Ties keep the
// popularity, hotness, activity, maturity order.
func buildHighlight(in Inputs, d derived) (Highlight, error) {
	dims := []struct {
		raw   float64
		build func() *Highlight
	}{
		{d.popularity, func() *Highlight { return popularityHighlight(in) }},
		{d.hotness, func() *Highlight { return hotnessHighlight(in, d) }},
		{d.activity, func() *Highlight { return activityHighlight(d) }},
		{d.maturity, func() *Highlight { return maturityHighlight(in, d) }},
	}
	sort.SliceStable(dims, func(i, j int) bool { return dims[i].raw > dims[j].raw })
	for _, dim := range dims {
		if h := dim.build(); h != nil {
			return *h, nil
		}
	}
	return Highlight{}, ErrHighlightUnavailable
}

func popularityHighlight(in Inputs) *Highlight {
	return &Highlight{
		Type:    "popularity",
		Message: fmt.Sprintf("starred %s times", humanCount(in.Stargazers)),
	}
}

// hotnessHighlight is the only builder allowed to decline: a repository that
// is neither starred, freshly pushed, accelerating, nor recently active has
// nothing hot to say.
func hotnessHighlight(in Inputs, d derived) *Highlight {
	switch {
	case in.Stargazers >= hotStarThresh:
		return &Highlight{
			Type:    "hotness",
			Message: fmt.Sprintf("trending with %s stars", humanCount(in.Stargazers)),
		}
	case d.weeksSincePush <= 1:
		return &Highlight{Type: "hotness", Message: "pushed within the last week"}
	case d.ratio >= 1.2:
		return &Highlight{
			Type:    "hotness",
			Message: fmt.Sprintf("commit pace up %sx", trimDecimal(d.ratio)),
		}
	case d.recentCommits > hotRecentWeeks:
		return &Highlight{
			Type:    "hotness",
			Message: fmt.Sprintf("%d commits in the last %d weeks", d.recentCommits, hotRecentWeeks),
		}
	}
	return nil
}

func activityHighlight(d derived) *Highlight {
	weeks := fmt.Sprintf("%d active weeks", d.activeWeeks)
	if d.activeWeeks == 1 {
		weeks = "1 active week"
	}
	return &Highlight{
		Type:    "activity",
		Message: fmt.Sprintf("%s commits last year across %s", humanCount(d.annualCommits), weeks),
	}
}

func maturityHighlight(in Inputs, d derived) *Highlight {
	commits := powNorm(float64(in.Commits), matCommitsRef, 1.2, 3.5)
	contributors := powNorm(float64(in.Contributors), matContribRef, 1.15, 3.0)
	releases := powNorm(float64(in.Releases), matReleasesRef, 1.1, 3.0)

	switch {
	case commits >= contributors && commits >= releases:
		return &Highlight{
			Type:      "maturity",
			Component: "commits",
			Message:   fmt.Sprintf("%s commits over %s", humanCount(in.Commits), humanAge(d.ageWeeks)),
		}
	case contributors >= releases:
		return &Highlight{
			Type:      "maturity",
			Component: "contributors",
			Message:   fmt.Sprintf("%s contributors", humanCount(in.Contributors)),
		}
	default:
		return &Highlight{
			Type:      "maturity",
			Component: "releases",
			Message:   fmt.Sprintf("%s releases", humanCount(in.Releases)),
		}
	}
}

// humanCount renders n plainly below a thousand and with a trimmed
// one-decimal k or m suffix above.
func humanCount(n int) string {
	switch {
	case n < 1000:
		return strconv.Itoa(n)
	case n < 1_000_000:
		return trimDecimal(float64(n)/1000) + "k"
	default:
		return trimDecimal(float64(n)/1_000_000) + "m"
	}
}

// humanAge buckets weeks into years, months, or weeks.
func humanAge(weeks float64) string {
	switch {
	case weeks >= 260:
		return fmt.Sprintf("%d years", int(math.Round(weeks/52)))
	case weeks >= 104:
		return fmt.Sprintf("%s years", trimDecimal(weeks/52))
	case weeks >= 52, weeks >= 8:
		months := int(math.Round(weeks / 4.345))
		if months == 1 {
			return "1 month"
		}
		return fmt.Sprintf("%d months", months)
	default:
		w := int(math.Round(weeks))
		if w == 1 {
			return "1 week"
		}
		return fmt.Sprintf("%d weeks", w)
	}
}

// trimDecimal formats v with one decimal place and drops a trailing ".0".
func trimDecimal(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0")
}
