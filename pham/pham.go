// Package pham scores a repository along four dimensions: Popularity,
// Hotness, Activity, Maturity. The calibration constants are frozen; scores
// are meant for relative ranking and are deliberately unclamped.
package pham

import (
	"math"
	"time"
)

// Calibration constants. Changing any of these changes every score in the
// fleet, so they only move together with a recalibration pass.
const (
	popStarRef     = 50000
	popSubRef      = 5000
	popForkRef     = 10000
	hotRecentWeeks = 4
	hotHalfLife    = 4
	hotDecayWeeks  = 250
	hotYouthRamp   = 26
	hotYouthFloor  = 0.35
	hotPopScale    = 400
	hotStarThresh  = 400
	actAnnualRef   = 1200
	matCommitsRef  = 5000
	matReleasesRef = 100
	matContribRef  = 200
	matAgeRefWeeks = 208
	matSizeRef     = 500
)

const (
	secondsPerWeek = 604800
	epsilon        = 1e-9
)

// Inputs is the merged view of API metadata and scraped counters a score is
// computed from. SizeKB is the raw API size field; Participation holds up to
// 52 weekly commit counts, oldest first. A zero PushedAt falls back to
// UpdatedAt, and a zero UpdatedAt to an assumed 52 weeks since the last push.
type Inputs struct {
	Stargazers    int
	Subscribers   int
	Forks         int
	SizeKB        int
	CreatedAt     time.Time
	PushedAt      time.Time
	UpdatedAt     time.Time
	Participation []int
	Commits       int
	Releases      int
	Contributors  int
}

// Scores is the rounded four-dimensional bundle.
type Scores struct {
	P int `json:"p"`
	H int `json:"h"`
	A int `json:"a"`
	M int `json:"m"`
}

// Result pairs the scores with their average and the narrative highlight.
// The average excludes hotness: it is a trait of the moment, not of the
// repository.
type Result struct {
	Scores    Scores
	Average   int
	Highlight Highlight
}

// derived carries the intermediate quantities shared between the formulas
// and the highlight builders.
type derived struct {
	ageWeeks       float64
	weeksSincePush float64
	recentCommits  int
	annualCommits  int
	activeWeeks    int
	sizeMB         float64
	ratio          float64
	popularity     float64
	hotness        float64
	activity       float64
	maturity       float64
}

// Compute scores in at the instant now. It fails only when no dimension can
// produce a highlight.
func Compute(in Inputs, now time.Time) (Result, error) {
	d := derive(in, now)

	d.popularity = 100 * (6*logNorm(float64(in.Stargazers), popStarRef) +
		2*logNorm(float64(in.Subscribers), popSubRef) +
		2*logNorm(float64(in.Forks), popForkRef))

	recency := math.Pow(0.5, d.weeksSincePush/hotHalfLife)
	popMomentum := math.Min(1, d.popularity/math.Max(hotPopScale, 1))
	avgWeekly := 0.0
	if d.annualCommits > 0 {
		avgWeekly = float64(d.annualCommits) / 52
	}
	baseline := math.Max(1, avgWeekly*hotRecentWeeks)
	d.ratio = float64(d.recentCommits) / baseline
	momentum := 0.0
	if d.ratio > 0 {
		momentum = math.Log(1 + d.ratio)
	}
	agePenalty := 1 / (1 + d.ageWeeks/hotDecayWeeks)
	youthDamping := hotYouthFloor
	if d.ageWeeks > 0 {
		youthDamping = clamp(d.ageWeeks/math.Max(hotYouthRamp, 1), hotYouthFloor, 1)
	}
	d.hotness = 100 * (1.5*recency + 1.5*momentum + 7*popMomentum) * agePenalty * youthDamping

	d.activity = 100 * (6.5*powNorm(float64(d.annualCommits), actAnnualRef, 0.6, 0) +
		3.5*linNorm(float64(d.activeWeeks), 52))

	d.maturity = 100 * (3.5*powNorm(float64(in.Commits), matCommitsRef, 1.2, 3.5) +
		2.5*powNorm(float64(in.Contributors), matContribRef, 1.15, 3.0) +
		2.0*powNorm(float64(in.Releases), matReleasesRef, 1.1, 3.0) +
		1.5*logNorm(d.ageWeeks, matAgeRefWeeks) +
		0.5*sizeNorm(d.sizeMB))

	scores := Scores{
		P: int(math.Round(d.popularity)),
		H: int(math.Round(d.hotness)),
		A: int(math.Round(d.activity)),
		M: int(math.Round(d.maturity)),
	}
	highlight, err := buildHighlight(in, d)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Scores:    scores,
		Average:   int(math.Round(float64(scores.P+scores.A+scores.M) / 3)),
		Highlight: highlight,
	}, nil
}

func derive(in Inputs, now time.Time) derived {
	d := derived{sizeMB: float64(in.SizeKB) / 1000}

	if !in.CreatedAt.IsZero() {
		d.ageWeeks = math.Max(0, now.Sub(in.CreatedAt).Seconds()/secondsPerWeek)
	}
	switch {
	case !in.PushedAt.IsZero():
		d.weeksSincePush = math.Max(0, now.Sub(in.PushedAt).Seconds()/secondsPerWeek)
	case !in.UpdatedAt.IsZero():
		d.weeksSincePush = math.Max(0, now.Sub(in.UpdatedAt).Seconds()/secondsPerWeek)
	default:
		d.weeksSincePush = 52
	}

	start := len(in.Participation) - hotRecentWeeks
	if start < 0 {
		start = 0
	}
	for i, n := range in.Participation {
		d.annualCommits += n
		if n > 0 {
			d.activeWeeks++
		}
		if i >= start {
			d.recentCommits += n
		}
	}
	return d
}

func logNorm(v, ref float64) float64 {
	if v <= 0 {
		return 0
	}
	if ref <= 0 {
		return math.Log(1 + v)
	}
	return math.Log(1+v) / math.Log(1+ref)
}

func linNorm(v, ref float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / math.Max(ref, epsilon)
}

// powNorm raises the capped ratio v/ref to exp. A limit of zero means
// uncapped.
func powNorm(v, ref, exp, limit float64) float64 {
	if v <= 0 {
		return 0
	}
	r := v / math.Max(ref, 1)
	if limit > 0 && r > limit {
		r = limit
	}
	return math.Pow(r, exp)
}

func sizeNorm(mb float64) float64 {
	if mb <= 0 {
		return 0
	}
	if mb <= matSizeRef {
		return math.Pow(mb/matSizeRef, 0.7)
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
