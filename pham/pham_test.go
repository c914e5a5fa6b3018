package pham

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weeksAgo(now time.Time, weeks float64) time.Time {
	return now.Add(-time.Duration(weeks * 7 * 24 * float64(time.Hour)))
}

// referenceInputs hits every calibration reference exactly: 48 weeks of 23
// commits plus 4 weeks of 24 sum to 1200 across 52 active weeks.
func referenceInputs(now time.Time) Inputs {
	participation := make([]int, 52)
	for i := range participation {
		participation[i] = 23
	}
	for i := 48; i < 52; i++ {
		participation[i] = 24
	}
	return Inputs{
		Stargazers:    50000,
		Subscribers:   5000,
		Forks:         10000,
		SizeKB:        500_000,
		CreatedAt:     weeksAgo(now, 208),
		PushedAt:      now,
		Participation: participation,
		Commits:       5000,
		Releases:      100,
		Contributors:  200,
	}
}

func TestComputeReference(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	res, err := Compute(referenceInputs(now), now)
	require.NoError(t, err)

	assert.Equal(t, 1000, res.Scores.P)
	assert.Equal(t, 1000, res.Scores.A)
	assert.Equal(t, 1000, res.Scores.M)
	assert.Equal(t, 1000, res.Average)
	// Hotness is damped by the age penalty at 208 weeks even with maximal
	// recency and popularity momentum.
	assert.Equal(t, 522, res.Scores.H)

	assert.Equal(t, "popularity", res.Highlight.Type)
	assert.Equal(t, "starred 50k times", res.Highlight.Message)
	assert.Empty(t, res.Highlight.Component)
}

func TestYouthDampingFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	in := Inputs{
		CreatedAt: weeksAgo(now, 0.5),
		PushedAt:  now,
	}
	res, err := Compute(in, now)
	require.NoError(t, err)

	// 100 * 1.5 * agePenalty(0.5/250) * 0.35, the floor, not 0.5/26.
	assert.Equal(t, 52, res.Scores.H)
}

func TestComputeDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, err := Compute(referenceInputs(now), now)
	require.NoError(t, err)
	b, err := Compute(referenceInputs(now), now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPushedAtFallsBackToUpdatedAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	in := Inputs{
		CreatedAt: weeksAgo(now, 300),
		UpdatedAt: now,
	}
	res, err := Compute(in, now)
	require.NoError(t, err)

	// Recency came from UpdatedAt, so the hotness builder saw a fresh push.
	assert.Equal(t, "hotness", res.Highlight.Type)
	assert.Equal(t, "pushed within the last week", res.Highlight.Message)
}

func TestMissingTimestampsAssumeStalePush(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	stale := Inputs{CreatedAt: weeksAgo(now, 300)}
	fresh := stale
	fresh.PushedAt = now

	staleRes, err := Compute(stale, now)
	require.NoError(t, err)
	freshRes, err := Compute(fresh, now)
	require.NoError(t, err)
	assert.Less(t, staleRes.Scores.H, freshRes.Scores.H)
}

func TestAllZeroInputs(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	res, err := Compute(Inputs{}, now)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Scores.P)
	assert.Equal(t, 0, res.Scores.A)
	assert.Equal(t, 0, res.Scores.M)
	assert.Equal(t, 0, res.Average)
	assert.Equal(t, "popularity", res.Highlight.Type)
	assert.Equal(t, "starred 0 times", res.Highlight.Message)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, 0.0, logNorm(0, 100))
	assert.Equal(t, 1.0, logNorm(100, 100))
	assert.Equal(t, 0.0, linNorm(-5, 52))
	assert.Equal(t, 1.0, linNorm(52, 52))
	assert.Equal(t, 1.0, powNorm(5000, 5000, 1.2, 3.5))
	assert.Equal(t, 0.0, powNorm(0, 5000, 1.2, 3.5))
	// The cap bites before the exponent.
	assert.InDelta(t, 4.50, powNorm(50_000, 5000, 1.2, 3.5), 0.01)
	assert.Equal(t, 1.0, sizeNorm(500))
	assert.Equal(t, 1.0, sizeNorm(900))
	assert.Equal(t, 0.0, sizeNorm(0))
}
