package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urizennnn/repograde/credential"
)

func pageOutcome(items []any, next, last int) func() (Outcome, error) {
	return func() (Outcome, error) {
		return Outcome{Value: items, StatusCode: 200, NextPage: next, LastPage: last}, nil
	}
}

func TestPagerFetchAll(t *testing.T) {
	clock := newFakeClock()
	p := newPool(t, clock, mustPAT(t, "A"))
	inv := &stubInvoker{script: []func() (Outcome, error){
		pageOutcome([]any{"a", "b"}, 2, 3),
		pageOutcome([]any{"c"}, 3, 3),
		pageOutcome([]any{"d"}, 0, 0),
	}}
	d := New(inv, WithPool(p), WithClockAndSleep(clock.now, clock.sleep))

	pager, err := d.Page("repo/commits", "o", "r")
	require.NoError(t, err)

	all, err := pager.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, all)

	// Page numbers flowed into the underlying calls.
	require.Len(t, inv.calls, 3)
	assert.Equal(t, 0, inv.calls[0].page)
	assert.Equal(t, 2, inv.calls[1].page)
	assert.Equal(t, 3, inv.calls[2].page)
}

func TestPagerHasNext(t *testing.T) {
	clock := newFakeClock()
	p := newPool(t, clock, mustPAT(t, "A"))
	inv := &stubInvoker{script: []func() (Outcome, error){
		pageOutcome([]any{"a"}, 2, 2),
		pageOutcome([]any{"b"}, 0, 0),
	}}
	d := New(inv, WithPool(p), WithClockAndSleep(clock.now, clock.sleep))

	pager, err := d.Page("repo/tags", "o", "r")
	require.NoError(t, err)
	assert.False(t, pager.HasNext())

	_, err = pager.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, pager.HasNext())

	_, err = pager.FetchNext(context.Background())
	require.NoError(t, err)
	assert.False(t, pager.HasNext())
}

func TestPagerFetchNextWithoutFetch(t *testing.T) {
	clock := newFakeClock()
	p := newPool(t, clock, mustPAT(t, "A"))
	d := New(&stubInvoker{script: []func() (Outcome, error){ok(nil)}}, WithPool(p), WithClockAndSleep(clock.now, clock.sleep))

	pager, err := d.Page("repo/tags", "o", "r")
	require.NoError(t, err)
	_, err = pager.FetchNext(context.Background())
	assert.ErrorIs(t, err, ErrNoPage)
	_, err = pager.FetchLast(context.Background())
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestPagerFetchLast(t *testing.T) {
	clock := newFakeClock()
	p := newPool(t, clock, mustPAT(t, "A"))
	inv := &stubInvoker{script: []func() (Outcome, error){
		pageOutcome([]any{"a"}, 2, 4),
		pageOutcome([]any{"z"}, 0, 4),
	}}
	d := New(inv, WithPool(p), WithClockAndSleep(clock.now, clock.sleep))

	pager, err := d.Page("repo/releases", "o", "r")
	require.NoError(t, err)
	_, err = pager.Fetch(context.Background())
	require.NoError(t, err)

	v, err := pager.FetchLast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"z"}, v)
	assert.Equal(t, 4, inv.calls[1].page)
}

func TestPagerGoesThroughRateLimitProtocol(t *testing.T) {
	clock := newFakeClock()
	a, b := mustPAT(t, "A"), mustPAT(t, "B")
	p := newPool(t, clock, a, b)
	inv := &stubInvoker{script: []func() (Outcome, error){
		limited(clock.now().Add(time.Hour)),
		pageOutcome([]any{"a"}, 0, 0),
	}}
	d := New(inv, WithPool(p), WithClockAndSleep(clock.now, clock.sleep))

	pager, err := d.Page("repo/commits", "o", "r")
	require.NoError(t, err)
	v, err := pager.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, v)
	assert.Equal(t, b.ID(), inv.calls[1].credID)
}

func TestPagerBadPath(t *testing.T) {
	d := New(&stubInvoker{script: []func() (Outcome, error){ok(nil)}}, WithToken(credential.NewAnonymous()))
	_, err := d.Page("repo")
	assert.ErrorIs(t, err, ErrBadPath)
}
