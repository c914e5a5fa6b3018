package pool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urizennnn/repograde/credential"
)

var frozen = time.Unix(1_700_000_000, 0)

func newStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.json")
	return New(path, WithClock(func() time.Time { return frozen }))
}

func pat(t *testing.T, token string) *credential.Credential {
	t.Helper()
	c, err := credential.NewPersonal(token)
	require.NoError(t, err)
	return c
}

func ids(creds []*credential.Credential) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		out[i] = c.ID()
	}
	return out
}

func TestAnonymousPushback(t *testing.T) {
	s := newStore(t)
	a, b := pat(t, "A"), pat(t, "B")
	require.NoError(t, s.SetTokens([]*credential.Credential{a, credential.NewAnonymous(), b}, false))

	got, err := s.Tokens()
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID(), b.ID(), "null"}, ids(got))
}

func TestIdentitiesUnique(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A"), pat(t, "A"), pat(t, "B")}, false))

	got, err := s.Tokens()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID(), got[1].ID())
}

func TestSetTokensPurge(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A"), pat(t, "B")}, false))
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "C")}, true))

	got, err := s.Tokens()
	require.NoError(t, err)
	assert.Equal(t, []string{pat(t, "C").ID()}, ids(got))
}

func TestMergeKeepsExistingState(t *testing.T) {
	s := newStore(t)
	a := pat(t, "A")
	a.SetReset(credential.ScopeCore, frozen.Unix()+300)
	require.NoError(t, s.SetTokens([]*credential.Credential{a}, false))

	// Merging a fresh credential with the same identity must not clobber
	// the stored reset state.
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A")}, false))

	got, err := s.Tokens()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 300*time.Second, got[0].Wait(credential.ScopeCore, frozen))
}

func TestMergeIdempotent(t *testing.T) {
	s := newStore(t)
	batch := []*credential.Credential{pat(t, "A"), credential.NewAnonymous(), pat(t, "B")}

	require.NoError(t, s.SetTokens(batch, false))
	first, err := os.ReadFile(s.path)
	require.NoError(t, err)

	require.NoError(t, s.SetTokens(batch, false))
	second, err := os.ReadFile(s.path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSetTokensValidates(t *testing.T) {
	s := newStore(t)
	err := s.SetTokens([]*credential.Credential{pat(t, "A"), nil}, false)
	assert.Error(t, err)

	err = s.SetTokens([]*credential.Credential{{Kind: credential.Kind("bogus")}}, false)
	assert.Error(t, err)
}

func TestGetTokenEmptyPool(t *testing.T) {
	s := newStore(t)
	_, err := s.GetToken(credential.ScopeCore)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestGetTokenPrefersUsable(t *testing.T) {
	s := newStore(t)
	a, b := pat(t, "A"), pat(t, "B")
	a.SetReset(credential.ScopeCore, frozen.Unix()+300)
	require.NoError(t, s.SetTokens([]*credential.Credential{a, b}, false))

	got, err := s.GetToken(credential.ScopeCore)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), got.ID())
}

func TestRotationOnExpiry(t *testing.T) {
	s := newStore(t)
	a, b := pat(t, "A"), pat(t, "B")
	a.SetReset(credential.ScopeCore, frozen.Unix()+300)
	require.NoError(t, s.SetTokens([]*credential.Credential{a, b}, false))

	// B is the only usable credential.
	got, err := s.GetToken(credential.ScopeCore)
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())

	// With both waiting, the smallest wait wins.
	b.SetReset(credential.ScopeCore, frozen.Unix()+100)
	require.NoError(t, s.SetTokens([]*credential.Credential{a, b}, true))
	got, err = s.GetToken(credential.ScopeCore)
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())

	// Exhausting B until now+500 leaves A as the smallest wait.
	next, err := s.NextToken(credential.ScopeCore, frozen.Unix()+500)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), next.ID())

	// The stamped reset was persisted.
	snapshot, err := s.Tokens()
	require.NoError(t, err)
	byID := map[string]*credential.Credential{}
	for _, c := range snapshot {
		byID[c.ID()] = c
	}
	assert.Equal(t, 500*time.Second, byID[b.ID()].Wait(credential.ScopeCore, frozen))
}

func TestNextTokenBadReset(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A")}, false))
	_, err := s.GetToken(credential.ScopeCore)
	require.NoError(t, err)

	_, err = s.NextToken(credential.ScopeCore, frozen.Unix())
	assert.ErrorIs(t, err, ErrBadReset)
	_, err = s.NextToken(credential.ScopeCore, frozen.Unix()-5)
	assert.ErrorIs(t, err, ErrBadReset)
}

func TestNextTokenNoCurrent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A")}, false))

	_, err := s.NextToken(credential.ScopeCore, frozen.Unix()+60)
	assert.ErrorIs(t, err, ErrNoCurrent)
}

func TestCurrentIsPerScope(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A")}, false))
	_, err := s.GetToken(credential.ScopeSearch)
	require.NoError(t, err)

	// A selection for search does not establish a current for core.
	_, err = s.NextToken(credential.ScopeCore, frozen.Unix()+60)
	assert.ErrorIs(t, err, ErrNoCurrent)
}

func TestCorruptPool(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "not json", contents: "hello"},
		{name: "top level string", contents: `"hello"`},
		{name: "top level array", contents: `[1,2]`},
		{name: "non-credential value", contents: `{"x": 42}`},
		{name: "unknown kind", contents: `{"x": {"kind":"installation"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.WriteFile(s.path, []byte(tt.contents), 0o600))
			_, err := s.Tokens()
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestEmptyFileIsEmptyPool(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.path, nil, 0o600))
	got, err := s.Tokens()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMissingParentDirsCreated(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "a", "b", "pool.json"), WithClock(func() time.Time { return frozen }))
	require.NoError(t, s.SetTokens([]*credential.Credential{pat(t, "A")}, false))

	got, err := s.Tokens()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileIsAuthoritativeAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	clock := func() time.Time { return frozen }
	writer := New(path, WithClock(clock))
	reader := New(path, WithClock(clock))

	require.NoError(t, writer.SetTokens([]*credential.Credential{pat(t, "A")}, false))
	got, err := reader.Tokens()
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, writer.SetTokens([]*credential.Credential{pat(t, "B")}, false))
	got, err = reader.Tokens()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRoundTripPreservesResets(t *testing.T) {
	s := newStore(t)
	c, err := credential.NewClientSecret("id", "secret")
	require.NoError(t, err)
	c.SetReset(credential.ScopeCore, frozen.Unix()+120)
	c.SetReset(credential.ScopeSearch, frozen.Unix()+30)
	require.NoError(t, s.SetTokens([]*credential.Credential{c}, false))

	got, err := s.Tokens()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.Resets, got[0].Resets)
}
