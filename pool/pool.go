// Package pool persists an ordered set of GitHub credentials in a single
// JSON file shared between processes. Reads take a shared advisory lock,
// writes an exclusive one, so concurrent dispatchers always observe a
// complete file. Iteration order is the file's key order with the Anonymous
// credential pushed to the end.
package pool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/urizennnn/repograde/credential"
)

var (
	// ErrCorrupt marks an unparseable or ill-typed pool file.
	ErrCorrupt = errors.New("corrupt pool file")
	// ErrEmpty is returned by GetToken when the pool holds no credentials.
	ErrEmpty = errors.New("credential pool is empty")
	// ErrBadReset rejects NextToken resets that are not in the future.
	ErrBadReset = errors.New("reset timestamp is not in the future")
	// ErrNoCurrent rejects NextToken without a prior GetToken for the scope.
	ErrNoCurrent = errors.New("no current credential for scope")
)

// Logger is the optional structured sink used around writes and rotations.
// A *charmbracelet/log.Logger satisfies it.
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// Store reads and writes one pool file. The on-disk state is authoritative:
// every operation re-reads the file under a lock rather than trusting any
// in-memory copy. The current-credential bookkeeping is per Store.
type Store struct {
	path string
	now  func() time.Time
	log  Logger

	mu      sync.Mutex
	current map[credential.Scope]*credential.Credential
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, used by tests to freeze time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger attaches an optional structured logger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store over the pool file at path. The file is created on
// first write.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		now:     time.Now,
		current: make(map[credential.Scope]*credential.Credential),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTokens validates and stores credentials. With purge the file is
// rewritten to exactly creds; otherwise creds are merged in, keeping any
// existing entry with the same identity (their reset state is newer than the
// caller's).
func (s *Store) SetTokens(creds []*credential.Credential, purge bool) error {
	for i, c := range creds {
		if c == nil {
			return fmt.Errorf("set tokens: credential %d is nil", i)
		}
		if !credential.Supported(string(c.Kind)) {
			return fmt.Errorf("set tokens: credential %d has unknown kind %q", i, c.Kind)
		}
	}
	if purge {
		return s.replace(creds)
	}
	return s.merge(creds, false)
}

// Tokens returns a point-in-time snapshot in iteration order: file order with
// Anonymous pushed back.
func (s *Store) Tokens() ([]*credential.Credential, error) {
	return s.read()
}

// GetToken picks the credential to use for scope: the first with no pending
// reset, or failing that the one with the smallest remaining wait. The choice
// is remembered as the scope's current credential.
func (s *Store) GetToken(scope credential.Scope) (*credential.Credential, error) {
	creds, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrEmpty
	}

	now := s.now()
	var best *credential.Credential
	var bestWait time.Duration
	for _, c := range creds {
		wait := c.Wait(scope, now)
		if wait == 0 {
			best = c
			break
		}
		if best == nil || wait < bestWait {
			best, bestWait = c, wait
		}
	}

	s.mu.Lock()
	s.current[scope] = best
	s.mu.Unlock()
	s.debug("credential selected", "scope", scope, "id", best.ShortID(), "wait", best.Wait(scope, now))
	return best, nil
}

// Current returns the credential last selected for scope by GetToken, or
// nil when none has been selected yet.
func (s *Store) Current(scope credential.Scope) *credential.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[scope]
}

// NextToken stamps the scope's current credential with resetEpoch, persists
// it, and selects a fresh credential for the scope.
func (s *Store) NextToken(scope credential.Scope, resetEpoch int64) (*credential.Credential, error) {
	if resetEpoch <= s.now().Unix() {
		return nil, fmt.Errorf("%w: %d", ErrBadReset, resetEpoch)
	}
	s.mu.Lock()
	cur := s.current[scope]
	s.mu.Unlock()
	if cur == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCurrent, scope)
	}

	cur.SetReset(scope, resetEpoch)
	if err := s.merge([]*credential.Credential{cur}, true); err != nil {
		return nil, err
	}
	s.warn("credential exhausted, rotating", "scope", scope, "id", cur.ShortID(), "reset", resetEpoch)
	return s.GetToken(scope)
}

// read opens the file under a shared lock and returns the decoded snapshot.
// A missing file is an empty pool.
func (s *Store) read() ([]*credential.Credential, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open pool: %w", err)
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return nil, fmt.Errorf("lock pool: %w", err)
	}
	defer unlock(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read pool: %w", err)
	}
	return decode(data)
}

// replace rewrites the file to exactly creds under an exclusive lock.
func (s *Store) replace(creds []*credential.Credential) error {
	return s.withExclusive(func(f *os.File) error {
		return rewrite(f, dedupe(creds))
	})
}

// merge folds creds into the current file contents. Existing identities are
// replaced only when overwrite is set.
func (s *Store) merge(creds []*credential.Credential, overwrite bool) error {
	return s.withExclusive(func(f *os.File) error {
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read pool: %w", err)
		}
		existing, err := decode(data)
		if err != nil {
			return err
		}

		index := make(map[string]int, len(existing))
		for i, c := range existing {
			index[c.ID()] = i
		}
		for _, c := range creds {
			if i, ok := index[c.ID()]; ok {
				if overwrite {
					existing[i] = c
				}
				continue
			}
			index[c.ID()] = len(existing)
			existing = append(existing, c)
		}
		return rewrite(f, pushback(existing))
	})
}

// withExclusive opens (creating as needed) the pool file, holds an exclusive
// lock for the duration of fn, and guarantees release on every path.
func (s *Store) withExclusive(fn func(*os.File) error) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pool dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("lock pool: %w", err)
	}
	defer unlock(f)

	return fn(f)
}

// rewrite truncates f and writes the serialized pool.
func rewrite(f *os.File, creds []*credential.Credential) error {
	data, err := encode(creds)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate pool: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek pool: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync pool: %w", err)
	}
	return nil
}

// decode parses the identity->credential object preserving key order, then
// applies the Anonymous pushback. An empty file is an empty pool.
func decode(data []byte) ([]*credential.Credential, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrCorrupt)
	}

	var creds []*credential.Credential
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		var c credential.Credential
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		creds = append(creds, &c)
	}
	return pushback(creds), nil
}

// encode serializes credentials as a JSON object keyed by identity, one
// entry per line, in slice order.
func encode(creds []*credential.Credential) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, c := range creds {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		key, err := json.Marshal(c.ID())
		if err != nil {
			return nil, fmt.Errorf("encode pool key: %w", err)
		}
		val, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode pool entry %s: %w", c.ShortID(), err)
		}
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	if len(creds) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// pushback moves any Anonymous credential to the end, preserving the order
// of the rest.
func pushback(creds []*credential.Credential) []*credential.Credential {
	var anon []*credential.Credential
	out := creds[:0]
	for _, c := range creds {
		if c.Kind == credential.KindAnonymous {
			anon = append(anon, c)
			continue
		}
		out = append(out, c)
	}
	return append(out, anon...)
}

// dedupe collapses duplicate identities, last occurrence winning in place.
func dedupe(creds []*credential.Credential) []*credential.Credential {
	index := make(map[string]int, len(creds))
	var out []*credential.Credential
	for _, c := range creds {
		if i, ok := index[c.ID()]; ok {
			out[i] = c
			continue
		}
		index[c.ID()] = len(out)
		out = append(out, c)
	}
	return out
}

func (s *Store) warn(msg string, keyvals ...interface{}) {
	if s.log != nil {
		s.log.Warn(msg, keyvals...)
	}
}

func (s *Store) debug(msg string, keyvals ...interface{}) {
	if s.log != nil {
		s.log.Debug(msg, keyvals...)
	}
}
