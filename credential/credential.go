// Package credential defines the GitHub credential variants used by the
// dispatcher and the pool, together with their per-scope rate-limit reset
// state and the factory that builds them from tagged descriptors.
package credential

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Scope identifies a GitHub rate-limit bucket.
type Scope string

const (
	ScopeCore   Scope = "core"
	ScopeSearch Scope = "search"
	// ScopeNone marks calls that consume no quota, e.g. rate-limit inspection.
	ScopeNone Scope = "none"
)

// Kind discriminates the credential variants.
type Kind string

const (
	KindAnonymous    Kind = "null"
	KindPersonal     Kind = "pat"
	KindClientSecret Kind = "client_secret"
)

// AnonymousID is the identity of the no-auth sentinel credential.
const AnonymousID = "null"

// Credential is a tagged GitHub credential. Secrets are immutable after
// construction; only the per-scope reset map changes over its lifetime.
type Credential struct {
	Kind         Kind
	Token        string
	ClientID     string
	ClientSecret string

	// Resets maps scope -> epoch seconds at which that scope's quota
	// returns to full.
	Resets map[Scope]int64
}

// NewAnonymous returns the no-auth sentinel credential.
func NewAnonymous() *Credential {
	return &Credential{Kind: KindAnonymous}
}

// NewPersonal builds a personal-access-token credential.
func NewPersonal(token string) (*Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("personal access token is empty")
	}
	return &Credential{Kind: KindPersonal, Token: token}, nil
}

// NewClientSecret builds an OAuth application credential.
func NewClientSecret(clientID, clientSecret string) (*Credential, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id is empty")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("client secret is empty")
	}
	return &Credential{Kind: KindClientSecret, ClientID: clientID, ClientSecret: clientSecret}, nil
}

// ID returns the stable identity of the credential. Secrets only ever appear
// hashed.
func (c *Credential) ID() string {
	switch c.Kind {
	case KindPersonal:
		return "pat#" + md5hex(c.Token)
	case KindClientSecret:
		return "cst#" + md5hex(c.ClientID+c.ClientSecret)
	default:
		return AnonymousID
	}
}

// ShortID returns the first 8 characters of the identity, used in logs.
func (c *Credential) ShortID() string {
	id := c.ID()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Wait reports how long the credential must rest before it may serve the
// given scope at the given instant. Zero means the credential is usable now.
func (c *Credential) Wait(scope Scope, now time.Time) time.Duration {
	reset, ok := c.Resets[scope]
	if !ok || reset <= now.Unix() {
		return 0
	}
	return time.Duration(reset-now.Unix()) * time.Second
}

// SetReset overwrites the reset timestamp for scope unconditionally.
func (c *Credential) SetReset(scope Scope, resetEpoch int64) {
	if c.Resets == nil {
		c.Resets = make(map[Scope]int64, 1)
	}
	c.Resets[scope] = resetEpoch
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type wireCredential struct {
	Kind         Kind            `json:"kind"`
	Token        string          `json:"token,omitempty"`
	ClientID     string          `json:"client_id,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Resets       map[Scope]int64 `json:"resets,omitempty"`
}

// MarshalJSON renders the credential in the self-describing pool format.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCredential{
		Kind:         c.Kind,
		Token:        c.Token,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Resets:       c.Resets,
	})
}

// UnmarshalJSON parses a credential and rejects unknown variants.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var w wireCredential
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindAnonymous, KindPersonal, KindClientSecret:
	default:
		return fmt.Errorf("unknown credential kind %q", w.Kind)
	}
	c.Kind = w.Kind
	c.Token = w.Token
	c.ClientID = w.ClientID
	c.ClientSecret = w.ClientSecret
	c.Resets = w.Resets
	return nil
}
