package credential

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBadDescriptor marks a malformed factory input: empty tag, wrong
	// arity, or an unrecognized tag.
	ErrBadDescriptor = errors.New("bad credential descriptor")
	// ErrConstruction wraps a constructor failure for a well-formed
	// descriptor.
	ErrConstruction = errors.New("credential construction failed")
)

// Descriptor is a tagged credential description: a recognized tag plus its
// positional parameters.
type Descriptor struct {
	Tag    string
	Params []string
}

// tag -> required parameter count
var tagArity = map[Kind]int{
	KindAnonymous:    0,
	KindPersonal:     1,
	KindClientSecret: 2,
}

// Supports returns the recognized descriptor tags.
func Supports() []string {
	return []string{string(KindAnonymous), string(KindPersonal), string(KindClientSecret)}
}

// Supported reports whether tag is a recognized descriptor tag.
func Supported(tag string) bool {
	_, ok := tagArity[Kind(tag)]
	return ok
}

// Create builds a single credential from a tag and positional parameters.
func Create(tag string, params ...string) (*Credential, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrBadDescriptor)
	}
	arity, ok := tagArity[Kind(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrBadDescriptor, tag)
	}
	if len(params) != arity {
		return nil, fmt.Errorf("%w: tag %q takes %d parameter(s), got %d", ErrBadDescriptor, tag, arity, len(params))
	}

	var (
		cred *Credential
		err  error
	)
	switch Kind(tag) {
	case KindAnonymous:
		cred = NewAnonymous()
	case KindPersonal:
		cred, err = NewPersonal(params[0])
	case KindClientSecret:
		cred, err = NewClientSecret(params[0], params[1])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, tag, err)
	}
	return cred, nil
}

// CreateBatch builds credentials for every descriptor. Duplicate identities
// within the batch collapse to a single instance; the last occurrence wins
// while keeping the position of the first.
func CreateBatch(descriptors []Descriptor) ([]*Credential, error) {
	order := make([]string, 0, len(descriptors))
	byID := make(map[string]*Credential, len(descriptors))
	for _, d := range descriptors {
		cred, err := Create(d.Tag, d.Params...)
		if err != nil {
			return nil, err
		}
		id := cred.ID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = cred
	}
	out := make([]*Credential, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// ParseList parses the config descriptor syntax: descriptors separated by
// ";", each descriptor a tag optionally followed by ":"-separated parameters,
// e.g. "pat:ghp_abc;client_secret:id:secret;null".
func ParseList(s string) ([]Descriptor, error) {
	var out []Descriptor
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		d := Descriptor{Tag: parts[0]}
		if len(parts) > 1 {
			d.Params = parts[1:]
		}
		if !Supported(d.Tag) {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrBadDescriptor, d.Tag)
		}
		out = append(out, d)
	}
	return out, nil
}
