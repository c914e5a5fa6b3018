package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPage is returned by FetchNext and FetchLast when the pager has no
// such page to move to.
var ErrNoPage = errors.New("no such page")

// Pager walks a paginated API method through the dispatcher, so every page
// fetch goes through the same credential and rate-limit protocol as a plain
// call.
type Pager struct {
	d       *Dispatcher
	route   Route
	args    []string
	last    Outcome
	fetched bool
}

// Page prepares a pager for the given API path and arguments. Nothing is
// fetched until Fetch or FetchAll is called.
func (d *Dispatcher) Page(path string, args ...string) (*Pager, error) {
	route, err := Resolve(path)
	if err != nil {
		return nil, err
	}
	return &Pager{d: d, route: route, args: args}, nil
}

// Fetch retrieves the first page.
func (p *Pager) Fetch(ctx context.Context) (any, error) {
	return p.fetchPage(ctx, 0)
}

// HasNext reports whether the most recent fetch advertised a further page.
// It is false before the first fetch.
func (p *Pager) HasNext() bool {
	return p.fetched && p.last.NextPage != 0
}

// FetchNext retrieves the page after the most recent fetch.
func (p *Pager) FetchNext(ctx context.Context) (any, error) {
	if !p.HasNext() {
		return nil, fmt.Errorf("%w: next of %s", ErrNoPage, p.route)
	}
	return p.fetchPage(ctx, p.last.NextPage)
}

// FetchLast retrieves the final page as advertised by the most recent fetch.
func (p *Pager) FetchLast(ctx context.Context) (any, error) {
	if !p.fetched || p.last.LastPage == 0 {
		return nil, fmt.Errorf("%w: last of %s", ErrNoPage, p.route)
	}
	return p.fetchPage(ctx, p.last.LastPage)
}

// FetchAll walks every page from the first and concatenates list results
// into one slice.
func (p *Pager) FetchAll(ctx context.Context) ([]any, error) {
	var all []any
	v, err := p.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	all = appendItems(all, v)
	for p.HasNext() {
		v, err = p.FetchNext(ctx)
		if err != nil {
			return nil, err
		}
		all = appendItems(all, v)
	}
	return all, nil
}

func (p *Pager) fetchPage(ctx context.Context, page int) (any, error) {
	out, err := p.d.call(ctx, p.route, p.args, page)
	if err != nil {
		return nil, err
	}
	p.last = out
	p.fetched = true
	return out.Value, nil
}

func appendItems(all []any, v any) []any {
	if items, ok := v.([]any); ok {
		return append(all, items...)
	}
	return append(all, v)
}
