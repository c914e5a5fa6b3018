package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/urizennnn/repograde/credential"
)

// ErrBadPath rejects API paths that cannot be resolved to a namespace and
// method.
var ErrBadPath = errors.New("bad api path")

// Route is a resolved API path: a namespace on the GitHub client plus the
// method to invoke, classified into the rate-limit scope its calls consume.
type Route struct {
	Namespace string
	Method    string
	Scope     credential.Scope
}

func (r Route) String() string {
	return r.Namespace + "/" + r.Method
}

// Resolve splits a slash-separated API path into a Route. The first segment
// is the namespace, the remaining segments name the method; fewer than two
// segments is an error.
func Resolve(path string) (Route, error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return Route{}, fmt.Errorf("%w: %q needs at least a namespace and a method", ErrBadPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return Route{}, fmt.Errorf("%w: %q has an empty segment", ErrBadPath, path)
		}
	}
	ns := segs[0]
	return Route{
		Namespace: ns,
		Method:    strings.Join(segs[1:], "/"),
		Scope:     classify(ns),
	}, nil
}

// classify maps a namespace onto the GitHub rate-limit bucket it draws from.
// Rate-limit inspection itself is free.
func classify(namespace string) credential.Scope {
	switch namespace {
	case "search":
		return credential.ScopeSearch
	case "rate_limit":
		return credential.ScopeNone
	default:
		return credential.ScopeCore
	}
}

// adapter invokes one GitHub API method with positional string arguments and
// an optional page, returning the response decoded to plain JSON values.
type adapter func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error)

// routes is the constant dispatch table. Methods are small shims over the
// typed go-github services; results round-trip through JSON so the caller
// always sees maps, slices and scalars.
var routes = map[string]map[string]adapter{
	"repo": {
		"show": func(ctx context.Context, gh *github.Client, args []string, _ int) (any, *github.Response, error) {
			if err := needArgs("repo/show", args, 2); err != nil {
				return nil, nil, err
			}
			v, resp, err := gh.Repositories.Get(ctx, args[0], args[1])
			return plainOr(v, resp, err)
		},
		"participation": func(ctx context.Context, gh *github.Client, args []string, _ int) (any, *github.Response, error) {
			if err := needArgs("repo/participation", args, 2); err != nil {
				return nil, nil, err
			}
			v, resp, err := gh.Repositories.ListParticipation(ctx, args[0], args[1])
			return plainOr(v, resp, err)
		},
		"commits": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("repo/commits", args, 2); err != nil {
				return nil, nil, err
			}
			opt := &github.CommitsListOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Repositories.ListCommits(ctx, args[0], args[1], opt)
			return plainOr(v, resp, err)
		},
		"branches": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("repo/branches", args, 2); err != nil {
				return nil, nil, err
			}
			opt := &github.BranchListOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Repositories.ListBranches(ctx, args[0], args[1], opt)
			return plainOr(v, resp, err)
		},
		"tags": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("repo/tags", args, 2); err != nil {
				return nil, nil, err
			}
			opt := &github.ListOptions{Page: page}
			v, resp, err := gh.Repositories.ListTags(ctx, args[0], args[1], opt)
			return plainOr(v, resp, err)
		},
		"releases": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("repo/releases", args, 2); err != nil {
				return nil, nil, err
			}
			opt := &github.ListOptions{Page: page}
			v, resp, err := gh.Repositories.ListReleases(ctx, args[0], args[1], opt)
			return plainOr(v, resp, err)
		},
		"contributors": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("repo/contributors", args, 2); err != nil {
				return nil, nil, err
			}
			opt := &github.ListContributorsOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Repositories.ListContributors(ctx, args[0], args[1], opt)
			return plainOr(v, resp, err)
		},
		"languages": func(ctx context.Context, gh *github.Client, args []string, _ int) (any, *github.Response, error) {
			if err := needArgs("repo/languages", args, 2); err != nil {
				return nil, nil, err
			}
			v, resp, err := gh.Repositories.ListLanguages(ctx, args[0], args[1])
			return plainOr(v, resp, err)
		},
	},
	"search": {
		"repos": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("search/repos", args, 1); err != nil {
				return nil, nil, err
			}
			opt := &github.SearchOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Search.Repositories(ctx, args[0], opt)
			return plainOr(v, resp, err)
		},
		"code": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("search/code", args, 1); err != nil {
				return nil, nil, err
			}
			opt := &github.SearchOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Search.Code(ctx, args[0], opt)
			return plainOr(v, resp, err)
		},
		"users": func(ctx context.Context, gh *github.Client, args []string, page int) (any, *github.Response, error) {
			if err := needArgs("search/users", args, 1); err != nil {
				return nil, nil, err
			}
			opt := &github.SearchOptions{ListOptions: github.ListOptions{Page: page}}
			v, resp, err := gh.Search.Users(ctx, args[0], opt)
			return plainOr(v, resp, err)
		},
	},
	"rate_limit": {
		"get": func(ctx context.Context, gh *github.Client, args []string, _ int) (any, *github.Response, error) {
			if err := needArgs("rate_limit/get", args, 0); err != nil {
				return nil, nil, err
			}
			v, resp, err := gh.RateLimit.Get(ctx)
			return plainOr(v, resp, err)
		},
	},
	"user": {
		"show": func(ctx context.Context, gh *github.Client, args []string, _ int) (any, *github.Response, error) {
			if err := needArgs("user/show", args, 1); err != nil {
				return nil, nil, err
			}
			v, resp, err := gh.Users.Get(ctx, args[0])
			return plainOr(v, resp, err)
		},
	},
}

func lookup(route Route) (adapter, error) {
	methods, ok := routes[route.Namespace]
	if !ok {
		return nil, fmt.Errorf("%w: unknown namespace %q", ErrBadPath, route.Namespace)
	}
	ad, ok := methods[route.Method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q in namespace %q", ErrBadPath, route.Method, route.Namespace)
	}
	return ad, nil
}

func needArgs(path string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", path, n, len(args))
	}
	return nil
}

// plainOr converts a typed go-github value into plain JSON values, passing
// errors and the paging response through untouched.
func plainOr(v any, resp *github.Response, err error) (any, *github.Response, error) {
	if err != nil {
		return nil, resp, err
	}
	plain, perr := toPlain(v)
	return plain, resp, perr
}

func toPlain(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode api response: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode api response: %w", err)
	}
	return out, nil
}
