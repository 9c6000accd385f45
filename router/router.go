package router

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ParamPrefix marks a pattern segment that binds the path segment at its position
const ParamPrefix = ":"

var (
	ErrNotMounted = errors.New("router: load called before mount")
	ErrNoRenderer = errors.New("router: load called before a render function was installed")
	ErrSuperseded = errors.New("router: navigation superseded by a newer load")
	ErrNoHistory  = errors.New("router: no previous navigation")
)

var navigations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skyweb_router_navigations_total",
	Help: "Router loads by outcome",
}, []string{"outcome"})

// ViewLoader produces the view for a matched route. It may block on network
// work and should honour ctx.
type ViewLoader func(ctx context.Context) (any, error)

// Params maps parameter names to decoded path segments
type Params map[string]string

// Route is a registered pattern and its loader
type Route struct {
	Pattern string
	Loader  ViewLoader
}

// RouteMatch is the result of matching a path against the route table.
// Matched is false and Pattern empty when the not-found loader was chosen.
type RouteMatch struct {
	Pattern string
	Matched bool
	Loader  ViewLoader
	Params  Params
}

// Navigation is what the render function receives after a successful load
type Navigation struct {
	View      any
	Params    Params
	Container *Container
	Path      string
	Pattern   string
}

// RenderFunc shows a loaded view
type RenderFunc func(ctx context.Context, nav Navigation) error

// NotFoundView is the view produced by the default not-found loader
type NotFoundView struct{}

type paramsKey struct{}

// ParamsFromContext returns the params of the route being loaded. Loaders
// receive them through their context.
func ParamsFromContext(ctx context.Context) Params {
	if params, ok := ctx.Value(paramsKey{}).(Params); ok {
		return params
	}
	return Params{}
}

func defaultNotFound(ctx context.Context) (any, error) {
	return NotFoundView{}, nil
}

// Router maps paths to view loaders and renders the result into its mounted
// container. Routes are matched in registration order and the first match wins.
type Router struct {
	mu        sync.RWMutex
	routes    []Route
	notFound  ViewLoader
	container *Container
	render    RenderFunc
	history   *Stack

	generation atomic.Uint64
}

// New creates a router with the default not-found view
func New() *Router {
	return &Router{
		notFound: defaultNotFound,
		history:  NewStack(),
	}
}

// AddRoute registers a pattern such as /profile/:handle/post/:rkey. Patterns
// are not deduplicated, a later duplicate is never reached.
func (r *Router) AddRoute(pattern string, loader ViewLoader) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, Route{Pattern: pattern, Loader: loader})
	return r
}

// SetNotFoundView replaces the loader used when no route matches
func (r *Router) SetNotFoundView(loader ViewLoader) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = loader
	return r
}

// Mount binds the router to a container. Mounting again rebinds.
func (r *Router) Mount(container *Container) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.container = container
	return r
}

// RenderRoute installs the function called after each successful load
func (r *Router) RenderRoute(fn RenderFunc) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.render = fn
	return r
}

// Routes returns the route table in matching order
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Match resolves path against the route table without side effects
func (r *Router) Match(path string) RouteMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pathSegments := strings.Split(path, "/")

	for _, route := range r.routes {
		if params, ok := matchSegments(strings.Split(route.Pattern, "/"), pathSegments); ok {
			return RouteMatch{
				Pattern: route.Pattern,
				Matched: true,
				Loader:  route.Loader,
				Params:  params,
			}
		}
	}

	return RouteMatch{
		Loader: r.notFound,
		Params: Params{},
	}
}

func matchSegments(pattern, path []string) (Params, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}

	params := Params{}
	for i, segment := range pattern {
		if strings.HasPrefix(segment, ParamPrefix) {
			params[strings.TrimPrefix(segment, ParamPrefix)] = decodeSegment(path[i])
			continue
		}
		if segment != path[i] {
			return nil, false
		}
	}
	return params, true
}

func decodeSegment(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}

// Load matches path, awaits its loader and renders the view. Errors from the
// loader and the render function are returned as is. When another Load starts
// while this one is waiting on its loader, this one returns ErrSuperseded
// without rendering.
func (r *Router) Load(ctx context.Context, path string) error {
	return r.load(ctx, path, false)
}

// Back renders the previous path in the history
func (r *Router) Back(ctx context.Context) error {
	r.mu.RLock()
	entries := r.history.Entries()
	r.mu.RUnlock()

	if len(entries) < 2 {
		return ErrNoHistory
	}
	return r.load(ctx, entries[len(entries)-2], true)
}

// History returns the rendered paths, oldest first
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history.Entries()
}

func (r *Router) load(ctx context.Context, path string, back bool) error {
	r.mu.RLock()
	mounted, render := r.container, r.render
	r.mu.RUnlock()

	if mounted == nil {
		return ErrNotMounted
	}
	if render == nil {
		return ErrNoRenderer
	}

	generation := r.generation.Inc()
	match := r.Match(path)

	log.WithFields(log.Fields{
		"path":    path,
		"pattern": match.Pattern,
		"matched": match.Matched,
	}).Debug("Loading route")

	view, err := match.Loader(context.WithValue(ctx, paramsKey{}, match.Params))
	if err != nil {
		navigations.WithLabelValues("error").Inc()
		return err
	}

	if r.generation.Load() != generation {
		navigations.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}

	// Re-read in case the router was remounted while the loader ran
	r.mu.RLock()
	mounted = r.container
	r.mu.RUnlock()

	nav := Navigation{
		View:      view,
		Params:    match.Params,
		Container: mounted.replaceOutlet(),
		Path:      path,
		Pattern:   match.Pattern,
	}
	if err := render(ctx, nav); err != nil {
		navigations.WithLabelValues("error").Inc()
		return err
	}

	r.mu.Lock()
	if back {
		r.history.Pop()
	} else {
		r.history.Push(path)
	}
	r.mu.Unlock()

	navigations.WithLabelValues("rendered").Inc()
	return nil
}
