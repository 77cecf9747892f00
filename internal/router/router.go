package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// maxRedirects bounds hook redirect chains.
const maxRedirects = 4

// ErrRedirectLoop indicates hooks kept redirecting.
var ErrRedirectLoop = errors.New("route hooks redirected too many times")

// History mirrors the router state into the browser history.
type History interface {
	Push(fragment string)
	Replace(fragment string)
}

// SessionChecker reports whether an authenticated or guest session exists.
type SessionChecker interface {
	HasSession() bool
}

// SessionFunc adapts a function to SessionChecker.
type SessionFunc func() bool

// HasSession calls f.
func (f SessionFunc) HasSession() bool { return f() }

// Hook runs the side effects of entering a route. Returning a *Redirect sends
// the router elsewhere.
type Hook func(ctx context.Context, route Route) error

// Redirect is returned by hooks to resolve a different route.
type Redirect struct {
	Route Route
}

func (r *Redirect) Error() string {
	return fmt.Sprintf("redirect to %s", r.Route.Fragment())
}

// RedirectTo builds a Redirect error.
func RedirectTo(route Route) error {
	return &Redirect{Route: route}
}

// Router resolves fragments into routes, applying guards and hooks.
type Router struct {
	table   Table
	session SessionChecker
	history History

	mu         sync.Mutex
	hooks      map[Name]Hook
	current    Route
	pending    Route
	hasPending bool
}

// New builds a router. A nil table uses DefaultTable; a nil history discards
// updates.
func New(table Table, session SessionChecker, history History) *Router {
	if table == nil {
		table = DefaultTable()
	}
	if history == nil {
		history = discardHistory{}
	}
	if session == nil {
		session = SessionFunc(func() bool { return false })
	}
	return &Router{
		table:   table,
		session: session,
		history: history,
		hooks:   make(map[Name]Hook),
		current: Route{Name: NameLogin},
	}
}

// Handle registers the hook run when name is entered.
func (r *Router) Handle(name Name, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hook == nil {
		delete(r.hooks, name)
		return
	}
	r.hooks[name] = hook
}

// Current returns the last resolved route.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Pending returns the route stashed by the guard, if any.
func (r *Router) Pending() (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.hasPending
}

// ConsumePending returns and clears the stashed route.
func (r *Router) ConsumePending() (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.pending, r.hasPending
	r.pending, r.hasPending = Route{}, false
	return route, ok
}

// Resolve parses fragment, applies the guard and hooks, and replaces the
// history entry with the canonical fragment. Hook errors other than
// redirects are returned alongside the route that failed.
func (r *Router) Resolve(ctx context.Context, fragment string) (Route, error) {
	return r.resolve(ctx, r.table.Parse(fragment))
}

// Navigate pushes route into history and resolves it.
func (r *Router) Navigate(ctx context.Context, route Route) (Route, error) {
	if entry, ok := r.table[route.Name]; ok && entry.Internal {
		return r.resolve(ctx, route)
	}
	route = r.table.Parse(route.Fragment())
	r.history.Push(route.Fragment())
	return r.resolve(ctx, route)
}

func (r *Router) resolve(ctx context.Context, route Route) (Route, error) {
	route = r.guard(route)

	for i := 0; ; i++ {
		if i > maxRedirects {
			return route, ErrRedirectLoop
		}
		hook := r.hook(route.Name)
		if hook == nil {
			break
		}
		err := hook(ctx, route)
		if err == nil {
			break
		}
		var redirect *Redirect
		if !errors.As(err, &redirect) {
			r.commit(route)
			return route, err
		}
		route = r.guard(redirect.Route)
	}

	r.commit(route)
	return route, nil
}

func (r *Router) guard(route Route) Route {
	entry, ok := r.table[route.Name]
	if !ok {
		route, entry = Dashboard(), r.table[NameDashboard]
	}
	hasSession := r.session.HasSession()
	if entry.Protected && !hasSession {
		r.mu.Lock()
		r.pending, r.hasPending = route, true
		r.mu.Unlock()
		return Route{Name: NameLogin}
	}
	if route.Name == NameLogin && hasSession {
		return Dashboard()
	}
	return route
}

func (r *Router) hook(name Name) Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hooks[name]
}

func (r *Router) commit(route Route) {
	r.mu.Lock()
	r.current = route
	r.mu.Unlock()
	if r.table[route.Name].Internal {
		return
	}
	r.history.Replace(route.Fragment())
}

type discardHistory struct{}

func (discardHistory) Push(string)    {}
func (discardHistory) Replace(string) {}
