package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spotipi/spotipi/internal/shared"
)

// routeKey identifies a registered route by method and exact path.
type routeKey struct {
	method string
	path   string
}

// Router dispatches requests against an explicit route table. Paths match
// exactly; there is no pattern syntax. Unknown paths get 404, known
// paths with the wrong method get 405 with an Allow header.
type Router struct {
	routes     map[routeKey]http.Handler
	middleware []Middleware
}

func NewRouter() *Router {
	return &Router{routes: make(map[routeKey]http.Handler)}
}

// Use appends middleware applied to every dispatched request, outermost
// first.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Handle registers a handler for a method and path. It rejects malformed
// and duplicate entries so table mistakes surface at startup.
func (r *Router) Handle(method, path string, handler http.Handler) error {
	if method == "" || path == "" || !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: route %q %q", shared.ErrInvalidArgument, method, path)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", shared.ErrInvalidArgument, method, path)
	}

	key := routeKey{method: method, path: path}
	if _, ok := r.routes[key]; ok {
		return fmt.Errorf("%w: duplicate route %s %s", shared.ErrInvalidArgument, method, path)
	}

	r.routes[key] = handler
	return nil
}

// ServeHTTP implements [http.Handler].
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(http.HandlerFunc(r.dispatch))
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	if handler, ok := r.routes[routeKey{method: req.Method, path: path}]; ok {
		handler.ServeHTTP(w, req)
		return
	}

	if allowed := r.allowedMethods(path); len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.NotFound(w, req)
}

func (r *Router) allowedMethods(path string) []string {
	var allowed []string
	for _, method := range []string{
		http.MethodGet, http.MethodHead, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete,
	} {
		if _, ok := r.routes[routeKey{method: method, path: path}]; ok {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
