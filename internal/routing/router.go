package routing

import (
	"context"
	"net/http"
	"runtime/debug"
)

// Router is an exact-path router with segment-pattern support. Every handler
// runs behind a panic recovery that renders the class-appropriate error
// envelope instead of tearing down the connection.
type Router struct {
	classifier *Classifier
	routes     map[string]map[string]routeEntry
	patterns   []patternEntry
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	pattern PathPattern
	method  string
	rc      RouteClass
	handler http.Handler
}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		routes:     make(map[string]map[string]routeEntry),
	}
}

// Handle registers a route. Paths containing `{name}` segments become
// pattern routes; the captured segments are available to the handler via
// PathParam.
func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	wrapped := recovering(rc, h)

	if p, ok := parsePathPattern(path); ok {
		r.patterns = append(r.patterns, patternEntry{pattern: p, method: method, rc: rc, handler: wrapped})
		return
	}

	if r.routes[path] == nil {
		r.routes[path] = make(map[string]routeEntry)
	}
	r.routes[path][method] = routeEntry{rc: rc, handler: wrapped}
}

func recovering(rc RouteClass, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				_ = debug.Stack()
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if methods, ok := r.routes[req.URL.Path]; ok {
		if entry, ok := methods[req.Method]; ok {
			entry.handler.ServeHTTP(w, req)
			return
		}
		WriteError(w, req, entrypointClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	pathMatched := false
	for _, p := range r.patterns {
		params, ok := p.pattern.match(req.URL.Path)
		if !ok {
			continue
		}
		pathMatched = true
		if p.method != req.Method {
			continue
		}
		p.handler.ServeHTTP(w, withPathParams(req, params))
		return
	}
	if pathMatched {
		WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
}

func entrypointClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}

type pathParamsKey struct{}

func withPathParams(req *http.Request, params map[string]string) *http.Request {
	if len(params) == 0 {
		return req
	}
	return req.WithContext(context.WithValue(req.Context(), pathParamsKey{}, params))
}

// PathParam returns the captured value of a `{name}` segment, or "".
func PathParam(r *http.Request, name string) string {
	params, _ := r.Context().Value(pathParamsKey{}).(map[string]string)
	return params[name]
}
