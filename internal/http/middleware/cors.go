package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const defaultCORSMaxAge = 10 * time.Minute

// CORSPolicy scopes browser access to the routes a widget actually calls.
type CORSPolicy struct {
	// AllowedOrigins may contain "*" to echo back any Origin.
	AllowedOrigins []string
	// Routes maps an exact request path to the methods a browser may use
	// on it. Paths not listed never receive CORS headers.
	Routes map[string][]string
	MaxAge time.Duration
}

type corsRoute struct {
	methods []string
	header  string
}

// CORS applies policy. An empty origin list or route map disables CORS
// headers entirely.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range policy.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allow[origin] = struct{}{}
	}

	routes := make(map[string]corsRoute, len(policy.Routes))
	for path, methods := range policy.Routes {
		route := corsRoute{}
		for _, m := range methods {
			route.methods = append(route.methods, strings.ToUpper(strings.TrimSpace(m)))
		}
		route.header = strings.Join(append(slices.Clone(route.methods), http.MethodOptions), ", ")
		routes[path] = route
	}

	maxAge := policy.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}
	maxAgeHeader := strconv.Itoa(int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, covered := routes[r.URL.Path]
			if !covered {
				next.ServeHTTP(w, r)
				return
			}

			origin := strings.TrimSpace(r.Header.Get("Origin"))
			requested := r.Header.Get("Access-Control-Request-Method")
			preflight := r.Method == http.MethodOptions && origin != "" && requested != ""

			w.Header().Add("Vary", "Origin")
			if origin != "" && (allowAny || isAllowedOrigin(allow, origin)) &&
				(!preflight || slices.Contains(route.methods, strings.ToUpper(requested))) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
				w.Header().Set("Access-Control-Allow-Methods", route.header)
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After")
				w.Header().Set("Access-Control-Max-Age", maxAgeHeader)
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAllowedOrigin(allow map[string]struct{}, origin string) bool {
	_, ok := allow[origin]
	return ok
}
