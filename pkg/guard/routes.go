package guard

import "strings"

// DefaultPublicRoutes are reachable without a session. Without them the
// login page itself would be guarded.
var DefaultPublicRoutes = []string{"/login*", "/register*"}

// Routes matches request paths against a set of patterns. A pattern ending
// in "/*" matches that directory and everything below it, a pattern ending
// in "*" is a plain prefix, anything else must match exactly.
type Routes struct {
	exact    map[string]struct{}
	dirs     []string
	prefixes []string
}

// NewRoutes compiles patterns. Empty patterns are ignored.
func NewRoutes(patterns ...string) Routes {
	r := Routes{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "/*"):
			r.dirs = append(r.dirs, normalize(strings.TrimSuffix(p, "/*")))
		case strings.HasSuffix(p, "*"):
			r.prefixes = append(r.prefixes, strings.TrimSuffix(p, "*"))
		default:
			r.exact[normalize(p)] = struct{}{}
		}
	}
	return r
}

// Match reports whether path is covered.
func (r Routes) Match(path string) bool {
	path = normalize(path)
	if _, ok := r.exact[path]; ok {
		return true
	}
	for _, d := range r.dirs {
		if path == d || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// normalize drops query, fragment and trailing slash.
func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
