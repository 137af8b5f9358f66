package access

import (
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteRule maps one route pattern and method to the check it requires.
type RouteRule struct {
	Method            string   `yaml:"method"`
	Path              string   `yaml:"path"`
	Resource          Resource `yaml:"resource,omitempty"`
	Verb              Verb     `yaml:"verb,omitempty"`
	AuthenticatedOnly bool     `yaml:"authenticated_only,omitempty"`
}

// Target is the result of a route lookup.
type Target struct {
	Resource          Resource
	Verb              Verb
	AuthenticatedOnly bool
}

type routeFile struct {
	Version int         `yaml:"version"`
	Routes  []RouteRule `yaml:"routes"`
}

type routeKey struct {
	method string
	path   string
}

// RouteTable is built once at startup and is read-only afterwards.
// Lookups for anything not in the table miss, and callers must deny.
type RouteTable struct {
	version int
	rules   map[routeKey]Target
}

// ParseRouteTable decodes and validates a YAML route table.
func ParseRouteTable(data []byte) (*RouteTable, error) {
	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	return NewRouteTable(f.Version, f.Routes)
}

// NewRouteTable validates rules against the resource registry.
func NewRouteTable(version int, rules []RouteRule) (*RouteTable, error) {
	if version != RegistryVersion {
		return nil, fmt.Errorf("route table version %d does not match resource registry version %d", version, RegistryVersion)
	}
	t := &RouteTable{version: version, rules: make(map[routeKey]Target, len(rules))}
	for i, r := range rules {
		method := strings.ToUpper(strings.TrimSpace(r.Method))
		if !knownMethod(method) {
			return nil, fmt.Errorf("route %d: unsupported method %q", i, r.Method)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %d: path %q must start with /", i, r.Path)
		}
		target := Target{AuthenticatedOnly: r.AuthenticatedOnly}
		if !r.AuthenticatedOnly {
			if !r.Resource.IsValid() {
				return nil, fmt.Errorf("route %d (%s %s): unknown resource %q", i, method, r.Path, r.Resource)
			}
			if !r.Verb.IsValid() {
				return nil, fmt.Errorf("route %d (%s %s): unknown verb %q", i, method, r.Path, r.Verb)
			}
			target.Resource = r.Resource
			target.Verb = r.Verb
		} else if r.Resource != "" || r.Verb != "" {
			return nil, fmt.Errorf("route %d (%s %s): authenticated_only routes cannot name a resource", i, method, r.Path)
		}
		key := routeKey{method: method, path: r.Path}
		if _, dup := t.rules[key]; dup {
			return nil, fmt.Errorf("route %d: duplicate entry for %s %s", i, method, r.Path)
		}
		t.rules[key] = target
	}
	return t, nil
}

// Lookup returns the target for a route pattern (as registered with the router, e.g. /profiles/:id).
func (t *RouteTable) Lookup(method, path string) (Target, bool) {
	if t == nil {
		return Target{}, false
	}
	target, ok := t.rules[routeKey{method: strings.ToUpper(method), path: path}]
	return target, ok
}

func (t *RouteTable) Version() int {
	return t.version
}

func (t *RouteTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

func knownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}
