// Package modules is the registry of the external subsystems whose routes
// the gateway exposes. Each module owns a fixed route table; requests on
// those routes are served by a shared handler, normally the forwarder to the
// graph-builder backend.
package modules

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is one method and chi path pattern owned by a module.
type Route struct {
	Method string
	Path   string
}

func (r Route) String() string {
	return r.Method + " " + r.Path
}

// Module is an externally implemented subsystem exposed through the gateway.
type Module interface {
	Name() string
	Routes() []Route
	RegisterRoutes(r chi.Router)
}

// delegated is a Module whose routes are all served by one handler. Request
// and response contracts stay opaque to the gateway.
type delegated struct {
	name    string
	routes  []Route
	handler http.Handler
}

func newDelegated(name string, handler http.Handler, routes ...Route) *delegated {
	return &delegated{name: name, routes: routes, handler: handler}
}

func (d *delegated) Name() string { return d.name }

// Routes returns a copy of the route table.
func (d *delegated) Routes() []Route {
	out := make([]Route, len(d.routes))
	copy(out, d.routes)
	return out
}

// RegisterRoutes mounts every route on r.
func (d *delegated) RegisterRoutes(r chi.Router) {
	for _, route := range d.routes {
		r.Method(route.Method, route.Path, d.handler)
	}
}

// Validate checks the module set before it is mounted: names must be
// non-empty and unique, paths must be absolute and no (method, path) pair
// may be claimed twice. chi would otherwise let the later registration
// silently replace the earlier one.
func Validate(mods []Module) error {
	names := make(map[string]struct{}, len(mods))
	owners := make(map[Route]string)

	for i, m := range mods {
		name := m.Name()
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("module at index %d has an empty name", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("module %q is registered twice", name)
		}
		names[name] = struct{}{}

		for _, route := range m.Routes() {
			if route.Method == "" || !strings.HasPrefix(route.Path, "/") {
				return fmt.Errorf("module %q: invalid route %q", name, route.String())
			}
			key := Route{Method: strings.ToUpper(route.Method), Path: route.Path}
			if owner, taken := owners[key]; taken {
				return fmt.Errorf("route %s claimed by both %q and %q", key, owner, name)
			}
			owners[key] = name
		}
	}
	return nil
}
