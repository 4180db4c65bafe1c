package typesupport

import (
	"fmt"
	"sync"
)

// DefaultRegistry holds the packages registered in-process, usually from
// init functions such as the ones in package builtin.
var DefaultRegistry = NewRegistry()

// Register adds definitions for pkg to DefaultRegistry.
func Register(pkg string, defs ...Definition) {
	DefaultRegistry.Register(pkg, defs...)
}

// Registry is a Source backed by definitions registered at runtime.
type Registry struct {
	mu       sync.RWMutex
	packages map[string]map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{packages: make(map[string]map[string]Definition)}
}

// Register adds or replaces definitions of pkg. Libraries that are already
// loaded keep the definitions they were loaded with.
func (r *Registry) Register(pkg string, defs ...Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.packages[pkg]
	if !ok {
		m = make(map[string]Definition)
		r.packages[pkg] = m
	}
	for _, d := range defs {
		if d.Namespace == "" {
			d.Namespace = DefaultNamespace
		}
		m[d.Namespace+typeSeparator+d.Name] = d
	}
}

// Packages lists registered package names.
func (r *Registry) Packages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.packages))
	for p := range r.packages {
		out = append(out, p)
	}
	return out
}

func (r *Registry) Load(pkg, identifier string) (*Library, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, pkg)
	}
	defs := make([]Definition, 0, len(m))
	for _, d := range m {
		defs = append(defs, d)
	}
	return newLibrary(pkg, identifier, "registry", defs), nil
}
