// Package scenario defines end-to-end scenarios, the registry that selects
// them by name, and the Env each one runs against.
package scenario

import (
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/kuitang/persona-e2e/internal/errs"
)

// Scenario is one end-to-end test.
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	// Browsers is how many isolated browser sessions Run gets (Env.Drivers).
	// Zero means one.
	Browsers int
	Run      func(*Env) error
}

// Sessions returns the number of browser sessions the scenario needs.
func (s Scenario) Sessions() int {
	if s.Browsers < 1 {
		return 1
	}
	return s.Browsers
}

// Registry holds scenarios by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Scenario
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Scenario)}
}

// Register adds s. Names must be unique and non-empty.
func (r *Registry) Register(s Scenario) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errs.New(errs.Configuration, "scenario has no name")
	}
	if s.Run == nil {
		return errs.Newf(errs.Configuration, "scenario %s has no Run function", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[s.Name]; dup {
		return errs.Newf(errs.Configuration, "scenario %s registered twice", s.Name)
	}
	r.byName[s.Name] = s
	return nil
}

// MustRegister is Register for package-level suites; it panics on error.
func (r *Registry) MustRegister(s Scenario) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the named scenario.
func (r *Registry) Get(name string) (Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Match returns the scenarios whose name matches any of the comma-separated
// glob patterns, sorted by name. An empty pattern selects everything. A
// pattern may also be "tag:<tag>".
func (r *Registry) Match(patterns string) ([]Scenario, error) {
	var globs []string
	for _, p := range strings.Split(patterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			globs = append(globs, p)
		}
	}
	if len(globs) == 0 {
		globs = []string{"*"}
	}
	for _, g := range globs {
		if _, err := path.Match(g, ""); err != nil {
			return nil, errs.Wrap(errs.Configuration, "bad test pattern "+g, err)
		}
	}

	var out []Scenario
	for _, name := range r.Names() {
		s, _ := r.Get(name)
		if matchesAny(s, globs) {
			out = append(out, s)
		}
	}
	return out, nil
}

func matchesAny(s Scenario, globs []string) bool {
	for _, g := range globs {
		if tag, ok := strings.CutPrefix(g, "tag:"); ok {
			if slices.Contains(s.Tags, tag) {
				return true
			}
			continue
		}
		// path.Match's "*" stops at "/".
		if g == "*" {
			return true
		}
		if ok, _ := path.Match(g, s.Name); ok {
			return true
		}
	}
	return false
}
