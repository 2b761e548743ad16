package enrich

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadscope/enrich/internal/citation"
)

// Context is the map of predecessor results a module receives. Only
// successful results from earlier waves appear in it.
type Context map[string]*Result

// Get returns the result for a module id, or nil.
func (c Context) Get(moduleID string) *Result {
	return c[moduleID]
}

// Require returns the dependency result or a DependencyNotMetError when it
// is absent or not successful.
func (c Context) Require(self, dependency string) (*Result, error) {
	result, ok := c[dependency]
	if !ok || !result.Succeeded() {
		return nil, &DependencyNotMetError{ModuleID: self, Missing: dependency}
	}
	return result, nil
}

// Module is the contract every intelligence module implements.
type Module interface {
	ID() string
	Name() string
	Wave() int
	DependsOn() []string
	PrimarySourceType() citation.SourceType
	Timeout() time.Duration

	// Execute runs the module for a normalized domain with its dependency
	// context. Implementations check dependencies before any upstream I/O.
	Execute(ctx context.Context, domain string, deps Context) (*Result, error)

	// ValidateOutput enforces the module's output schema and the citation
	// mandate on a candidate result.
	ValidateOutput(result *Result) error
}

// Factory constructs a module over the shared source clients.
type Factory func() Module

// Registry maps module ids to factories. Built once at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory; duplicate registration is a programming error.
func (r *Registry) Register(id string, factory Factory) error {
	if !ValidModuleID(id) {
		return fmt.Errorf("module id %q is not of form mNN_snake_name", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("module %s registered twice", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics on registration failure; used by init-only wiring.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Get builds the module for an id.
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// IDs lists registered module ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// moduleIDPattern enforces the mNN_<snake_name> shape.
var moduleIDPattern = regexp.MustCompile(`^m(0[1-9]|1[0-5])_[a-z][a-z0-9_]*$`)

// ValidModuleID reports whether the id has the canonical shape.
func ValidModuleID(id string) bool {
	return moduleIDPattern.MatchString(id)
}

// NormalizeDomain canonicalizes a domain: lowercase, scheme stripped, www.
// stripped, path/query/port stripped. Applied once at job entry; the
// normalized form is the canonical key everywhere downstream.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return d
}

// ValidateResult enforces the universal output invariants shared by every
// module: a present primary citation on success, no expired primary citation
// (success with an expired citation is a programming error), and bounded
// confidence everywhere.
func ValidateResult(result *Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}
	if result.Status == StatusSuccess {
		if result.PrimaryCitation == nil {
			return &CitationError{ModuleID: result.ModuleID, Kind: ErrTypeCitationMissing, Detail: "success without primary citation"}
		}
		if citation.Classify(result.PrimaryCitation) == citation.Expired {
			return &CitationError{ModuleID: result.ModuleID, Kind: ErrTypeCitationExpired, Detail: "success with expired primary citation"}
		}
	}
	for _, c := range result.Citations() {
		if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
			return fmt.Errorf("%s: citation confidence %.3f outside [0,1]", result.ModuleID, c.ConfidenceScore)
		}
	}
	return nil
}
