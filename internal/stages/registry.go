// Package stages implements the isolated analysis stage registry and the
// router that decides, per case, which stages apply and in what order.
// Stages are capability-polymorphic: the router treats them uniformly
// through the declared contract, so adding a stage requires no router
// change.
package stages

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// Stage is the contract every analysis unit satisfies. Execute receives
// only the fields the privacy boundary allow-listed for the stage's
// capability tag; isolation is enforced by the router and orchestrator,
// not by stage discipline.
type Stage interface {
	Execute(ctx context.Context, input types.StageInput) (types.StageResult, error)
}

// Factory builds a fresh stage instance per invocation so concurrently
// executing stages share no state.
type Factory func(id string, profile Profile) Stage

// Profile declares a stage's contract: what it needs, what it produces,
// and how the orchestrator should run it.
type Profile struct {
	Name            string                `json:"name"`
	Capability      string                `json:"capability"`       // specialty tag, keys the privacy allow-list
	RequiredFields  []string              `json:"required_fields"`  // sanitized input fields it needs
	RequiredContext []types.SelectionMode `json:"required_context"` // selection modes it consumes
	Produces        string                `json:"produces"`         // output schema name
	DependsOn       []string              `json:"depends_on"`       // stages whose output it consumes
	Timeout         time.Duration         `json:"timeout"`          // zero means orchestrator default
	RetryBudget     int                   `json:"retry_budget"`     // zero means orchestrator default

	declOrder int // registration order, for reproducible aggregation
}

// Registry holds stage factories and profiles. Stage implementations are
// registered externally; domain logic lives entirely outside the core.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	profiles  map[string]Profile
	order     []string // declaration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		profiles:  make(map[string]Profile),
	}
}

// RegisterStage installs a factory for a stage name.
func (r *Registry) RegisterStage(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	logging.Stages("stage factory registered: %s", name)
}

// DefineProfile declares a stage's contract. Declaration order is recorded
// for reproducible aggregation ordering.
func (r *Registry) DefineProfile(name string, profile Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile.Name = name
	if _, exists := r.profiles[name]; !exists {
		r.order = append(r.order, name)
	}
	profile.declOrder = indexOf(r.order, name)
	r.profiles[name] = profile
}

// Profiles returns all declared profiles in declaration order.
func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}

// Profile returns one profile by name.
func (r *Registry) Profile(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// DeclOrder returns the declaration rank of a stage, or a rank past every
// declared stage when unknown.
func (r *Registry) DeclOrder(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[name]; ok {
		return p.declOrder
	}
	return len(r.order)
}

// Spawn builds a fresh instance of a stage.
func (r *Registry) Spawn(name string) (Stage, error) {
	r.mu.RLock()
	factory, fok := r.factories[name]
	profile, pok := r.profiles[name]
	r.mu.RUnlock()

	if !fok {
		return nil, fmt.Errorf("no factory registered for stage %q", name)
	}
	if !pok {
		return nil, fmt.Errorf("no profile defined for stage %q", name)
	}
	return factory(name, profile), nil
}

// SortByDeclaration orders stage ids by declaration order, for reproducible
// tie-breaking in the aggregator.
func (r *Registry) SortByDeclaration(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		return r.DeclOrder(out[i]) < r.DeclOrder(out[j])
	})
	return out
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return len(list)
}
