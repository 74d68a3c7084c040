package stages

import (
	"fmt"
	"sort"

	"caseflow/internal/logging"
	"caseflow/internal/types"
)

// Router decides which registered stages apply to a case and schedules
// them into dependency-ordered waves.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over a registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route selects the stages whose declared required-field set is satisfiable
// from the available (post-selector, post-privacy-boundary) context, and
// orders them into waves: stages within a wave have no edges between them
// and may run concurrently; a stage with a dependency is placed in a later
// wave than its dependency. A stage whose requirements are unmet is marked
// skipped, never silently omitted.
//
// Availability is per capability: each stage's requirements are checked
// against the fields the privacy boundary allow-listed for that stage's
// capability tag, so no stage is routed toward fields it may not see.
func (r *Router) Route(caseID string, availableByCapability map[string]map[string]bool) *types.RoutePlan {
	profiles := r.registry.Profiles()
	plan := &types.RoutePlan{Skipped: make(map[string]string)}

	runnable := make(map[string]Profile)
	for _, p := range profiles {
		if missing := unmetFields(p, availableByCapability[p.Capability]); len(missing) > 0 {
			plan.Skipped[p.Name] = fmt.Sprintf("required fields unavailable: %v", missing)
			continue
		}
		runnable[p.Name] = p
	}

	// Dependencies on unknown stages cannot be scheduled.
	for name, p := range runnable {
		for _, dep := range p.DependsOn {
			if _, declared := r.registry.Profile(dep); !declared {
				plan.Skipped[name] = fmt.Sprintf("depends on undeclared stage %q", dep)
				delete(runnable, name)
				break
			}
		}
	}

	plan.Waves = r.schedule(runnable, plan.Skipped)

	logging.Stages("routed case=%s: %d waves, %d skipped", caseID, len(plan.Waves), len(plan.Skipped))
	return plan
}

// schedule performs Kahn-style wave construction. A dependency edge blocks
// only that edge: a runnable stage waits for its dependency's terminal
// state, whatever that state is, so a dependency that was itself skipped
// does not cascade into skipping the dependent (the dependent sees the
// skipped result in its input). Stages trapped in a cycle are skipped.
func (r *Router) schedule(runnable map[string]Profile, skipped map[string]string) [][]string {
	// Edges only between stages that will actually run; edges to skipped
	// stages are already satisfied (their terminal state is known).
	pending := make(map[string]map[string]bool, len(runnable)) // stage -> unmet deps
	for name, p := range runnable {
		deps := make(map[string]bool)
		for _, dep := range p.DependsOn {
			if _, runs := runnable[dep]; runs {
				deps[dep] = true
			}
		}
		pending[name] = deps
	}

	var waves [][]string
	for len(pending) > 0 {
		var wave []string
		for name, deps := range pending {
			if len(deps) == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			// Remaining stages form a cycle.
			for name := range pending {
				skipped[name] = "dependency cycle"
			}
			break
		}
		sort.SliceStable(wave, func(i, j int) bool {
			return r.registry.DeclOrder(wave[i]) < r.registry.DeclOrder(wave[j])
		})
		for _, name := range wave {
			delete(pending, name)
		}
		for _, deps := range pending {
			for _, name := range wave {
				delete(deps, name)
			}
		}
		waves = append(waves, wave)
	}
	return waves
}

// unmetFields returns the declared required fields missing from the
// available set.
func unmetFields(p Profile, available map[string]bool) []string {
	var missing []string
	for _, f := range p.RequiredFields {
		if !available[f] {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}
