package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/types"
)

// okStage returns a fixed ok result.
type okStage struct{ id string }

func (s *okStage) Execute(ctx context.Context, input types.StageInput) (types.StageResult, error) {
	return types.StageResult{StageID: s.id, Status: types.StageOk}, nil
}

func okFactory(id string, profile Profile) Stage { return &okStage{id: id} }

func define(r *Registry, name, capability string, fields []string, deps ...string) {
	r.RegisterStage(name, okFactory)
	r.DefineProfile(name, Profile{
		Capability:     capability,
		RequiredFields: fields,
		DependsOn:      deps,
	})
}

func available(capabilities map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(capabilities))
	for cap, fields := range capabilities {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		out[cap] = set
	}
	return out
}

func TestRouteSkipsUnsatisfiableStages(t *testing.T) {
	r := NewRegistry()
	define(r, "triage", "triage", []string{"symptoms"})
	define(r, "labs", "labs", []string{"lab_results"})

	plan := NewRouter(r).Route("case_1", available(map[string][]string{
		"triage": {"symptoms"},
	}))

	require.Equal(t, [][]string{{"triage"}}, plan.Waves)
	require.Contains(t, plan.Skipped, "labs")
	assert.Contains(t, plan.Skipped["labs"], "lab_results", "skip reason must name the missing fields")
}

func TestRouteChecksFieldsPerCapability(t *testing.T) {
	r := NewRegistry()
	define(r, "cardiac", "cardiac", []string{"symptoms"})
	define(r, "demographics", "demographics", []string{"symptoms"})

	// Only the cardiac capability was allow-listed "symptoms"; the
	// demographics stage must not be routed toward a field it cannot see.
	plan := NewRouter(r).Route("case_1", available(map[string][]string{
		"cardiac": {"symptoms"},
	}))

	assert.Equal(t, [][]string{{"cardiac"}}, plan.Waves)
	assert.Contains(t, plan.Skipped, "demographics")
}

func TestRouteDependencyWaves(t *testing.T) {
	r := NewRegistry()
	define(r, "triage", "triage", []string{"symptoms"})
	define(r, "cardiac", "cardiac", []string{"symptoms"}, "triage")
	define(r, "report", "report", []string{"symptoms"}, "cardiac", "triage")

	plan := NewRouter(r).Route("case_1", available(map[string][]string{
		"triage": {"symptoms"}, "cardiac": {"symptoms"}, "report": {"symptoms"},
	}))

	require.Equal(t, [][]string{{"triage"}, {"cardiac"}, {"report"}}, plan.Waves)
	assert.Empty(t, plan.Skipped)
}

func TestRouteWaveOrderFollowsDeclaration(t *testing.T) {
	r := NewRegistry()
	define(r, "zeta", "zeta", nil)
	define(r, "alpha", "alpha", nil)

	plan := NewRouter(r).Route("case_1", available(nil))
	require.Len(t, plan.Waves, 1)
	assert.Equal(t, []string{"zeta", "alpha"}, plan.Waves[0], "within a wave declaration order wins, not name order")
}

func TestRouteSkippedDependencyDoesNotCascade(t *testing.T) {
	r := NewRegistry()
	define(r, "labs", "labs", []string{"lab_results"})
	define(r, "cardiac", "cardiac", []string{"symptoms"}, "labs")

	plan := NewRouter(r).Route("case_1", available(map[string][]string{
		"cardiac": {"symptoms"},
	}))

	// The dependent still runs; it observes its dependency's terminal
	// skipped state through its input rather than being skipped itself.
	assert.Equal(t, [][]string{{"cardiac"}}, plan.Waves)
	assert.Contains(t, plan.Skipped, "labs")
	assert.NotContains(t, plan.Skipped, "cardiac")
}

func TestRouteUndeclaredDependency(t *testing.T) {
	r := NewRegistry()
	define(r, "cardiac", "cardiac", nil, "ghost")

	plan := NewRouter(r).Route("case_1", available(nil))
	assert.Empty(t, plan.Waves)
	assert.Contains(t, plan.Skipped["cardiac"], "ghost")
}

func TestRouteDependencyCycle(t *testing.T) {
	r := NewRegistry()
	define(r, "a", "a", nil, "b")
	define(r, "b", "b", nil, "a")
	define(r, "free", "free", nil)

	plan := NewRouter(r).Route("case_1", available(nil))
	require.Equal(t, [][]string{{"free"}}, plan.Waves)
	assert.Equal(t, "dependency cycle", plan.Skipped["a"])
	assert.Equal(t, "dependency cycle", plan.Skipped["b"])
}

func TestRegistrySpawnRequiresFactoryAndProfile(t *testing.T) {
	r := NewRegistry()
	_, err := r.Spawn("missing")
	require.Error(t, err)

	r.RegisterStage("half", okFactory)
	_, err = r.Spawn("half")
	require.Error(t, err, "a factory without a declared profile must not spawn")
}

func TestSortByDeclaration(t *testing.T) {
	r := NewRegistry()
	define(r, "second", "s", nil)
	define(r, "first", "f", nil)

	sorted := r.SortByDeclaration([]string{"first", "stranger", "second"})
	assert.Equal(t, []string{"second", "first", "stranger"}, sorted)
}
