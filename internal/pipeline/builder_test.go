package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsunset/dbsunset/internal/pipeline"
)

func noop(_ context.Context, _ *pipeline.Step, _ *pipeline.Context) (any, error) {
	return nil, nil
}

func TestBuilder_BuildsLinearChain(t *testing.T) {
	t.Parallel()

	plan, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "a", Run: noop}).
		Add(pipeline.Step{ID: "b", DependsOn: []string{"a"}, Run: noop}).
		Add(pipeline.Step{ID: "c", DependsOn: []string{"b"}, Run: noop}).
		Build()

	require.NoError(t, err)
	assert.Equal(t, 3, plan.Len())

	levels := plan.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, levels[0])
	assert.Equal(t, []string{"b"}, levels[1])
	assert.Equal(t, []string{"c"}, levels[2])
}

func TestBuilder_LevelsGroupIndependentSteps(t *testing.T) {
	t.Parallel()

	plan, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "root", Run: noop}).
		Add(pipeline.Step{ID: "left", DependsOn: []string{"root"}, Run: noop}).
		Add(pipeline.Step{ID: "right", DependsOn: []string{"root"}, Run: noop}).
		Add(pipeline.Step{ID: "join", DependsOn: []string{"left", "right"}, Run: noop}).
		Build()

	require.NoError(t, err)

	levels := plan.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"left", "right"}, levels[1])
}

func TestBuilder_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "a", Run: noop}).
		Add(pipeline.Step{ID: "a", Run: noop}).
		Build()

	require.ErrorIs(t, err, pipeline.ErrDuplicateStep)
}

func TestBuilder_RejectsUndeclaredDependency(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "a", DependsOn: []string{"ghost"}, Run: noop}).
		Build()

	require.ErrorIs(t, err, pipeline.ErrUnknownDependency)
}

func TestBuilder_RejectsForwardDependency(t *testing.T) {
	t.Parallel()

	// DependsOn may only name earlier declarations, which is what keeps the
	// graph acyclic by construction.
	_, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "a", DependsOn: []string{"b"}, Run: noop}).
		Add(pipeline.Step{ID: "b", Run: noop}).
		Build()

	require.ErrorIs(t, err, pipeline.ErrUnknownDependency)
}

func TestBuilder_RejectsMissingRun(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewBuilder().
		Add(pipeline.Step{ID: "a"}).
		Build()

	require.ErrorIs(t, err, pipeline.ErrMissingRun)
}

func TestBuilder_RejectsEmptyPlan(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewBuilder().Build()

	require.ErrorIs(t, err, pipeline.ErrEmptyPlan)
}
