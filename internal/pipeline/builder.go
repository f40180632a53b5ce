package pipeline

import (
	"errors"
	"fmt"

	"github.com/dbsunset/dbsunset/pkg/toposort"
)

var (
	// ErrDuplicateStep is returned when a step id is declared twice.
	ErrDuplicateStep = errors.New("pipeline: duplicate step id")

	// ErrUnknownDependency is returned when DependsOn names a step that was
	// not declared earlier.
	ErrUnknownDependency = errors.New("pipeline: dependency on undeclared step")

	// ErrMissingRun is returned when a step has no executable.
	ErrMissingRun = errors.New("pipeline: step has no Run function")

	// ErrEmptyPlan is returned when Build is called with no steps.
	ErrEmptyPlan = errors.New("pipeline: plan has no steps")
)

// Builder assembles a Plan step by step. Add is fluent and defers error
// reporting to Build so declarations read as one chain.
type Builder struct {
	steps []*Step
	index map[string]*Step
	errs  []error
}

// NewBuilder initializes an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]*Step)}
}

// Add declares the next step. The step is copied; later mutation of the
// argument does not affect the plan.
func (b *Builder) Add(step Step) *Builder {
	if step.ID == "" {
		b.errs = append(b.errs, errors.New("pipeline: step with empty id"))

		return b
	}

	if _, ok := b.index[step.ID]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateStep, step.ID))

		return b
	}

	if step.Run == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrMissingRun, step.ID))

		return b
	}

	for _, dep := range step.DependsOn {
		if _, ok := b.index[dep]; !ok {
			b.errs = append(b.errs, fmt.Errorf("%w: %q depends on %q", ErrUnknownDependency, step.ID, dep))

			return b
		}
	}

	copied := step
	copied.DependsOn = append([]string(nil), step.DependsOn...)

	b.steps = append(b.steps, &copied)
	b.index[step.ID] = &copied

	return b
}

// Build validates the accumulated declarations and produces the Plan.
func (b *Builder) Build() (*Plan, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}

	if len(b.steps) == 0 {
		return nil, ErrEmptyPlan
	}

	graph := toposort.NewGraph()

	for _, step := range b.steps {
		graph.AddNode(step.ID)

		for _, dep := range step.DependsOn {
			graph.AddEdge(dep, step.ID)
		}
	}

	return &Plan{steps: b.steps, index: b.index, graph: graph}, nil
}

// Plan is a validated, immutable step DAG ready for execution.
type Plan struct {
	steps []*Step
	index map[string]*Step
	graph *toposort.Graph
}

// Steps returns the steps in declaration order.
func (p *Plan) Steps() []*Step {
	return p.steps
}

// Step looks a step up by id.
func (p *Plan) Step(id string) (*Step, bool) {
	step, ok := p.index[id]

	return step, ok
}

// Len returns the number of declared steps.
func (p *Plan) Len() int {
	return len(p.steps)
}

// Levels groups step ids into execution waves: every step in wave i depends
// only on steps in earlier waves. Used for plan rendering; the engine
// schedules dynamically and may interleave waves.
func (p *Plan) Levels() [][]string {
	levels, _ := p.graph.Levels()

	return levels
}

// descendants returns every step transitively depending on id.
func (p *Plan) descendants(id string) []string {
	return p.graph.Descendants(id)
}
