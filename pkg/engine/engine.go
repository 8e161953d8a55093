// Package engine wires the Chip Registry and Pipeline Collection together
// and constructs a Processor per run. It owns no transport, broker, or
// worker state; those layers hold an Engine, not the other way around.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/expr"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/processor"
	"github.com/SouthPatron/reasonchip/pkg/varctx"
)

// ErrValidation aggregates every cross-reference failure found by Validate:
// a DispatchTask/BranchTask naming an unknown pipeline, a ChipTask naming an
// unregistered chip, or (surfaced separately, at load time) a schema that
// failed to parse.
type ErrValidation struct {
	Problems []string
}

func (e *ErrValidation) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("engine: validation failed: %s", e.Problems[0])
	}
	return fmt.Sprintf("engine: validation failed with %d problems: %v", len(e.Problems), e.Problems)
}

// Engine owns the Chip Registry and Pipeline Collection for one process. It
// is safe for concurrent Run calls once Load has completed; Load/Validate
// themselves are not meant to run concurrently with Run.
type Engine struct {
	registry   *chip.Registry
	collection *pipeline.Collection
	evaluator  *expr.Evaluator
	logger     *slog.Logger
}

// New constructs an Engine around an already-populated chip Registry (built
// via chip.NewRegistry + Discover, or by hand for tests). The Collection
// starts empty until Load is called.
func New(registry *chip.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:   registry,
		collection: pipeline.NewCollection(nil),
		evaluator:  expr.New(),
		logger:     logger,
	}
}

// Load walks every collection root, merges the resulting pipelines into the
// Engine's Collection (a later root's pipeline wins on a name collision,
// per pkg/pipeline.Collection.Merge), and then runs Validate.
func (e *Engine) Load(collectionPaths []string) error {
	merged := pipeline.NewCollection(nil)
	for _, root := range collectionPaths {
		col, err := pipeline.Load(root)
		if err != nil {
			return fmt.Errorf("engine: loading %s: %w", root, err)
		}
		merged = merged.Merge(col)
	}
	e.collection = merged
	return e.Validate()
}

// LoadCollection installs an already-built Collection directly (bypassing
// the filesystem loader) and validates it. This is the path unit tests and
// run-local invocations with an in-memory pipeline set use.
func (e *Engine) LoadCollection(col *pipeline.Collection) error {
	e.collection = col
	return e.Validate()
}

// Validate recomputes the load-time invariants: every
// DispatchTask/BranchTask names an existing pipeline and every ChipTask names
// a registered chip. Chip schemas are not checked here: Registry.Register
// takes them as already-typed chip.Schema values.
func (e *Engine) Validate() error {
	var problems []string

	for _, name := range e.collection.Names() {
		pl, _ := e.collection.Resolve(name)
		problems = append(problems, validateTasks(e, pl.Name, pl.Tasks)...)
	}

	if len(problems) > 0 {
		return &ErrValidation{Problems: problems}
	}
	return nil
}

func validateTasks(e *Engine, pipelineName string, tasks []*pipeline.Task) []string {
	var problems []string
	for _, t := range tasks {
		switch t.Kind {
		case pipeline.KindDispatch:
			if _, err := e.collection.Resolve(t.Dispatch); err != nil {
				problems = append(problems, fmt.Sprintf("pipeline %q: dispatch: unknown pipeline %q", pipelineName, t.Dispatch))
			}
		case pipeline.KindBranch:
			if _, err := e.collection.Resolve(t.Branch); err != nil {
				problems = append(problems, fmt.Sprintf("pipeline %q: branch: unknown pipeline %q", pipelineName, t.Branch))
			}
		case pipeline.KindChip:
			if _, err := e.registry.Lookup(t.Chip); err != nil {
				problems = append(problems, fmt.Sprintf("pipeline %q: chip: unregistered chip %q", pipelineName, t.Chip))
			}
		case pipeline.KindTaskSet:
			problems = append(problems, validateTasks(e, pipelineName, t.TaskSet)...)
		}
	}
	return problems
}

// Run constructs a Processor bound to entryName, seeds it with variables,
// and returns the pipeline's result. Each call gets its own Processor so
// concurrent runs never share mutable interpreter state.
func (e *Engine) Run(ctx context.Context, entryName string, variables map[string]any) (any, error) {
	if _, err := e.collection.Resolve(entryName); err != nil {
		return nil, err
	}

	scope := varctx.FromMap(variables)
	p := processor.New(entryName, e.registry, e.resolve, e.evaluator, e.logger)

	result, err := p.RunPipeline(ctx, entryName, scope)
	if value, ok := processor.IsTerminate(err); ok {
		return value, nil
	}
	return result, err
}

func (e *Engine) resolve(name string) (*pipeline.Pipeline, error) {
	return e.collection.Resolve(name)
}
