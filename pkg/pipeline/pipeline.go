package pipeline

import "fmt"

// Pipeline is an ordered, immutable list of tasks addressed by a dotted
// name (e.g. "chatbot.app.entry").
type Pipeline struct {
	Name  string
	Tasks []*Task
}

// Collection is a name → Pipeline mapping, built once by a Loader and never
// mutated afterward.
type Collection struct {
	pipelines map[string]*Pipeline
}

// NewCollection wraps a name → Pipeline map as a Collection.
func NewCollection(pipelines map[string]*Pipeline) *Collection {
	if pipelines == nil {
		pipelines = make(map[string]*Pipeline)
	}
	return &Collection{pipelines: pipelines}
}

// ErrUnknownPipeline is returned when a DispatchTask or BranchTask names a
// pipeline the Collection does not contain.
type ErrUnknownPipeline struct {
	Name string
}

func (e *ErrUnknownPipeline) Error() string {
	return fmt.Sprintf("pipeline: unknown pipeline %q", e.Name)
}

// Resolve looks up a pipeline by dotted name.
func (c *Collection) Resolve(name string) (*Pipeline, error) {
	p, ok := c.pipelines[name]
	if !ok {
		return nil, &ErrUnknownPipeline{Name: name}
	}
	return p, nil
}

// Names returns every pipeline name in the collection, for validation walks.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.pipelines))
	for n := range c.pipelines {
		names = append(names, n)
	}
	return names
}

// All returns every pipeline in the collection.
func (c *Collection) All() []*Pipeline {
	all := make([]*Pipeline, 0, len(c.pipelines))
	for _, p := range c.pipelines {
		all = append(all, p)
	}
	return all
}

// Len reports the number of pipelines in the collection.
func (c *Collection) Len() int {
	return len(c.pipelines)
}

// Merge combines two collections into a new one. Names present in both
// panic-free overwrite: later (other) wins, matching a second
// --collection flag overriding an earlier one of the same name.
func (c *Collection) Merge(other *Collection) *Collection {
	merged := make(map[string]*Pipeline, len(c.pipelines)+len(other.pipelines))
	for k, v := range c.pipelines {
		merged[k] = v
	}
	for k, v := range other.pipelines {
		merged[k] = v
	}
	return NewCollection(merged)
}
