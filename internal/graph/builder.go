package graph

import "fmt"

// StageSpec declares a stage and the stages it depends on.
type StageSpec struct {
	Name        string
	Description string
	DependsOn   []string
	Produces    []string
}

// Build constructs and validates a stage graph. Stages are added in spec
// order, which is also the tie-break order of the execution plan.
func Build(specs []StageSpec) (*Graph, error) {
	g := NewGraph()
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("stage name is empty")
		}
		if err := g.AddNode(s.Name, &Node{Description: s.Description, Produces: s.Produces}); err != nil {
			return nil, err
		}
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if err := g.AddEdge(dep, s.Name); err != nil {
				return nil, err
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return g, nil
}
