// Package graph provides the stage dependency graph that orders a pipeline run.
package graph

import (
	"errors"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// ErrUnknownNode is returned when an edge refers to a stage that was never added.
var ErrUnknownNode = errors.New("unknown stage")

// Node represents a pipeline stage in the dependency graph.
type Node struct {
	Name        string
	Description string
	Produces    []string // artifact names written by the stage
}

// Edge represents a dependency: From must finish before To starts.
type Edge struct {
	From string
	To   string
}

// Graph is a directed graph of stages. Node and edge insertion order is kept,
// so every traversal, and therefore the execution order, is deterministic.
type Graph struct {
	nodes    *orderedmap.OrderedMap[string, *Node]
	children map[string][]string // stage -> stages that depend on it
	parents  map[string][]string // stage -> stages it depends on
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    orderedmap.NewOrderedMap[string, *Node](),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a stage. If node is nil, a node with only a name is created.
func (g *Graph) AddNode(name string, node *Node) error {
	if _, exists := g.nodes.Get(name); exists {
		return fmt.Errorf("duplicate stage %q", name)
	}
	if node == nil {
		node = &Node{}
	}
	node.Name = name
	g.nodes.Set(name, node)
	return nil
}

// AddEdge records that to depends on from. Both stages must exist.
func (g *Graph) AddEdge(from, to string) error {
	if !g.HasNode(from) {
		return fmt.Errorf("%w %q (dependency of %q)", ErrUnknownNode, from, to)
	}
	if !g.HasNode(to) {
		return fmt.Errorf("%w %q", ErrUnknownNode, to)
	}
	for _, c := range g.children[from] {
		if c == to {
			return nil
		}
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	return nil
}

// GetChildren returns the stages that depend directly on name.
func (g *Graph) GetChildren(name string) []string {
	return g.children[name]
}

// GetParents returns the stages name depends on directly.
func (g *Graph) GetParents(name string) []string {
	return g.parents[name]
}

// GetNode returns the node for a stage, or nil if not found.
func (g *Graph) GetNode(name string) *Node {
	node, _ := g.nodes.Get(name)
	return node
}

// HasNode returns true if the graph contains the stage.
func (g *Graph) HasNode(name string) bool {
	_, exists := g.nodes.Get(name)
	return exists
}

// NodeCount returns the number of stages.
func (g *Graph) NodeCount() int {
	return g.nodes.Len()
}

// EdgeCount returns the number of dependencies.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// AllNodes returns the stage names in insertion order.
func (g *Graph) AllNodes() []string {
	names := make([]string, 0, g.nodes.Len())
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// AllEdges returns every dependency, grouped by source stage in insertion order.
func (g *Graph) AllEdges() []Edge {
	var edges []Edge
	for _, from := range g.AllNodes() {
		for _, to := range g.children[from] {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

// InDegree returns the number of stages name depends on.
func (g *Graph) InDegree(name string) int {
	return len(g.parents[name])
}
