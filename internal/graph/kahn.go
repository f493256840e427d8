package graph

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
)

// ProcessingQueue wraps a list-based FIFO queue for Kahn's algorithm.
type ProcessingQueue struct {
	queue *list.List
}

// NewProcessingQueue creates a new empty processing queue.
func NewProcessingQueue() *ProcessingQueue {
	return &ProcessingQueue{queue: list.New()}
}

// Enqueue adds a node to the back of the queue.
func (pq *ProcessingQueue) Enqueue(node string) {
	pq.queue.PushBack(node)
}

// Dequeue removes and returns the node at the front of the queue.
func (pq *ProcessingQueue) Dequeue() (string, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(string), true
}

// IsEmpty returns true if the queue has no nodes.
func (pq *ProcessingQueue) IsEmpty() bool {
	return pq.queue.Len() == 0
}

// CalculateInDegrees returns the number of unmet dependencies of every stage.
func (g *Graph) CalculateInDegrees() map[string]int {
	inDegree := make(map[string]int, g.nodes.Len())
	for _, name := range g.AllNodes() {
		inDegree[name] = len(g.parents[name])
	}
	return inDegree
}

// initializeQueue enqueues every stage without dependencies, in insertion order.
func (g *Graph) initializeQueue(inDegree map[string]int) *ProcessingQueue {
	pq := NewProcessingQueue()
	for _, name := range g.AllNodes() {
		if inDegree[name] == 0 {
			pq.Enqueue(name)
		}
	}
	return pq
}

// ErrCycleDetected is returned when the stage graph contains a cycle.
var ErrCycleDetected = errors.New("cycle detected in stage graph")

// CycleInfo describes the stages left over when Kahn's algorithm stalls.
type CycleInfo struct {
	TotalNodes        int
	ProcessedNodes    int
	UnprocessedNodes  []string // stages in or blocked by a cycle
	CycleParticipants []string // stages that are part of a cycle
	CyclePath         []string // e.g. [A, B, C, A]
}

// CycleError reports a cycle with the stages involved and the stages it blocks.
type CycleError struct {
	Info *CycleInfo
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in stage graph: %d of %d stages could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}
	if len(e.Info.CycleParticipants) > 0 {
		msg += fmt.Sprintf("\nStages in cycle: %s", strings.Join(e.Info.CycleParticipants, ", "))
	}

	participant := make(map[string]bool, len(e.Info.CycleParticipants))
	for _, p := range e.Info.CycleParticipants {
		participant[p] = true
	}
	var blocked []string
	for _, u := range e.Info.UnprocessedNodes {
		if !participant[u] {
			blocked = append(blocked, u)
		}
	}
	if len(blocked) > 0 {
		msg += fmt.Sprintf("\nStages blocked by cycle: %s", strings.Join(blocked, ", "))
	}
	return msg
}

// Is reports ErrCycleDetected as matching, so callers can use errors.Is.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// TopologicalSort returns the stages in dependency order using Kahn's
// algorithm. Ties are broken by insertion order. A cycle yields *CycleError.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := g.CalculateInDegrees()
	queue := g.initializeQueue(inDegree)

	result := make([]string, 0, g.nodes.Len())
	for !queue.IsEmpty() {
		node, _ := queue.Dequeue()
		result = append(result, node)

		for _, child := range g.children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.Enqueue(child)
			}
		}
	}

	if len(result) != g.nodes.Len() {
		return nil, &CycleError{Info: g.cycleInfo(result)}
	}
	return result, nil
}

// Validate returns *CycleError if the graph cannot be ordered.
func (g *Graph) Validate() error {
	_, err := g.TopologicalSort()
	return err
}

func (g *Graph) cycleInfo(processed []string) *CycleInfo {
	done := make(map[string]bool, len(processed))
	for _, n := range processed {
		done[n] = true
	}

	var unprocessed []string
	remaining := make(map[string]bool)
	for _, name := range g.AllNodes() {
		if !done[name] {
			unprocessed = append(unprocessed, name)
			remaining[name] = true
		}
	}

	var participants []string
	for _, node := range unprocessed {
		if g.canReachSelf(node, remaining) {
			participants = append(participants, node)
		}
	}

	var path []string
	if len(participants) > 0 {
		path = g.FindCyclePath(participants[0], remaining)
	}

	return &CycleInfo{
		TotalNodes:        g.nodes.Len(),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: participants,
		CyclePath:         path,
	}
}

// FindCyclePath returns a cycle through start within allowed, with start at
// both ends, or nil if there is none.
func (g *Graph) FindCyclePath(start string, allowed map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}
	if g.dfsFindPath(start, start, visited, allowed, &path) {
		return path
	}
	return nil
}

func (g *Graph) dfsFindPath(current, target string, visited, allowed map[string]bool, path *[]string) bool {
	for _, child := range g.children[current] {
		if !allowed[child] {
			continue
		}
		if child == target {
			*path = append(*path, target)
			return true
		}
		if visited[child] {
			continue
		}

		visited[child] = true
		*path = append(*path, child)
		if g.dfsFindPath(child, target, visited, allowed, path) {
			return true
		}
		*path = (*path)[:len(*path)-1]
	}
	return false
}

func (g *Graph) canReachSelf(start string, allowed map[string]bool) bool {
	visited := make(map[string]bool)
	var reach func(current string) bool
	reach = func(current string) bool {
		for _, child := range g.children[current] {
			if child == start {
				return true
			}
			if visited[child] || !allowed[child] {
				continue
			}
			visited[child] = true
			if reach(child) {
				return true
			}
		}
		return false
	}
	return reach(start)
}
