package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCyclicGraph rejects a task set whose dependencies form a cycle.
var ErrCyclicGraph = errors.New("task graph contains a cycle")

// Graph is a validated set of tasks keyed by id.
type Graph struct {
	tasks      map[string]*Task
	dependents map[string][]string
	order      []string
}

// Build validates the task set and computes the dependency structure.
// It rejects duplicate ids, edges to unknown tasks, and cycles.
func Build(tasks []*Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task, len(tasks)),
		dependents: make(map[string][]string),
	}

	for _, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("build graph: task id is required")
		}
		if _, ok := g.tasks[t.ID]; ok {
			return nil, fmt.Errorf("build graph: duplicate task id %q", t.ID)
		}
		if !t.Complexity.Valid() {
			return nil, fmt.Errorf("build graph: task %s: unknown complexity %q", t.ID, t.Complexity)
		}
		t.status = StatusPending
		g.tasks[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("build graph: task %s depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return nil, fmt.Errorf("build graph: task %s depends on itself: %w", t.ID, ErrCyclicGraph)
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// topoSort runs Kahn's algorithm; leftover in-degree means a cycle.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.tasks))
	for id, t := range g.tasks {
		inDegree[id] = len(t.DependsOn)
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := append([]string(nil), g.dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(g.tasks) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}

// Size returns the number of tasks.
func (g *Graph) Size() int {
	return len(g.tasks)
}

// Task returns a task by id, or nil.
func (g *Graph) Task(id string) *Task {
	return g.tasks[id]
}

// roots returns the ids with no dependencies, in deterministic order.
func (g *Graph) roots() []string {
	var out []string
	for _, id := range g.order {
		if len(g.tasks[id].DependsOn) == 0 {
			out = append(out, id)
		}
	}
	return out
}
