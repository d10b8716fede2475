// Package graph provides the directed field-dependency graph used to detect
// circular formula dependencies and to order calculated fields for
// evaluation. Graphs are built fresh per validation pass and are not safe for
// concurrent mutation.
package graph

import (
	"fmt"
	"sort"
)

// UnknownNodeError reports an edge endpoint that was never registered.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("graph: unknown node %q", e.Node)
}

// Graph is a directed graph over string identifiers. Node iteration follows
// AddNode insertion order so traversal results are deterministic for a given
// field list.
type Graph struct {
	order []string
	index map[string]int
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		edges: make(map[string][]string),
	}
}

// AddNode registers id with no edges. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.order)
	g.order = append(g.order, id)
}

// Has reports whether id was registered.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// AddEdge records a directed edge from -> to. Both endpoints must already be
// registered.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.index[from]; !ok {
		return &UnknownNodeError{Node: from}
	}
	if _, ok := g.index[to]; !ok {
		return &UnknownNodeError{Node: to}
	}
	g.edges[from] = append(g.edges[from], to)
	return nil
}

// FindCycle returns the first cycle discovered by a depth-first walk rooted
// at each node in insertion order, as a sequence whose first and last
// elements are the same node. It returns nil when the graph is acyclic.
//
// The walk keeps an explicit frame stack instead of recursing so arbitrarily
// long dependency chains cannot exhaust the call stack.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		pending
		done
	)

	state := make(map[string]int, len(g.order))

	type frame struct {
		node string
		next int
	}

	for _, root := range g.order {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{node: root}}
		path := []string{root}
		state[root] = pending

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			targets := g.edges[top.node]
			if top.next >= len(targets) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			next := targets[top.next]
			top.next++

			switch state[next] {
			case unvisited:
				state[next] = pending
				stack = append(stack, frame{node: next})
				path = append(path, next)
			case pending:
				// next is on the current path: the cycle is the path suffix
				// starting at next, closed by repeating next.
				for i, id := range path {
					if id == next {
						cycle := append([]string(nil), path[i:]...)
						return append(cycle, next)
					}
				}
			}
		}
	}
	return nil
}

// TopoSort returns every node ordered so that edge targets appear before
// their sources (dependencies before dependents). Ties break on insertion
// order. It fails when the graph contains a cycle.
func (g *Graph) TopoSort() ([]string, error) {
	// An edge from -> to means "from depends on to", so to must come first:
	// count outstanding dependency edges per dependent.
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for from, targets := range g.edges {
		for _, to := range targets {
			dependents[to] = append(dependents[to], from)
			inDegree[from]++
		}
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	ordered := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, id)
		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Slice(queue, func(i, j int) bool {
			return g.index[queue[i]] < g.index[queue[j]]
		})
	}

	if len(ordered) != len(g.order) {
		return nil, fmt.Errorf("graph: contains a cycle")
	}
	return ordered, nil
}
