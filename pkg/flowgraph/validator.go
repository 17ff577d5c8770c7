// Package flowgraph validates canvas flow descriptions: structural checks,
// cycle detection, topological ordering and reachability. The algorithms are
// pure and allocation-light; node ids stay short strings indexed into dense
// adjacency maps.
package flowgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/models"
)

// Options tunes validation behavior.
type Options struct {
	// Strict promotes isolated-node warnings to errors.
	Strict bool
	// IgnoreTypes lists node types exempt from the isolated-node check.
	// Defaults to {output} when nil.
	IgnoreTypes map[models.NodeType]bool
}

// Result is the public validation outcome.
type Result struct {
	Valid          bool     `json:"valid"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// Validate checks a flow graph and derives its execution order. Errors make
// the result invalid and leave ExecutionOrder empty; warnings do not, unless
// Strict is set.
func Validate(g models.FlowGraph, opts Options) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	if len(g.Nodes) == 0 {
		res.Errors = append(res.Errors, "flow has no nodes")
		return res
	}

	nodeTypes := make(map[string]models.NodeType, len(g.Nodes))
	hasOutput := false
	for _, n := range g.Nodes {
		if n.ID == "" {
			res.Errors = append(res.Errors, "flow contains a node without an id")
			continue
		}
		if _, dup := nodeTypes[n.ID]; dup {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodeTypes[n.ID] = n.Type
		if n.Type == models.NodeOutput {
			hasOutput = true
		}
	}
	if !hasOutput {
		res.Errors = append(res.Errors, "flow has no output node")
	}

	// Successor adjacency plus indegrees; edges referencing unknown nodes
	// are hard errors.
	next := make(map[string][]string, len(g.Nodes))
	indegree := make(map[string]int, len(g.Nodes))
	for id := range nodeTypes {
		indegree[id] = 0
	}
	for _, e := range g.Edges {
		if _, ok := nodeTypes[e.Source]; !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("edge references unknown source node %q", e.Source))
			continue
		}
		if _, ok := nodeTypes[e.Target]; !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("edge references unknown target node %q", e.Target))
			continue
		}
		next[e.Source] = append(next[e.Source], e.Target)
		indegree[e.Target]++
	}
	for id := range next {
		sort.Strings(next[id])
	}

	for _, cycle := range findCycles(nodeTypes, next) {
		res.Errors = append(res.Errors, fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
	}

	if len(res.Errors) > 0 {
		return res
	}

	order := topoSort(nodeTypes, next, indegree)
	if len(order) != len(nodeTypes) {
		// Unreachable when cycle detection ran clean, kept as a guard.
		res.Errors = append(res.Errors, "flow contains a cycle")
		return res
	}

	ignore := opts.IgnoreTypes
	if ignore == nil {
		ignore = map[models.NodeType]bool{models.NodeOutput: true}
	}
	for _, id := range isolatedNodes(nodeTypes, next, indegree, ignore) {
		msg := fmt.Sprintf("node %q is not reachable from any source node", id)
		if opts.Strict {
			res.Errors = append(res.Errors, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}
	if len(res.Errors) > 0 {
		return res
	}

	res.Valid = true
	res.ExecutionOrder = order
	return res
}

// findCycles runs an iterative DFS with an explicit stack and a
// recursion-stack set, reporting each cycle as the path from the cycle start
// back to itself. Recursion is avoided on purpose; canvas graphs can be deep.
func findCycles(nodes map[string]models.NodeType, next map[string][]string) [][]string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	color := make(map[string]int, len(nodes))
	var cycles [][]string

	roots := make([]string, 0, len(nodes))
	for id := range nodes {
		roots = append(roots, id)
	}
	sort.Strings(roots)

	type frame struct {
		id    string
		child int
	}

	for _, root := range roots {
		if color[root] != white {
			continue
		}

		stack := []frame{{id: root}}
		path := []string{root}
		color[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := next[top.id]

			if top.child < len(succ) {
				child := succ[top.child]
				top.child++

				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{id: child})
					path = append(path, child)
				case gray:
					// Found a back edge; slice the cycle out of the path.
					start := len(path) - 1
					for start >= 0 && path[start] != child {
						start--
					}
					cycle := append([]string{}, path[start:]...)
					cycle = append(cycle, child)
					cycles = append(cycles, cycle)
				}
				continue
			}

			color[top.id] = black
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
		}
	}

	return cycles
}

// topoSort is Kahn's algorithm over the indegree map. The returned order is
// deterministic (ready nodes drain in sorted order) but no stable tie-break
// is promised to callers.
func topoSort(nodes map[string]models.NodeType, next map[string][]string, indegree map[string]int) []string {
	remaining := make(map[string]int, len(indegree))
	var queue []string
	for id, d := range indegree {
		remaining[id] = d
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, child := range next[id] {
			remaining[child]--
			if remaining[child] == 0 {
				queue = append(queue, child)
			}
		}
		sort.Strings(queue)
	}

	return order
}

// isolatedNodes runs a BFS from every connected root (no incoming edges,
// at least one outgoing) and returns the ids outside the reachable set,
// skipping ignored types. A node with no edges at all is never a root, so
// dangling canvas nodes are flagged.
func isolatedNodes(nodes map[string]models.NodeType, next map[string][]string, indegree map[string]int, ignore map[models.NodeType]bool) []string {
	reached := make(map[string]bool, len(nodes))
	var queue []string
	for id, d := range indegree {
		if d == 0 && len(next[id]) > 0 {
			reached[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range next[id] {
			if !reached[child] {
				reached[child] = true
				queue = append(queue, child)
			}
		}
	}

	var isolated []string
	for id, t := range nodes {
		if !reached[id] && !ignore[t] {
			isolated = append(isolated, id)
		}
	}
	sort.Strings(isolated)
	return isolated
}
