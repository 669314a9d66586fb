package rungraph

import (
	"slices"
	"sort"
	"strings"
)

type visitState uint8

const (
	unvisited visitState = iota
	onStack
	finished
)

type dfsFrame struct {
	node string
	next int
}

// findCycles walks the spawn adjacency iteratively and returns every distinct
// cycle, each rotated so its smallest run id comes first.
func findCycles(nodes []string, adjacency map[string][]string) [][]string {
	roots := slices.Clone(nodes)
	sort.Strings(roots)

	state := make(map[string]visitState, len(nodes))
	seen := make(map[string]bool)
	var cycles [][]string

	for _, root := range roots {
		if state[root] != unvisited {
			continue
		}
		state[root] = onStack
		stack := []dfsFrame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := adjacency[top.node]
			if top.next >= len(edges) {
				state[top.node] = finished
				stack = stack[:len(stack)-1]
				continue
			}
			next := edges[top.next]
			top.next++

			switch state[next] {
			case unvisited:
				state[next] = onStack
				stack = append(stack, dfsFrame{node: next})
			case onStack:
				cycle := canonicalRotation(cycleFrom(stack, next))
				signature := strings.Join(cycle, "\x00")
				if !seen[signature] {
					seen[signature] = true
					cycles = append(cycles, cycle)
				}
			}
		}
	}
	return cycles
}

// cycleFrom returns the stack suffix that starts at closing.
func cycleFrom(stack []dfsFrame, closing string) []string {
	start := len(stack) - 1
	for start > 0 && stack[start].node != closing {
		start--
	}
	cycle := make([]string, 0, len(stack)-start)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.node)
	}
	return cycle
}

// canonicalRotation returns the lexicographically smallest rotation of cycle.
// Run ids on one cycle are distinct, so that rotation starts at the smallest id.
func canonicalRotation(cycle []string) []string {
	smallest := 0
	for i, id := range cycle {
		if id < cycle[smallest] {
			smallest = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[smallest:]...)
	return append(rotated, cycle[:smallest]...)
}
