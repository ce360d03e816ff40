package engine

import (
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// findUnitCycle searches the component unit graph (parent -> direct
// sub-components, edges only between characters that exist as units) for
// a cycle and returns its path, or nil when the graph is acyclic.
//
// Runs at scope-build time, before any readiness evaluation: a cycle is
// a configuration defect and must reject the scope, not hang or
// half-evaluate it. A unit listing itself as its own component counts.
//
// Deterministic: roots and children are visited in character order, so
// the same graph always reports the same cycle.
func findUnitCycle(edges map[srs.Kanji][]srs.Kanji) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	color := make(map[srs.Kanji]int, len(edges))
	roots := make([]srs.Kanji, 0, len(edges))
	for k := range edges {
		roots = append(roots, k)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	var (
		path  []srs.Kanji
		cycle []string
	)

	var visit func(k srs.Kanji) bool
	visit = func(k srs.Kanji) bool {
		color[k] = gray
		path = append(path, k)

		for _, child := range edges[k] {
			switch color[child] {
			case gray:
				// Found the back edge; slice the path from the first
				// occurrence of child to report the loop itself.
				start := 0
				for i, p := range path {
					if p == child {
						start = i
						break
					}
				}
				for _, p := range path[start:] {
					cycle = append(cycle, p.String())
				}
				cycle = append(cycle, child.String())
				return true
			case white:
				if visit(child) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[k] = black
		return false
	}

	for _, root := range roots {
		if color[root] == white {
			if visit(root) {
				return cycle
			}
		}
	}
	return nil
}
