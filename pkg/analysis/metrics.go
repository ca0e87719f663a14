// Package analysis computes aggregate graph statistics over a resolved
// registry.
package analysis

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ykrivopalov/objdeps/pkg/registry"
	"github.com/ykrivopalov/objdeps/pkg/stats"
)

// Summary describes the shape of the dependency graph.
type Summary struct {
	Libraries int        `json:"libraries"`
	Edges     int        `json:"edges"`
	AvgDegree float64    `json:"avg_degree"`
	MaxDeps   int        `json:"max_dependencies"`
	P90Deps   float64    `json:"p90_dependencies"`
	Density   float64    `json:"density"`
	Cycles    [][]string `json:"cycles,omitempty"`
}

// Summarize computes graph statistics for a resolved registry. Cycles are
// strongly connected components with more than one library, each sorted by
// name; the list itself is sorted by first member for stable output.
func Summarize(reg *registry.Registry) *Summary {
	libs := reg.Libraries()
	s := &Summary{Libraries: len(libs)}
	if len(libs) == 0 {
		return s
	}

	g := simple.NewDirectedGraph()
	idByName := make(map[string]int64, len(libs))
	nameByID := make(map[int64]string, len(libs))
	for i, lib := range libs {
		id := int64(i)
		idByName[lib.Name] = id
		nameByID[id] = lib.Name
		g.AddNode(simple.Node(id))
	}

	depCounts := make([]int, 0, len(libs))
	for _, lib := range libs {
		s.Edges += lib.Dependencies.Len()
		depCounts = append(depCounts, lib.Dependencies.Len())
		from := idByName[lib.Name]
		for dep := range lib.Dependencies {
			to, ok := idByName[dep]
			if !ok || to == from {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}

	// Every edge contributes one out-degree and one in-degree.
	s.AvgDegree = float64(2*s.Edges) / float64(len(libs))
	s.MaxDeps = stats.MaxInt(depCounts)
	counts := make([]float64, len(depCounts))
	for i, c := range depCounts {
		counts[i] = float64(c)
	}
	sort.Float64s(counts)
	s.P90Deps = stats.Percentile(counts, 90)
	if len(libs) > 1 {
		s.Density = float64(s.Edges) / float64(len(libs)*(len(libs)-1))
	}

	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, 0, len(scc))
		for _, node := range scc {
			names = append(names, nameByID[node.ID()])
		}
		sort.Strings(names)
		s.Cycles = append(s.Cycles, names)
	}
	sort.Slice(s.Cycles, func(i, j int) bool {
		return s.Cycles[i][0] < s.Cycles[j][0]
	})

	return s
}
