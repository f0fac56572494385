// Package stats decides whether a category's comparison data supports a
// publishable ranking: graph connectivity, circular-triad detection and a
// composite threshold.
package stats

import (
	"sort"

	"github.com/okian/blindpair/internal/domain/model"
)

// ConnectivityResult describes the component structure of the comparison graph.
type ConnectivityResult struct {
	Connected        bool     `json:"connected"`
	ComponentCount   int      `json:"component_count"`
	ComponentSizes   []int    `json:"component_sizes"`
	LargestComponent []string `json:"largest_component"`
	IsolatedItems    []string `json:"isolated_items"`
}

// CheckGraphConnectivity partitions itemIDs into connected components where
// an edge joins two items compared at least once. Comparisons touching items
// outside itemIDs are ignored.
func CheckGraphConnectivity(itemIDs []string, comparisons []model.Comparison) ConnectivityResult {
	inScope := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		inScope[id] = struct{}{}
	}

	adj := make(map[string]map[string]struct{}, len(itemIDs))
	for _, c := range comparisons {
		if c.ItemAID == c.ItemBID {
			continue
		}
		if _, ok := inScope[c.ItemAID]; !ok {
			continue
		}
		if _, ok := inScope[c.ItemBID]; !ok {
			continue
		}
		link(adj, c.ItemAID, c.ItemBID)
		link(adj, c.ItemBID, c.ItemAID)
	}

	visited := make(map[string]bool, len(itemIDs))
	var components [][]string
	res := ConnectivityResult{IsolatedItems: []string{}, ComponentSizes: []int{}, LargestComponent: []string{}}

	for _, start := range itemIDs {
		if visited[start] {
			continue
		}
		if len(adj[start]) == 0 {
			res.IsolatedItems = append(res.IsolatedItems, start)
		}
		components = append(components, bfs(start, adj, visited))
	}

	// Largest first; ties keep discovery order.
	sort.SliceStable(components, func(i, j int) bool { return len(components[i]) > len(components[j]) })

	res.ComponentCount = len(components)
	res.Connected = res.ComponentCount <= 1
	for _, comp := range components {
		res.ComponentSizes = append(res.ComponentSizes, len(comp))
	}
	if len(components) > 0 {
		res.LargestComponent = components[0]
	}
	return res
}

func link(adj map[string]map[string]struct{}, from, to string) {
	m, ok := adj[from]
	if !ok {
		m = make(map[string]struct{})
		adj[from] = m
	}
	m[to] = struct{}{}
}

// bfs visits every node reachable from start and returns them in visit order.
func bfs(start string, adj map[string]map[string]struct{}, visited map[string]bool) []string {
	visited[start] = true
	queue := []string{start}
	var comp []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		comp = append(comp, cur)

		next := make([]string, 0, len(adj[cur]))
		for n := range adj[cur] {
			if !visited[n] {
				next = append(next, n)
			}
		}
		sort.Strings(next)
		for _, n := range next {
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return comp
}
