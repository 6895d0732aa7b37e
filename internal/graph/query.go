package graph

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/starford/graphnotes/internal/models"
)

// mostConnectedLimit caps Stats.MostConnected.
const mostConnectedLimit = 10

// Subgraph is a node set and the edges among it.
type Subgraph struct {
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// Filter selects nodes for FilterNodes. Every non-zero field must match.
type Filter struct {
	// IncludeTags keeps nodes carrying at least one of the tags.
	IncludeTags []string
	// ExcludeTags drops nodes carrying any of the tags.
	ExcludeTags []string
	// ModifiedAfter and ModifiedBefore bound Node.Modified inclusively.
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	// TitleContains is a case-insensitive substring of the title.
	TitleContains string
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	return len(s.edges)
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (models.Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return copyNode(n), true
}

// NodeByPath returns the node indexed under filepath.
func (s *Store) NodeByPath(path string) (models.Node, bool) {
	id, ok := s.byPath[path]
	if !ok {
		return models.Node{}, false
	}
	return s.Node(id)
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(id models.EdgeID) (models.Edge, bool) {
	e, ok := s.edges[id]
	if !ok {
		return models.Edge{}, false
	}
	return *e, true
}

// Nodes returns every node, sorted by id.
func (s *Store) Nodes() []models.Node {
	out := make([]models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, copyNode(n))
	}
	sortNodes(out)
	return out
}

// Edges returns every edge, sorted by id.
func (s *Store) Edges() []models.Edge {
	out := make([]models.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	sortEdges(out)
	return out
}

// OutgoingEdges returns the edges whose source is id.
func (s *Store) OutgoingEdges(id string) []models.Edge {
	return s.collect(s.out[id])
}

// IncomingEdges returns the edges whose target is id.
func (s *Store) IncomingEdges(id string) []models.Edge {
	return s.collect(s.in[id])
}

// Neighbors returns the predecessors and successors of id, ignoring direction.
func (s *Store) Neighbors(id string) []models.Node {
	seen := make(map[string]struct{})
	out := []models.Node{}
	for _, nid := range s.adjacent(id) {
		if _, ok := seen[nid]; ok {
			continue
		}
		seen[nid] = struct{}{}
		if n, ok := s.nodes[nid]; ok {
			out = append(out, copyNode(n))
		}
	}
	sortNodes(out)
	return out
}

// Subgraph collects every node within maxDepth undirected hops of center and
// the edges among those nodes. Nodes are marked visited when first reached,
// so cycles are expanded once.
func (s *Store) Subgraph(center string, maxDepth int) Subgraph {
	if _, ok := s.nodes[center]; !ok {
		return Subgraph{Nodes: []models.Node{}, Edges: []models.Edge{}}
	}
	maxDepth = max(maxDepth, 0)

	visited := map[string]struct{}{center: {}}
	frontier := []string{center}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, nid := range s.adjacent(id) {
				if _, ok := visited[nid]; ok {
					continue
				}
				visited[nid] = struct{}{}
				next = append(next, nid)
			}
		}
		frontier = next
	}

	sub := Subgraph{
		Nodes: make([]models.Node, 0, len(visited)),
		Edges: []models.Edge{},
	}
	for id := range visited {
		sub.Nodes = append(sub.Nodes, copyNode(s.nodes[id]))
		for eid := range s.out[id] {
			e := s.edges[eid]
			if _, ok := visited[e.Target]; ok {
				sub.Edges = append(sub.Edges, *e)
			}
		}
	}
	sortNodes(sub.Nodes)
	sortEdges(sub.Edges)
	return sub
}

// FilterNodes returns the nodes matching every criterion of f, sorted by id.
func (s *Store) FilterNodes(f Filter) []models.Node {
	needle := strings.ToLower(f.TitleContains)
	out := []models.Node{}
	for _, n := range s.nodes {
		if len(f.IncludeTags) > 0 && !hasAny(n, f.IncludeTags) {
			continue
		}
		if len(f.ExcludeTags) > 0 && hasAny(n, f.ExcludeTags) {
			continue
		}
		if !f.ModifiedAfter.IsZero() && n.Modified.Before(f.ModifiedAfter) {
			continue
		}
		if !f.ModifiedBefore.IsZero() && n.Modified.After(f.ModifiedBefore) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(n.Title), needle) {
			continue
		}
		out = append(out, copyNode(n))
	}
	sortNodes(out)
	return out
}

// Stats returns graph-wide counts, the orphan list and the ten nodes with the
// highest total degree. Equal degrees are ordered by ascending id.
func (s *Store) Stats() models.Stats {
	st := models.Stats{
		TotalNodes:    len(s.nodes),
		TotalEdges:    len(s.edges),
		OrphanedNodes: []string{},
		MostConnected: []models.ConnectedNode{},
	}

	ranked := make([]models.ConnectedNode, 0, len(s.nodes))
	for id, n := range s.nodes {
		if n.Degree() == 0 {
			st.OrphanedNodes = append(st.OrphanedNodes, id)
		}
		ranked = append(ranked, models.ConnectedNode{ID: id, Title: n.Title, Connections: n.Degree()})
	}
	slices.Sort(st.OrphanedNodes)
	slices.SortFunc(ranked, func(a, b models.ConnectedNode) int {
		if c := cmp.Compare(b.Connections, a.Connections); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(ranked) > mostConnectedLimit {
		ranked = ranked[:mostConnectedLimit]
	}
	st.MostConnected = append(st.MostConnected, ranked...)
	return st
}

// adjacent lists the ids at the far end of every edge touching id.
func (s *Store) adjacent(id string) []string {
	ids := make([]string, 0, len(s.out[id])+len(s.in[id]))
	for eid := range s.out[id] {
		ids = append(ids, s.edges[eid].Target)
	}
	for eid := range s.in[id] {
		ids = append(ids, s.edges[eid].Source)
	}
	return ids
}

func (s *Store) collect(set edgeSet) []models.Edge {
	out := make([]models.Edge, 0, len(set))
	for id := range set {
		out = append(out, *s.edges[id])
	}
	sortEdges(out)
	return out
}

func hasAny(n *models.Node, tags []string) bool {
	for _, t := range tags {
		if n.HasTag(t) {
			return true
		}
	}
	return false
}

func copyNode(n *models.Node) models.Node {
	c := *n
	c.SuperTags = cloneTags(n.SuperTags)
	return c
}

func sortNodes(nodes []models.Node) {
	slices.SortFunc(nodes, func(a, b models.Node) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortEdges(edges []models.Edge) {
	slices.SortFunc(edges, func(a, b models.Edge) int {
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
