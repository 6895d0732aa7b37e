package noteservice

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/graphnotes/internal/apperr"
	"github.com/starford/graphnotes/internal/checksum"
	"github.com/starford/graphnotes/internal/graph"
	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/parser"
)

// Graph returns the nodes matching f and every edge between two of them.
// A zero filter returns the whole graph.
func (s *Service) Graph(_ context.Context, f graph.Filter) graph.Subgraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := s.graph.FilterNodes(f)
	keep := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = struct{}{}
	}
	edges := []models.Edge{}
	for _, e := range s.graph.Edges() {
		_, src := keep[e.Source]
		_, tgt := keep[e.Target]
		if src && tgt {
			edges = append(edges, e)
		}
	}
	return graph.Subgraph{Nodes: nodes, Edges: edges}
}

// Stats returns graph-wide statistics.
func (s *Service) Stats(_ context.Context) models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Stats()
}

// Node returns the node with the given id.
func (s *Service) Node(_ context.Context, id string) (models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.graph.Node(id)
	if !ok {
		return models.Node{}, apperr.ErrNotFound
	}
	return n, nil
}

// Neighbors returns the nodes adjacent to id in either direction.
func (s *Service) Neighbors(_ context.Context, id string) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.graph.Node(id); !ok {
		return nil, apperr.ErrNotFound
	}
	return s.graph.Neighbors(id), nil
}

// Incoming returns the edges pointing at id.
func (s *Service) Incoming(_ context.Context, id string) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.graph.Node(id); !ok {
		return nil, apperr.ErrNotFound
	}
	return s.graph.IncomingEdges(id), nil
}

// Outgoing returns the edges leaving id.
func (s *Service) Outgoing(_ context.Context, id string) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.graph.Node(id); !ok {
		return nil, apperr.ErrNotFound
	}
	return s.graph.OutgoingEdges(id), nil
}

// Subgraph returns the neighbourhood of id up to depth hops. depth is
// clamped to the configured maximum.
func (s *Service) Subgraph(_ context.Context, id string, depth int) (graph.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.graph.Node(id); !ok {
		return graph.Subgraph{}, apperr.ErrNotFound
	}
	return s.graph.Subgraph(id, min(depth, s.maxDepth)), nil
}

// MaxDepth is the largest depth Subgraph honours.
func (s *Service) MaxDepth() int {
	return s.maxDepth
}

// Backlinks returns the paths of notes linking to the note at path.
func (s *Service) Backlinks(_ context.Context, p string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.graph.NodeByPath(p)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.backlinkPaths(n.ID), nil
}

// Unresolved lists references that matched no note when their source was
// last applied.
func (s *Service) Unresolved(_ context.Context) ([]index.UnresolvedLink, error) {
	return s.db.Unresolved()
}

// backlinkPaths lists the distinct source paths of edges into id.
func (s *Service) backlinkPaths(id string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, e := range s.graph.IncomingEdges(id) {
		src, ok := s.graph.Node(e.Source)
		if !ok {
			continue
		}
		if _, dup := seen[src.Path]; dup {
			continue
		}
		seen[src.Path] = struct{}{}
		out = append(out, src.Path)
	}
	return out
}

// UpsertLink adds or replaces an explicit link on the note sourceID and
// persists it in the note's frontmatter. A definition without an id gets a
// new UUID; one whose id is already present replaces it. An id held by a
// link of another note is a conflict.
func (s *Service) UpsertLink(ctx context.Context, sourceID string, def models.LinkDefinition) (models.Edge, error) {
	def.Target = strings.TrimSpace(def.Target)
	if def.Target == "" {
		return models.Edge{}, fmt.Errorf("noteservice: link target required: %w", apperr.ErrInvalidInput)
	}
	if err := def.Appearance.Validate(); err != nil {
		return models.Edge{}, fmt.Errorf("noteservice: link appearance: %v: %w", err, apperr.ErrInvalidInput)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Name == "" {
		def.Name = models.DefaultRelationName
	}
	def.Appearance = def.Appearance.Normalize()

	s.mu.Lock()
	edge, err := s.upsertLinkLocked(sourceID, def)
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()
	if err != nil {
		return models.Edge{}, err
	}
	s.metrics.observeSize(nodes, edges)
	s.notify(models.Change{Kind: models.ChangeLinked, NoteID: sourceID, EdgeID: edge.ID.String()})
	return edge, nil
}

func (s *Service) upsertLinkLocked(sourceID string, def models.LinkDefinition) (models.Edge, error) {
	src, ok := s.graph.Node(sourceID)
	if !ok {
		return models.Edge{}, apperr.ErrNotFound
	}
	if held, ok := s.graph.Edge(models.ExplicitEdgeID(def.ID)); ok && held.Source != sourceID {
		return models.Edge{}, fmt.Errorf("noteservice: link id %q belongs to %s: %w", def.ID, held.Source, apperr.ErrConflict)
	}
	r := s.graph.Resolver()
	res := r.Resolve(def.Target, sourceID)
	if res.Outcome != graph.Resolved {
		return models.Edge{}, fmt.Errorf("noteservice: link target %q is %s: %w", def.Target, res.Outcome, apperr.ErrInvalidInput)
	}

	data, parsed, err := s.readParsed(src.Path)
	if err != nil {
		return models.Edge{}, err
	}
	if def.Created.IsZero() {
		def.Created = s.now().UTC().Truncate(0)
	}

	defs := parsed.Links
	replaced := -1
	for i := range defs {
		if defs[i].ID == def.ID {
			replaced = i
			break
		}
	}
	retarget := false
	if replaced >= 0 {
		prev, _, _ := r.Lookup(defs[replaced].Target)
		retarget = prev != res.ID
		defs[replaced] = def
	} else {
		defs = append(defs, def)
	}

	out, err := s.persistLinks(src.Path, data, defs)
	if err != nil {
		return models.Edge{}, err
	}

	edge := models.Edge{
		ID:          models.ExplicitEdgeID(def.ID),
		Source:      sourceID,
		Target:      res.ID,
		Name:        def.Name,
		Description: def.Description,
		Created:     def.Created,
		Appearance:  def.Appearance,
	}
	if retarget {
		// The old target may regain an implicit edge from the body.
		if err := s.relinkLocked(src.Path, out); err != nil {
			return models.Edge{}, err
		}
	} else if !s.graph.SetEdge(edge) {
		return models.Edge{}, fmt.Errorf("noteservice: set edge %s: %w", edge.ID, apperr.ErrConflict)
	}
	stored, _ := s.graph.Edge(edge.ID)
	return stored, nil
}

// DeleteLink removes an explicit link from its source note's frontmatter and
// from the graph. Implicit edges follow the note text and cannot be deleted
// here.
func (s *Service) DeleteLink(ctx context.Context, id models.EdgeID) error {
	if id.IsImplicit() {
		return fmt.Errorf("noteservice: implicit edge %s is defined by note text: %w", id, apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	e, err := s.deleteLinkLocked(id)
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.metrics.observeSize(nodes, edges)
	s.notify(models.Change{Kind: models.ChangeLinked, NoteID: e.Source, EdgeID: id.String()})
	return nil
}

func (s *Service) deleteLinkLocked(id models.EdgeID) (models.Edge, error) {
	e, ok := s.graph.Edge(id)
	if !ok {
		return models.Edge{}, apperr.ErrNotFound
	}
	src, ok := s.graph.Node(e.Source)
	if !ok {
		return models.Edge{}, apperr.ErrNotFound
	}
	data, parsed, err := s.readParsed(src.Path)
	if err != nil {
		return models.Edge{}, err
	}

	at := definitionIndex(parsed.Links, src.ID, id.Explicit)
	if at < 0 {
		return models.Edge{}, fmt.Errorf("noteservice: link %s not in %s: %w", id, src.Path, apperr.ErrNotFound)
	}
	defs := append(parsed.Links[:at:at], parsed.Links[at+1:]...)

	out, err := s.persistLinks(src.Path, data, defs)
	if err != nil {
		return models.Edge{}, err
	}

	s.graph.RemoveEdge(id)
	if needsRelink(parsed, at, e.Target, s.graph.Resolver(), src.ID) {
		if err := s.relinkLocked(src.Path, out); err != nil {
			return models.Edge{}, err
		}
	}
	return e, nil
}

// UpdateLinkAppearance changes how an edge is drawn. Explicit edges persist
// the change in frontmatter; implicit edges keep it in memory until their
// source note is next applied.
func (s *Service) UpdateLinkAppearance(ctx context.Context, id models.EdgeID, a models.Appearance) (models.Edge, error) {
	if err := a.Validate(); err != nil {
		return models.Edge{}, fmt.Errorf("noteservice: appearance: %v: %w", err, apperr.ErrInvalidInput)
	}
	a = a.Normalize()

	s.mu.Lock()
	e, err := s.updateAppearanceLocked(id, a)
	s.mu.Unlock()
	if err != nil {
		return models.Edge{}, err
	}
	s.notify(models.Change{Kind: models.ChangeLinked, NoteID: e.Source, EdgeID: id.String()})
	return e, nil
}

func (s *Service) updateAppearanceLocked(id models.EdgeID, a models.Appearance) (models.Edge, error) {
	e, ok := s.graph.Edge(id)
	if !ok {
		return models.Edge{}, apperr.ErrNotFound
	}
	if !id.IsImplicit() {
		src, ok := s.graph.Node(e.Source)
		if !ok {
			return models.Edge{}, apperr.ErrNotFound
		}
		data, parsed, err := s.readParsed(src.Path)
		if err != nil {
			return models.Edge{}, err
		}
		at := definitionIndex(parsed.Links, src.ID, id.Explicit)
		if at < 0 {
			return models.Edge{}, fmt.Errorf("noteservice: link %s not in %s: %w", id, src.Path, apperr.ErrNotFound)
		}
		parsed.Links[at].Appearance = a
		if _, err := s.persistLinks(src.Path, data, parsed.Links); err != nil {
			return models.Edge{}, err
		}
	}
	s.graph.UpdateEdgeAppearance(id, a)
	e, _ = s.graph.Edge(id)
	return e, nil
}

// SetPosition stores an opaque layout value on a node. Positions are not
// persisted.
func (s *Service) SetPosition(_ context.Context, id string, pos any) error {
	s.mu.Lock()
	ok := s.graph.SetPosition(id, pos)
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	s.notify(models.Change{Kind: models.ChangeLinked, NoteID: id})
	return nil
}

func (s *Service) readParsed(p string) ([]byte, *parser.Result, error) {
	data, err := s.read(p)
	if err != nil {
		return nil, nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("noteservice: parse %s: %w", p, err)
	}
	return data, res, nil
}

// persistLinks rewrites the links key of the note at p and refreshes its
// index checksum so the watcher sees the write as unchanged. Callers hold
// s.mu.
func (s *Service) persistLinks(p string, data []byte, defs []models.LinkDefinition) ([]byte, error) {
	out, err := parser.SetLinks(data, defs)
	if err != nil {
		return nil, fmt.Errorf("noteservice: rewrite links in %s: %v: %w", p, err, apperr.ErrInvalidInput)
	}
	if err := s.store.Write(p, out); err != nil {
		return nil, err
	}
	res, err := parser.Parse(out)
	if err != nil {
		return nil, err
	}
	note := s.toNote(p, res, s.now())
	doc := document(note, res, checksum.Sum(out))
	if err := s.db.UpsertNote(doc.Row, doc.Body, s.unresolvedTargets(note)); err != nil {
		return nil, fmt.Errorf("noteservice: index %s: %w", p, err)
	}
	return out, nil
}

// relinkLocked regenerates the outgoing edges of the note at p from data.
func (s *Service) relinkLocked(p string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	if _, ok := s.graph.UpdateNode(s.toNote(p, res, s.now())); !ok {
		return fmt.Errorf("noteservice: relink %s: %w", p, apperr.ErrConflict)
	}
	return nil
}

// unresolvedTargets resolves every reference of note against the current graph.
func (s *Service) unresolvedTargets(note models.Note) []string {
	r := s.graph.Resolver()
	var out []string
	for _, d := range note.LinkDefinitions {
		if r.Resolve(d.Target, note.ID).Outcome == graph.Unresolved {
			out = append(out, d.Target)
		}
	}
	for _, t := range parser.LinkTargets(note.Content) {
		if r.Resolve(t, note.ID).Outcome == graph.Unresolved {
			out = append(out, t)
		}
	}
	return out
}

// definitionIndex finds the link definition behind an explicit edge id:
// either a definition carrying that id or, for generated ids, the
// definition at the encoded position.
func definitionIndex(defs []models.LinkDefinition, noteID, edgeID string) int {
	for i, d := range defs {
		if d.ID == edgeID {
			return i
		}
	}
	if pos, ok := strings.CutPrefix(edgeID, noteID+"#"); ok {
		if i, err := strconv.Atoi(pos); err == nil && i >= 0 && i < len(defs) && defs[i].ID == "" {
			return i
		}
	}
	return -1
}

// needsRelink reports whether removing the definition at index at can change
// edges other than the removed one: generated ids after it shift, and a
// wikilink to the same target regains its implicit edge.
func needsRelink(res *parser.Result, at int, target string, r graph.Resolver, sourceID string) bool {
	for _, d := range res.Links[at+1:] {
		if d.ID == "" {
			return true
		}
	}
	for ref := range parser.Wikilinks(res.Body) {
		if got := r.Resolve(ref.Target, sourceID); got.Outcome == graph.Resolved && got.ID == target {
			return true
		}
	}
	return false
}
