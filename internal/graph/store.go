// Package graph is the in-memory knowledge graph compiled from vault notes.
//
// A Store owns the node and edge tables plus the filepath and title indices
// used to resolve wikilinks. Nodes are keyed by note id. Edges are either
// explicit (declared in a note's frontmatter links) or implicit (derived from
// inline [[wikilinks]]); at most one implicit edge exists per ordered pair and
// none exists where an explicit edge already connects the pair.
//
// # Thread Safety
//
// Store is NOT safe for concurrent use. Callers serialise access, typically
// with a sync.RWMutex around every call.
//
// # Mutations
//
// Every mutating method either applies completely or leaves the store
// untouched and reports false. Cached degree counts are recomputed from the
// edge table after each structural change.
package graph

import (
	"strconv"
	"strings"

	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/parser"
)

type edgeSet map[models.EdgeID]struct{}

// Store holds the graph tables and lookup indices for one vault.
type Store struct {
	nodes map[string]*models.Node
	edges map[models.EdgeID]*models.Edge

	// Adjacency by node id.
	out map[string]edgeSet
	in  map[string]edgeSet

	byPath  map[string]string // filepath -> id
	byTitle map[string]string // lower-cased title -> id
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.nodes = make(map[string]*models.Node)
	s.edges = make(map[models.EdgeID]*models.Edge)
	s.out = make(map[string]edgeSet)
	s.in = make(map[string]edgeSet)
	s.byPath = make(map[string]string)
	s.byTitle = make(map[string]string)
}

// LinkIssue is a reference that produced no edge.
type LinkIssue struct {
	Source  string
	Target  string
	Outcome Outcome
}

// DuplicateLink is a link definition dropped because its edge id is
// already held by an edge of Owner.
type DuplicateLink struct {
	Source string
	LinkID string
	Owner  string
}

// Report describes what a build or note-level mutation could not link.
type Report struct {
	// Issues lists unresolved references and ignored self references.
	Issues []LinkIssue
	// Duplicates lists link definitions whose id was already taken, either
	// by another note or by an earlier definition of the same note.
	Duplicates []DuplicateLink
	// Skipped lists note ids (or paths, when the id is empty) rejected because
	// their id or filepath was empty or already taken.
	Skipped []string
}

// Unresolved returns the issues whose target matched no node.
func (r Report) Unresolved() []LinkIssue {
	var out []LinkIssue
	for _, is := range r.Issues {
		if is.Outcome == Unresolved {
			out = append(out, is)
		}
	}
	return out
}

// Clear removes every node, edge and index entry.
func (s *Store) Clear() {
	s.reset()
}

// BuildFromNotes replaces the store contents with the graph of notes. The
// first pass creates every node so that the second pass can resolve
// references to notes that appear later in the slice.
func (s *Store) BuildFromNotes(notes []models.Note) Report {
	s.reset()

	var rep Report
	accepted := make([]int, 0, len(notes))
	for i := range notes {
		if !s.canInsert(notes[i]) {
			rep.Skipped = append(rep.Skipped, skipKey(notes[i]))
			continue
		}
		s.insertNode(notes[i])
		accepted = append(accepted, i)
	}

	for _, i := range accepted {
		s.linkNote(notes[i], &rep)
	}

	s.recomputeDegrees()
	return rep
}

// AddNode indexes a new note and its outgoing links. It reports false when
// the note id is empty or either its id or filepath is already present.
// References from other notes that failed to resolve earlier are not retried.
func (s *Store) AddNode(note models.Note) (Report, bool) {
	var rep Report
	if !s.canInsert(note) {
		return rep, false
	}
	s.insertNode(note)
	s.linkNote(note, &rep)
	s.recomputeDegrees()
	return rep, true
}

// UpdateNode refreshes the node for note.ID in place and regenerates every
// edge it sources. Edges other notes point at it are kept. It reports false
// when the node is unknown or the new filepath belongs to another node.
func (s *Store) UpdateNode(note models.Note) (Report, bool) {
	var rep Report
	n, ok := s.nodes[note.ID]
	if !ok || note.Path == "" {
		return rep, false
	}
	if owner, taken := s.byPath[note.Path]; taken && owner != note.ID {
		return rep, false
	}

	if n.Path != note.Path {
		delete(s.byPath, n.Path)
		s.byPath[note.Path] = note.ID
	}
	if oldKey, newKey := titleKey(n.Title), titleKey(note.Title); oldKey != newKey {
		s.releaseTitle(oldKey, note.ID)
		s.claimTitle(newKey, note.ID)
	}

	n.Title = note.Title
	n.Path = note.Path
	n.Created = note.Created
	n.Modified = note.Modified
	n.SuperTags = cloneTags(note.SuperTags)

	for id := range s.out[note.ID] {
		s.detachEdge(id)
	}
	s.linkNote(note, &rep)
	s.recomputeDegrees()
	return rep, true
}

// RemoveNode deletes the node and every edge touching it.
func (s *Store) RemoveNode(id string) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	for eid := range s.out[id] {
		s.detachEdge(eid)
	}
	for eid := range s.in[id] {
		s.detachEdge(eid)
	}
	delete(s.out, id)
	delete(s.in, id)

	if s.byPath[n.Path] == id {
		delete(s.byPath, n.Path)
	}
	delete(s.nodes, id)
	s.releaseTitle(titleKey(n.Title), id)

	s.recomputeDegrees()
	return true
}

// SetEdge inserts or replaces an edge. Both endpoints must exist and differ.
// An explicit edge replaces any implicit edge on the same ordered pair; an
// implicit edge is refused while an explicit one connects the pair. An
// explicit id held by an edge of another source is refused.
func (s *Store) SetEdge(e models.Edge) bool {
	if e.ID.IsZero() || e.Source == e.Target {
		return false
	}
	if _, ok := s.nodes[e.Source]; !ok {
		return false
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return false
	}
	if e.ID.IsImplicit() {
		if e.ID != models.ImplicitEdgeID(e.Source, e.Target) {
			return false
		}
		if s.hasExplicit(e.Source, e.Target) {
			return false
		}
	}

	if prev, ok := s.edges[e.ID]; ok {
		if prev.Source != e.Source {
			return false
		}
		s.detachEdge(e.ID)
	}
	if !e.ID.IsImplicit() {
		s.detachEdge(models.ImplicitEdgeID(e.Source, e.Target))
	}

	if e.Name == "" {
		e.Name = models.DefaultRelationName
	}
	e.Appearance = e.Appearance.Normalize()
	s.attachEdge(&e)
	s.recomputeDegrees()
	return true
}

// RemoveEdge deletes the edge with the given id.
func (s *Store) RemoveEdge(id models.EdgeID) bool {
	if _, ok := s.edges[id]; !ok {
		return false
	}
	s.detachEdge(id)
	s.recomputeDegrees()
	return true
}

// UpdateEdgeAppearance replaces the visual attributes of an edge.
func (s *Store) UpdateEdgeAppearance(id models.EdgeID, a models.Appearance) bool {
	e, ok := s.edges[id]
	if !ok {
		return false
	}
	e.Appearance = a.Normalize()
	return true
}

// SetPosition stores an opaque layout value for the visualization layer.
func (s *Store) SetPosition(id string, pos any) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Position = pos
	return true
}

func (s *Store) canInsert(note models.Note) bool {
	if note.ID == "" || note.Path == "" {
		return false
	}
	if _, ok := s.nodes[note.ID]; ok {
		return false
	}
	_, taken := s.byPath[note.Path]
	return !taken
}

func (s *Store) insertNode(note models.Note) {
	s.nodes[note.ID] = &models.Node{
		ID:        note.ID,
		Title:     note.Title,
		Path:      note.Path,
		Created:   note.Created,
		Modified:  note.Modified,
		SuperTags: cloneTags(note.SuperTags),
	}
	s.byPath[note.Path] = note.ID
	s.claimTitle(titleKey(note.Title), note.ID)
}

// linkNote creates the edges note sources: explicit link definitions first,
// then one implicit edge per distinct wikilink target not already covered.
// The caller has detached the note's previous edges, so an explicit id found
// in the table belongs to another note or to an earlier definition; the
// first holder keeps it.
func (s *Store) linkNote(note models.Note, rep *Report) {
	r := s.Resolver()
	explicitTargets := make(map[string]struct{})

	for i, def := range note.LinkDefinitions {
		res := r.Resolve(def.Target, note.ID)
		if res.Outcome != Resolved {
			rep.Issues = append(rep.Issues, LinkIssue{Source: note.ID, Target: def.Target, Outcome: res.Outcome})
			continue
		}
		id := def.ID
		if id == "" {
			id = note.ID + "#" + strconv.Itoa(i)
		}
		created := def.Created
		if created.IsZero() {
			created = note.Created
		}
		name := def.Name
		if name == "" {
			name = models.DefaultRelationName
		}
		eid := models.ExplicitEdgeID(id)
		if prev, ok := s.edges[eid]; ok {
			rep.Duplicates = append(rep.Duplicates, DuplicateLink{Source: note.ID, LinkID: id, Owner: prev.Source})
			continue
		}
		s.attachEdge(&models.Edge{
			ID:          eid,
			Source:      note.ID,
			Target:      res.ID,
			Name:        name,
			Description: def.Description,
			Created:     created,
			Appearance:  def.Appearance.Normalize(),
		})
		explicitTargets[res.ID] = struct{}{}
	}

	for ref := range parser.Wikilinks(note.Content) {
		res := r.Resolve(ref.Target, note.ID)
		if res.Outcome != Resolved {
			rep.Issues = append(rep.Issues, LinkIssue{Source: note.ID, Target: ref.Target, Outcome: res.Outcome})
			continue
		}
		if _, ok := explicitTargets[res.ID]; ok {
			continue
		}
		eid := models.ImplicitEdgeID(note.ID, res.ID)
		if _, ok := s.edges[eid]; ok {
			continue
		}
		s.attachEdge(&models.Edge{
			ID:         eid,
			Source:     note.ID,
			Target:     res.ID,
			Name:       models.DefaultRelationName,
			Created:    note.Modified,
			Appearance: models.DefaultAppearance(),
		})
	}
}

func (s *Store) attachEdge(e *models.Edge) {
	s.edges[e.ID] = e
	if s.out[e.Source] == nil {
		s.out[e.Source] = make(edgeSet)
	}
	s.out[e.Source][e.ID] = struct{}{}
	if s.in[e.Target] == nil {
		s.in[e.Target] = make(edgeSet)
	}
	s.in[e.Target][e.ID] = struct{}{}
}

func (s *Store) detachEdge(id models.EdgeID) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	delete(s.edges, id)
	delete(s.out[e.Source], id)
	delete(s.in[e.Target], id)
}

func (s *Store) hasExplicit(source, target string) bool {
	for id := range s.out[source] {
		if id.IsImplicit() {
			continue
		}
		if s.edges[id].Target == target {
			return true
		}
	}
	return false
}

// recomputeDegrees rebuilds every node's cached link counts from the edge table.
func (s *Store) recomputeDegrees() {
	for _, n := range s.nodes {
		n.IncomingLinkCount = 0
		n.OutgoingLinkCount = 0
	}
	for _, e := range s.edges {
		if n, ok := s.nodes[e.Source]; ok {
			n.OutgoingLinkCount++
		}
		if n, ok := s.nodes[e.Target]; ok {
			n.IncomingLinkCount++
		}
	}
}

func (s *Store) claimTitle(key, id string) {
	if key == "" {
		return
	}
	if _, taken := s.byTitle[key]; !taken {
		s.byTitle[key] = id
	}
}

// releaseTitle drops id's claim on key and hands the title to the remaining
// node with the smallest id carrying it.
func (s *Store) releaseTitle(key, id string) {
	if key == "" || s.byTitle[key] != id {
		return
	}
	delete(s.byTitle, key)
	heir := ""
	for nid, n := range s.nodes {
		if nid == id || titleKey(n.Title) != key {
			continue
		}
		if heir == "" || nid < heir {
			heir = nid
		}
	}
	if heir != "" {
		s.byTitle[key] = heir
	}
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func skipKey(note models.Note) string {
	if note.ID != "" {
		return note.ID
	}
	return note.Path
}

func cloneTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return append([]string(nil), tags...)
}
