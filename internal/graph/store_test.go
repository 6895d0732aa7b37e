package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/graphnotes/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func note(id, path, title, content string) models.Note {
	return models.Note{
		ID:       id,
		Path:     path,
		Title:    title,
		Created:  t0,
		Modified: t0,
		Content:  content,
	}
}

// requireDegrees checks every node's cached counts against the edge table.
func requireDegrees(t *testing.T, s *Store) {
	t.Helper()
	in := map[string]int{}
	out := map[string]int{}
	for _, e := range s.Edges() {
		out[e.Source]++
		in[e.Target]++
	}
	for _, n := range s.Nodes() {
		assert.Equal(t, in[n.ID], n.IncomingLinkCount, "incoming count of %s", n.ID)
		assert.Equal(t, out[n.ID], n.OutgoingLinkCount, "outgoing count of %s", n.ID)
	}
}

func TestBuildFromNotes_AlphaBeta(t *testing.T) {
	s := New()
	rep := s.BuildFromNotes([]models.Note{
		note("a", "a.md", "Alpha", "See [[Beta]] and [[b.md]]."),
		note("b", "b.md", "Beta", ""),
	})

	assert.Empty(t, rep.Issues)
	require.Equal(t, 2, s.NodeCount())
	require.Equal(t, 1, s.EdgeCount())

	e, ok := s.Edge(models.ImplicitEdgeID("a", "b"))
	require.True(t, ok)
	assert.Equal(t, models.DefaultRelationName, e.Name)
	assert.Equal(t, models.DefaultAppearance(), e.Appearance)
	assert.Equal(t, t0, e.Created)

	a, _ := s.Node("a")
	b, _ := s.Node("b")
	assert.Equal(t, 1, a.OutgoingLinkCount)
	assert.Equal(t, 1, b.IncomingLinkCount)
	requireDegrees(t, s)
}

func TestBuildFromNotes_ForwardReferences(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[Z]]"),
		note("z", "z.md", "Z", ""),
	})
	_, ok := s.Edge(models.ImplicitEdgeID("a", "z"))
	assert.True(t, ok, "reference to a later note must resolve")
}

func TestBuildFromNotes_Idempotent(t *testing.T) {
	notes := []models.Note{
		note("a", "a.md", "A", "[[B]] [[C]]"),
		note("b", "b.md", "B", "[[C]]"),
		note("c", "c.md", "C", "[[A]] [[missing]]"),
	}
	notes[0].LinkDefinitions = []models.LinkDefinition{{Target: "C", Name: "cites"}}

	s := New()
	s.BuildFromNotes(notes)
	firstNodes, firstEdges := s.Nodes(), s.Edges()

	s.BuildFromNotes(notes)
	assert.Equal(t, firstNodes, s.Nodes())
	assert.Equal(t, firstEdges, s.Edges())
}

func TestBuildFromNotes_SkipsDuplicatesAndEmpty(t *testing.T) {
	s := New()
	rep := s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", ""),
		note("a", "other.md", "Dup id", ""),
		note("b", "a.md", "Dup path", ""),
		note("", "empty.md", "No id", ""),
	})
	assert.Equal(t, 1, s.NodeCount())
	assert.Equal(t, []string{"a", "b", "empty.md"}, rep.Skipped)
}

func TestBuildFromNotes_ReportsIssues(t *testing.T) {
	s := New()
	rep := s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[A]] [[Nowhere]]"),
	})
	assert.Equal(t, 0, s.EdgeCount())
	require.Len(t, rep.Issues, 2)
	assert.Equal(t, SelfReference, rep.Issues[0].Outcome)
	require.Len(t, rep.Unresolved(), 1)
	assert.Equal(t, "Nowhere", rep.Unresolved()[0].Target)
}

func TestExplicitSuppressesImplicit(t *testing.T) {
	a := note("a", "a.md", "A", "Mentions [[B]] inline.")
	a.LinkDefinitions = []models.LinkDefinition{{
		ID:         "l1",
		Target:     "B",
		Name:       "depends on",
		Appearance: models.Appearance{Style: models.StyleDashed},
	}}

	s := New()
	s.BuildFromNotes([]models.Note{a, note("b", "b.md", "B", "")})

	require.Equal(t, 1, s.EdgeCount())
	e, ok := s.Edge(models.ExplicitEdgeID("l1"))
	require.True(t, ok)
	assert.Equal(t, "depends on", e.Name)
	assert.Equal(t, models.StyleDashed, e.Appearance.Style)
	assert.Equal(t, models.DirectionForward, e.Appearance.Direction)
	_, ok = s.Edge(models.ImplicitEdgeID("a", "b"))
	assert.False(t, ok)
	requireDegrees(t, s)
}

func TestExplicitWithoutIDGetsPositionalID(t *testing.T) {
	a := note("a", "a.md", "A", "")
	a.LinkDefinitions = []models.LinkDefinition{{Target: "missing"}, {Target: "b"}}

	s := New()
	rep := s.BuildFromNotes([]models.Note{a, note("b", "b.md", "B", "")})

	assert.Len(t, rep.Unresolved(), 1)
	e, ok := s.Edge(models.ExplicitEdgeID("a#1"))
	require.True(t, ok)
	assert.Equal(t, models.DefaultRelationName, e.Name)
	assert.Equal(t, t0, e.Created)
}

func TestAddNode(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{note("a", "a.md", "A", "")})

	_, ok := s.AddNode(note("b", "b.md", "B", "[[A]] [[Later]]"))
	require.True(t, ok)
	assert.Equal(t, 1, s.EdgeCount())
	requireDegrees(t, s)

	_, ok = s.AddNode(note("b", "x.md", "X", ""))
	assert.False(t, ok, "duplicate id")
	_, ok = s.AddNode(note("x", "b.md", "X", ""))
	assert.False(t, ok, "duplicate path")
	_, ok = s.AddNode(note("", "y.md", "Y", ""))
	assert.False(t, ok, "empty id")
	assert.Equal(t, 2, s.NodeCount())

	// Earlier unresolved references are not retried.
	_, ok = s.AddNode(note("later", "later.md", "Later", ""))
	require.True(t, ok)
	_, ok = s.Edge(models.ImplicitEdgeID("b", "later"))
	assert.False(t, ok)
}

func TestUpdateNode_RegeneratesOutgoing(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[B]]"),
		note("b", "b.md", "B", ""),
		note("c", "c.md", "C", "[[A]]"),
	})
	b, _ := s.Node("b")
	require.Equal(t, 1, b.IncomingLinkCount)

	_, ok := s.UpdateNode(note("a", "a.md", "A", "no links now"))
	require.True(t, ok)

	b, _ = s.Node("b")
	assert.Equal(t, 0, b.IncomingLinkCount)
	a, _ := s.Node("a")
	assert.Equal(t, 1, a.IncomingLinkCount, "incoming edges survive an update")
	assert.Equal(t, 0, a.OutgoingLinkCount)
	requireDegrees(t, s)
}

func TestUpdateNode_ReindexesPathAndTitle(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "Old", ""),
		note("b", "b.md", "B", ""),
	})
	require.True(t, s.SetPosition("a", map[string]float64{"x": 1}))

	_, ok := s.UpdateNode(note("a", "dir/renamed.md", "New", ""))
	require.True(t, ok)

	_, ok = s.NodeByPath("a.md")
	assert.False(t, ok)
	n, ok := s.NodeByPath("dir/renamed.md")
	require.True(t, ok)
	assert.Equal(t, "New", n.Title)
	assert.Equal(t, map[string]float64{"x": 1}, n.Position)

	r := s.Resolver()
	_, _, ok = r.Lookup("Old")
	assert.False(t, ok)
	id, rule, ok := r.Lookup("new")
	require.True(t, ok)
	assert.Equal(t, "a", id)
	assert.Equal(t, RuleTitle, rule)

	_, ok = s.UpdateNode(note("a", "b.md", "New", ""))
	assert.False(t, ok, "path owned by another node")
	_, ok = s.UpdateNode(note("zzz", "zzz.md", "Z", ""))
	assert.False(t, ok, "unknown node")
}

func TestRemoveNode_Cascades(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[B]]"),
		note("b", "b.md", "B", "[[C]]"),
		note("c", "c.md", "C", "[[B]]"),
	})
	require.Equal(t, 3, s.EdgeCount())

	require.True(t, s.RemoveNode("b"))
	assert.Equal(t, 0, s.EdgeCount())
	for _, e := range s.Edges() {
		assert.NotEqual(t, "b", e.Source)
		assert.NotEqual(t, "b", e.Target)
	}
	_, ok := s.NodeByPath("b.md")
	assert.False(t, ok)
	requireDegrees(t, s)

	assert.False(t, s.RemoveNode("b"))
}

func TestRemoveNode_TitleHandsOver(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("n1", "one.md", "Shared", ""),
		note("n3", "three.md", "Shared", ""),
		note("n2", "two.md", "shared", ""),
	})
	id, _, _ := s.Resolver().Lookup("Shared")
	assert.Equal(t, "n1", id, "first claimer owns the title")

	s.RemoveNode("n1")
	id, _, _ = s.Resolver().Lookup("Shared")
	assert.Equal(t, "n2", id, "smallest remaining id inherits")
}

func TestSetEdge(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[B]]"),
		note("b", "b.md", "B", ""),
	})

	assert.False(t, s.SetEdge(models.Edge{ID: models.ExplicitEdgeID("x"), Source: "a", Target: "a"}), "self loop")
	assert.False(t, s.SetEdge(models.Edge{ID: models.ExplicitEdgeID("x"), Source: "a", Target: "ghost"}), "unknown target")
	assert.False(t, s.SetEdge(models.Edge{Source: "a", Target: "b"}), "zero id")
	assert.False(t, s.SetEdge(models.Edge{ID: models.ImplicitEdgeID("b", "a"), Source: "a", Target: "b"}), "mismatched implicit id")
	assert.Equal(t, 1, s.EdgeCount())

	require.True(t, s.SetEdge(models.Edge{ID: models.ExplicitEdgeID("x"), Source: "a", Target: "b"}))
	assert.Equal(t, 1, s.EdgeCount(), "explicit replaces implicit on the same pair")
	e, _ := s.Edge(models.ExplicitEdgeID("x"))
	assert.Equal(t, models.DefaultRelationName, e.Name)
	assert.Equal(t, models.DefaultAppearance(), e.Appearance)

	assert.False(t, s.SetEdge(models.Edge{ID: models.ImplicitEdgeID("a", "b"), Source: "a", Target: "b"}),
		"implicit refused while explicit exists")

	assert.False(t, s.SetEdge(models.Edge{ID: models.ExplicitEdgeID("x"), Source: "b", Target: "a", Name: "rev"}),
		"explicit id held by another source")
	require.True(t, s.SetEdge(models.Edge{ID: models.ExplicitEdgeID("x"), Source: "a", Target: "b", Name: "renamed"}))
	assert.Equal(t, 1, s.EdgeCount())
	e, _ = s.Edge(models.ExplicitEdgeID("x"))
	assert.Equal(t, "renamed", e.Name)
	a, _ := s.Node("a")
	assert.Equal(t, 0, a.IncomingLinkCount)
	assert.Equal(t, 1, a.OutgoingLinkCount)
	requireDegrees(t, s)
}

func TestExplicitIDOwnedByFirstSource(t *testing.T) {
	a := note("a", "a.md", "A", "")
	a.LinkDefinitions = []models.LinkDefinition{{ID: "l1", Target: "b"}}
	c := note("c", "c.md", "C", "")
	c.LinkDefinitions = []models.LinkDefinition{{ID: "l1", Target: "b"}}

	s := New()
	rep := s.BuildFromNotes([]models.Note{a, note("b", "b.md", "B", ""), c})
	require.Equal(t, []DuplicateLink{{Source: "c", LinkID: "l1", Owner: "a"}}, rep.Duplicates)
	e, ok := s.Edge(models.ExplicitEdgeID("l1"))
	require.True(t, ok)
	assert.Equal(t, "a", e.Source)

	// Updating the copy must not take the edge away from a.
	rep, ok = s.UpdateNode(c)
	require.True(t, ok)
	assert.Len(t, rep.Duplicates, 1)
	e, _ = s.Edge(models.ExplicitEdgeID("l1"))
	assert.Equal(t, "a", e.Source)
	an, _ := s.Node("a")
	cn, _ := s.Node("c")
	assert.Equal(t, 1, an.OutgoingLinkCount)
	assert.Equal(t, 0, cn.OutgoingLinkCount)
	requireDegrees(t, s)

	_, ok = s.AddNode(func() models.Note {
		d := note("d", "d.md", "D", "")
		d.LinkDefinitions = []models.LinkDefinition{{ID: "l1", Target: "c"}}
		return d
	}())
	require.True(t, ok)
	e, _ = s.Edge(models.ExplicitEdgeID("l1"))
	assert.Equal(t, "a", e.Source)
	assert.Equal(t, "b", e.Target)
}

func TestDuplicateIDWithinNote(t *testing.T) {
	a := note("a", "a.md", "A", "Inline [[b]] and [[c]].")
	a.LinkDefinitions = []models.LinkDefinition{
		{ID: "x", Target: "b", Name: "first"},
		{ID: "x", Target: "c", Name: "second"},
	}

	s := New()
	rep := s.BuildFromNotes([]models.Note{a, note("b", "b.md", "B", ""), note("c", "c.md", "C", "")})
	require.Equal(t, []DuplicateLink{{Source: "a", LinkID: "x", Owner: "a"}}, rep.Duplicates)

	e, ok := s.Edge(models.ExplicitEdgeID("x"))
	require.True(t, ok)
	assert.Equal(t, "b", e.Target)
	assert.Equal(t, "first", e.Name)
	_, ok = s.Edge(models.ImplicitEdgeID("a", "b"))
	assert.False(t, ok, "explicit x covers a->b")
	_, ok = s.Edge(models.ImplicitEdgeID("a", "c"))
	assert.True(t, ok, "the dropped definition must not suppress [[c]]")
	requireDegrees(t, s)
}

func TestRemoveEdgeAndAppearance(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{
		note("a", "a.md", "A", "[[B]]"),
		note("b", "b.md", "B", ""),
	})
	id := models.ImplicitEdgeID("a", "b")

	require.True(t, s.UpdateEdgeAppearance(id, models.Appearance{Colour: "#00ff00", Thickness: models.ThicknessThick}))
	e, _ := s.Edge(id)
	assert.Equal(t, "#00ff00", e.Appearance.Colour)
	assert.Equal(t, models.ThicknessThick, e.Appearance.Thickness)
	assert.Equal(t, models.StyleSolid, e.Appearance.Style)
	assert.False(t, s.UpdateEdgeAppearance(models.ExplicitEdgeID("nope"), models.Appearance{}))

	require.True(t, s.RemoveEdge(id))
	assert.False(t, s.RemoveEdge(id))
	assert.Equal(t, 0, s.EdgeCount())
	requireDegrees(t, s)
}

func TestSetPosition(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{note("a", "a.md", "A", "")})
	assert.True(t, s.SetPosition("a", []float64{1, 2}))
	assert.False(t, s.SetPosition("missing", nil))
	n, _ := s.Node("a")
	assert.Equal(t, []float64{1, 2}, n.Position)
}

func TestClear(t *testing.T) {
	s := New()
	s.BuildFromNotes([]models.Note{note("a", "a.md", "A", ""), note("b", "b.md", "B", "[[A]]")})
	s.Clear()
	assert.Zero(t, s.NodeCount())
	assert.Zero(t, s.EdgeCount())
	_, _, ok := s.Resolver().Lookup("A")
	assert.False(t, ok)
}

func TestNodeReturnsCopy(t *testing.T) {
	s := New()
	n := note("a", "a.md", "A", "")
	n.SuperTags = []string{"x"}
	s.BuildFromNotes([]models.Note{n})

	got, _ := s.Node("a")
	got.SuperTags[0] = "mutated"
	again, _ := s.Node("a")
	assert.Equal(t, []string{"x"}, again.SuperTags)
}
