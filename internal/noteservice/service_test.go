package noteservice

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/graphnotes/internal/apperr"
	"github.com/starford/graphnotes/internal/checksum"
	"github.com/starford/graphnotes/internal/graph"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/storage"
	tu "github.com/starford/graphnotes/internal/testutil"
)

type env struct {
	svc     *Service
	store   *storage.FS
	dir     string
	metrics *Metrics
	reg     *prometheus.Registry

	mu      sync.Mutex
	changes []models.Change
}

func newEnv(t *testing.T, notes map[string]string) *env {
	t.Helper()
	dir, store := tu.TestVault(t)
	tu.WriteNotes(t, dir, notes)

	e := &env{store: store, dir: dir, reg: prometheus.NewRegistry()}
	e.metrics = NewMetrics(e.reg)
	e.svc = NewService(store, tu.TestDB(t),
		WithLogger(tu.DiscardLogger()),
		WithMetrics(e.metrics),
		WithMaxDepth(3),
		WithChangeHook(func(c models.Change) {
			e.mu.Lock()
			e.changes = append(e.changes, c)
			e.mu.Unlock()
		}),
	)
	_, err := e.svc.Rebuild(context.Background())
	require.NoError(t, err)
	return e
}

func (e *env) kinds() []models.ChangeKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ChangeKind, 0, len(e.changes))
	for _, c := range e.changes {
		out = append(out, c.Kind)
	}
	return out
}

func nodeIDs(nodes []models.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestRebuild(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md":             "---\nid: alpha\ntitle: Alpha\n---\nSee [[Beta]] and [[b.md]] and [[Nowhere]].",
		"b.md":             "# Beta\nBody",
		"notes/c.markdown": "Links to [[alpha]].",
		".hidden/x.md":     "[[Beta]]",
		"readme.txt":       "[[Beta]]",
	})
	ctx := context.Background()

	st := e.svc.Stats(ctx)
	assert.Equal(t, 3, st.TotalNodes)
	assert.Equal(t, 2, st.TotalEdges)

	n, err := e.svc.Node(ctx, "b.md")
	require.NoError(t, err)
	assert.Equal(t, "Beta", n.Title, "title from H1")
	assert.Equal(t, 1, n.IncomingLinkCount)

	c, err := e.svc.Node(ctx, "notes/c.markdown")
	require.NoError(t, err)
	assert.Equal(t, "c", c.Title, "title falls back to the file stem")

	unresolved, err := e.svc.Unresolved(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "a.md", unresolved[0].Source)
	assert.Equal(t, "Nowhere", unresolved[0].Target)

	assert.Equal(t, 3.0, testutil.ToFloat64(e.metrics.nodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.edges))
	assert.Equal(t, []models.ChangeKind{models.ChangeRebuilt}, e.kinds()[before:])
}

func TestRebuild_Idempotent(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "[[b]] [[c]]",
		"b.md": "[[c]]",
		"c.md": "[[a]]",
	})
	ctx := context.Background()
	first := e.svc.Graph(ctx, graph.Filter{})

	res, err := e.svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Index.Unchanged)
	assert.Equal(t, first, e.svc.Graph(ctx, graph.Filter{}))
}

func TestApplyFile_CreateUpdateUnchanged(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "# A",
		"b.md": "# B",
	})
	ctx := context.Background()

	data := []byte("links to [[A]] and [[B]]")
	tu.WriteNotes(t, e.dir, map[string]string{"new.md": string(data)})
	kind, err := e.svc.ApplyFile(ctx, "new.md", data)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeCreated, kind)
	out, _ := e.svc.Outgoing(ctx, "new.md")
	assert.Len(t, out, 2)

	kind, err = e.svc.ApplyFile(ctx, "new.md", data)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeUnchanged, kind)

	kind, err = e.svc.ApplyFile(ctx, "new.md", []byte("only [[A]]"))
	require.NoError(t, err)
	assert.Equal(t, models.ChangeUpdated, kind)

	b, _ := e.svc.Node(ctx, "b.md")
	assert.Equal(t, 0, b.IncomingLinkCount)
	assert.NotContains(t, e.kinds(), models.ChangeUnchanged)
}

func TestApplyFile_IDChangeAndMove(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nid: n1\n---\n# A",
		"b.md": "[[n1]]",
	})
	ctx := context.Background()

	// Moving the file keeps the id and the incoming edge.
	require.NoError(t, e.store.Move("a.md", "moved/a.md"))
	data, _ := e.store.Read("moved/a.md")
	kind, err := e.svc.ApplyFile(ctx, "moved/a.md", data)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeUpdated, kind)

	n, err := e.svc.Node(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "moved/a.md", n.Path)
	assert.Equal(t, 1, n.IncomingLinkCount)

	// Changing the frontmatter id replaces the node.
	kind, err = e.svc.ApplyFile(ctx, "moved/a.md", []byte("---\nid: n2\n---\n# A"))
	require.NoError(t, err)
	assert.Equal(t, models.ChangeUpdated, kind)
	_, err = e.svc.Node(ctx, "n1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.Node(ctx, "n2")
	assert.NoError(t, err)
}

func TestApplyFile_DuplicateIDConflicts(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nid: same\n---\n",
	})
	_, err := e.svc.ApplyFile(context.Background(), "b.md", []byte("---\nid: same\n---\n"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRemoveFile(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "[[b]]",
		"b.md": "[[a]]",
	})
	ctx := context.Background()

	require.NoError(t, e.svc.RemoveFile(ctx, "b.md"))
	st := e.svc.Stats(ctx)
	assert.Equal(t, 1, st.TotalNodes)
	assert.Equal(t, 0, st.TotalEdges)
	assert.Equal(t, []string{"a.md"}, st.OrphanedNodes)

	require.NoError(t, e.svc.RemoveFile(ctx, "never-existed.md"))
}

func TestReconcile(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "[[b]]",
		"b.md": "# B",
	})
	ctx := context.Background()

	require.NoError(t, e.store.Move("b.md", "c.md"))
	require.NoError(t, e.svc.Reconcile(ctx))

	_, err := e.svc.Node(ctx, "b.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.Node(ctx, "c.md")
	assert.NoError(t, err)
}

func TestReconcile_BatchResolvesForwardReferences(t *testing.T) {
	e := newEnv(t, map[string]string{"root.md": "# Root"})
	ctx := context.Background()
	before := len(e.kinds())

	tu.WriteNotes(t, e.dir, map[string]string{
		"dir/a.md": "[[b]]",
		"dir/b.md": "# B",
	})
	require.NoError(t, e.svc.Reconcile(ctx))

	out, err := e.svc.Outgoing(ctx, "dir/a.md")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "dir/b.md", out[0].Target)
	assert.Equal(t, []models.ChangeKind{models.ChangeRebuilt}, e.kinds()[before:])

	unresolved, err := e.svc.Unresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestReconcile_SingleChangeIsIncremental(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "# A"})
	ctx := context.Background()
	before := len(e.kinds())

	tu.WriteNotes(t, e.dir, map[string]string{"b.md": "[[a]]"})
	require.NoError(t, e.svc.Reconcile(ctx))

	assert.Equal(t, []models.ChangeKind{models.ChangeCreated}, e.kinds()[before:])
	out, _ := e.svc.Outgoing(ctx, "b.md")
	assert.Len(t, out, 1)
}

func TestCRUD(t *testing.T) {
	e := newEnv(t, map[string]string{
		"target.md": "# Target",
	})
	ctx := context.Background()

	d, err := e.svc.CreateNote(ctx, "src.md", []byte("---\ntitle: Source\ntags: [x]\n---\nSee [[Target]]."))
	require.NoError(t, err)
	assert.Equal(t, "src.md", d.ID)
	assert.Equal(t, "Source", d.Title)
	require.Len(t, d.Links, 1)
	assert.Equal(t, "target.md", d.Links[0].Target)

	_, err = e.svc.CreateNote(ctx, "src.md", []byte("dup"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = e.svc.CreateNote(ctx, "src.txt", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	got, err := e.svc.GetNote(ctx, "target.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"src.md"}, got.Backlinks)

	_, err = e.svc.UpdateNote(ctx, "src.md", []byte("no links"), "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.svc.UpdateNote(ctx, "src.md", []byte("no links"), d.Checksum)
	require.NoError(t, err)

	bl, err := e.svc.Backlinks(ctx, "target.md")
	require.NoError(t, err)
	assert.Empty(t, bl)

	items, total, err := e.svc.ListNotes(ctx, 10, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "src.md", items[0].Path)

	require.NoError(t, e.svc.DeleteNote(ctx, "src.md"))
	assert.ErrorIs(t, e.svc.DeleteNote(ctx, "src.md"), apperr.ErrNotFound)
	_, err = e.svc.GetNote(ctx, "src.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMoveNote_StableIDKeepsBacklinks(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nlinks:\n  - id: l1\n    target: nb\n---\nA",
		"c.md": "See [[nb]].",
		"b.md": "---\nid: nb\ntitle: Bee\n---\nbody",
	})
	ctx := context.Background()
	before := len(e.kinds())

	d, err := e.svc.MoveNote(ctx, "b.md", "archive/b.md")
	require.NoError(t, err)
	assert.Equal(t, "nb", d.ID)
	assert.ElementsMatch(t, []string{"a.md", "c.md"}, d.Backlinks)

	n, err := e.svc.Node(ctx, "nb")
	require.NoError(t, err)
	assert.Equal(t, "archive/b.md", n.Path)
	assert.Equal(t, 2, n.IncomingLinkCount)

	bl, err := e.svc.Backlinks(ctx, "archive/b.md")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.md", "c.md"}, bl)

	_, err = e.svc.GetNote(ctx, "b.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	exists, _ := e.store.Exists("archive/b.md")
	assert.True(t, exists)

	e.mu.Lock()
	got := e.changes[before:]
	e.mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, models.Change{Kind: models.ChangeMoved, Path: "archive/b.md", OldPath: "b.md", NoteID: "nb"}, got[0])
}

func TestMoveNote_PathIDRelinksSources(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "Links to [[Beta]].",
		"b.md": "# Beta",
	})
	ctx := context.Background()

	d, err := e.svc.MoveNote(ctx, "b.md", "dir/beta.md")
	require.NoError(t, err)
	assert.Equal(t, "dir/beta.md", d.ID)
	assert.Equal(t, []string{"a.md"}, d.Backlinks)

	_, err = e.svc.Node(ctx, "b.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	out, _ := e.svc.Outgoing(ctx, "a.md")
	require.Len(t, out, 1)
	assert.Equal(t, "dir/beta.md", out[0].Target)

	unresolved, err := e.svc.Unresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestMoveNote_Errors(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "# A",
		"b.md": "# B",
	})
	ctx := context.Background()

	_, err := e.svc.MoveNote(ctx, "a.md", "b.md")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = e.svc.MoveNote(ctx, "a.md", "a.txt")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.svc.MoveNote(ctx, "a.md", "a.md")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.svc.MoveNote(ctx, "ghost.md", "c.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.Node(ctx, "a.md")
	assert.NoError(t, err, "failed moves leave the graph alone")
}

func TestSearchAndGrep(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "# A\nthe quick zebra",
		"b.md": "# B\nslow",
	})
	ctx := context.Background()

	hits, err := e.svc.Search(ctx, "zebra", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.md", hits[0].ID)

	matches, err := e.svc.Grep(ctx, "z.bra", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].LineNumber)

	_, err = e.svc.Grep(ctx, "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestGraphQueries(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\ntags: [go]\n---\n[[b]]",
		"b.md": "[[c]]",
		"c.md": "[[d]]",
		"d.md": "[[e]]",
		"e.md": "# E",
	})
	ctx := context.Background()

	sub, err := e.svc.Subgraph(ctx, "a.md", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md", "d.md"}, nodeIDs(sub.Nodes), "depth clamped to 3")

	_, err = e.svc.Subgraph(ctx, "zzz", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	nb, err := e.svc.Neighbors(ctx, "c.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md", "d.md"}, nodeIDs(nb))

	in, err := e.svc.Incoming(ctx, "c.md")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "b.md", in[0].Source)

	g := e.svc.Graph(ctx, graph.Filter{IncludeTags: []string{"go"}})
	assert.Equal(t, []string{"a.md"}, nodeIDs(g.Nodes))
	assert.Empty(t, g.Edges)

	g = e.svc.Graph(ctx, graph.Filter{ExcludeTags: []string{"go"}})
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
}

func TestUpsertLink(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\ntitle: A\n---\nMentions [[B]].",
		"b.md": "# B",
		"c.md": "# C",
	})
	ctx := context.Background()

	edge, err := e.svc.UpsertLink(ctx, "a.md", models.LinkDefinition{
		Target:     "B",
		Name:       "depends on",
		Appearance: models.Appearance{Style: models.StyleDashed},
	})
	require.NoError(t, err)
	assert.False(t, edge.Implicit())
	assert.Equal(t, "b.md", edge.Target)
	assert.Equal(t, models.StyleDashed, edge.Appearance.Style)

	out, _ := e.svc.Outgoing(ctx, "a.md")
	require.Len(t, out, 1, "explicit edge replaces the implicit one")

	data, err := e.store.Read("a.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "depends on")
	assert.Contains(t, string(data), "title: A")

	// The watcher echo of our own write is a no-op.
	kind, err := e.svc.ApplyFile(ctx, "a.md", data)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeUnchanged, kind)

	// Retargeting restores the implicit edge to B.
	def := models.LinkDefinition{ID: edge.ID.Explicit, Target: "C"}
	_, err = e.svc.UpsertLink(ctx, "a.md", def)
	require.NoError(t, err)
	out, _ = e.svc.Outgoing(ctx, "a.md")
	require.Len(t, out, 2)
	targets := []string{out[0].Target, out[1].Target}
	assert.ElementsMatch(t, []string{"b.md", "c.md"}, targets)

	_, err = e.svc.UpsertLink(ctx, "a.md", models.LinkDefinition{Target: "missing"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.svc.UpsertLink(ctx, "a.md", models.LinkDefinition{Target: "A"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "self reference")
	_, err = e.svc.UpsertLink(ctx, "a.md", models.LinkDefinition{Target: "b", Appearance: models.Appearance{Style: "wavy"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.svc.UpsertLink(ctx, "nobody", models.LinkDefinition{Target: "b"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLinkIDOwnedByAnotherNote(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nlinks:\n  - id: l1\n    target: b\n---\nA",
		"b.md": "# B",
		"c.md": "# C",
	})
	ctx := context.Background()

	_, err := e.svc.UpsertLink(ctx, "c.md", models.LinkDefinition{ID: "l1", Target: "b"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	data, _ := e.store.Read("c.md")
	assert.Equal(t, "# C", string(data), "refused link is not persisted")

	// A copy of a.md carrying the same link id leaves a.md's edge alone.
	_, err = e.svc.CreateNote(ctx, "copy.md", []byte("---\nlinks:\n  - id: l1\n    target: c\n---\nCopy"))
	require.NoError(t, err)

	in, err := e.svc.Incoming(ctx, "b.md")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, models.ExplicitEdgeID("l1"), in[0].ID)
	assert.Equal(t, "a.md", in[0].Source)
	out, _ := e.svc.Outgoing(ctx, "copy.md")
	assert.Empty(t, out)
	a, _ := e.svc.Node(ctx, "a.md")
	assert.Equal(t, 1, a.OutgoingLinkCount)
}

func TestDeleteLink(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nlinks:\n  - target: b\n  - id: keep\n    target: c\n---\nAlso [[b]].",
		"b.md": "# B",
		"c.md": "# C",
	})
	ctx := context.Background()

	out, _ := e.svc.Outgoing(ctx, "a.md")
	require.Len(t, out, 2)

	require.NoError(t, e.svc.DeleteLink(ctx, models.ExplicitEdgeID("a.md#0")))

	out, _ = e.svc.Outgoing(ctx, "a.md")
	require.Len(t, out, 2)
	ids := []string{out[0].ID.String(), out[1].ID.String()}
	assert.ElementsMatch(t, []string{"e:keep", "i:a.md/b.md"}, ids, "wikilink edge returns")

	data, _ := e.store.Read("a.md")
	assert.NotContains(t, string(data), "target: b")

	assert.ErrorIs(t, e.svc.DeleteLink(ctx, models.ImplicitEdgeID("a.md", "b.md")), apperr.ErrInvalidInput)
	assert.ErrorIs(t, e.svc.DeleteLink(ctx, models.ExplicitEdgeID("ghost")), apperr.ErrNotFound)

	require.NoError(t, e.svc.DeleteLink(ctx, models.ExplicitEdgeID("keep")))
	out, _ = e.svc.Outgoing(ctx, "a.md")
	assert.Len(t, out, 1)
}

func TestUpdateLinkAppearance(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.md": "---\nlinks:\n  - id: l1\n    target: b\n---\n[[c]]",
		"b.md": "# B",
		"c.md": "# C",
	})
	ctx := context.Background()

	edge, err := e.svc.UpdateLinkAppearance(ctx, models.ExplicitEdgeID("l1"), models.Appearance{Colour: "#ff0000", Thickness: models.ThicknessThick})
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", edge.Appearance.Colour)
	assert.Equal(t, models.DirectionForward, edge.Appearance.Direction)

	data, _ := e.store.Read("a.md")
	assert.Contains(t, string(data), "thick")

	// Survives a rebuild because it is persisted.
	_, err = e.svc.Rebuild(ctx)
	require.NoError(t, err)
	out, _ := e.svc.Outgoing(ctx, "a.md")
	for _, o := range out {
		if o.ID == models.ExplicitEdgeID("l1") {
			assert.Equal(t, models.ThicknessThick, o.Appearance.Thickness)
		}
	}

	implicit := models.ImplicitEdgeID("a.md", "c.md")
	edge, err = e.svc.UpdateLinkAppearance(ctx, implicit, models.Appearance{Animated: true})
	require.NoError(t, err)
	assert.True(t, edge.Appearance.Animated)

	_, err = e.svc.UpdateLinkAppearance(ctx, implicit, models.Appearance{Direction: "sideways"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.svc.UpdateLinkAppearance(ctx, models.ExplicitEdgeID("nope"), models.Appearance{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetPosition(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "# A"})
	ctx := context.Background()

	require.NoError(t, e.svc.SetPosition(ctx, "a.md", map[string]any{"x": 1.5, "y": -2.0}))
	n, _ := e.svc.Node(ctx, "a.md")
	assert.Equal(t, map[string]any{"x": 1.5, "y": -2.0}, n.Position)
	assert.ErrorIs(t, e.svc.SetPosition(ctx, "zzz", nil), apperr.ErrNotFound)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "# A", "b.md": "[[A]]"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			body := "[[A]] " + strings.Repeat("x", i)
			_, _ = e.svc.ApplyFile(ctx, "b.md", []byte(body))
		}()
		go func() {
			defer wg.Done()
			_ = e.svc.Stats(ctx)
			_, _ = e.svc.Subgraph(ctx, "a.md", 2)
		}()
	}
	wg.Wait()

	a, err := e.svc.Node(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, 1, a.IncomingLinkCount)
}

func TestChecksumMatchesDetail(t *testing.T) {
	e := newEnv(t, map[string]string{"a.md": "# A"})
	d, err := e.svc.GetNote(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, checksum.Sum([]byte("# A")), d.Checksum)
}
