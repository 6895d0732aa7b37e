package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/graphnotes/internal/apperr"
	"github.com/starford/graphnotes/internal/checksum"
	"github.com/starford/graphnotes/internal/graph"
	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/parser"
)

var tracer = otel.Tracer("graphnotes.noteservice")

// RebuildResult summarises a full rebuild.
type RebuildResult struct {
	Nodes      int             `json:"nodes"`
	Edges      int             `json:"edges"`
	Unresolved int             `json:"unresolved"`
	Skipped    []string        `json:"skipped"`
	Index      index.SyncStats `json:"index"`
	Duration   time.Duration   `json:"duration"`
}

// Rebuild reads every vault note, recompiles the graph from scratch and
// brings the search index in line. Readers are blocked for the duration of
// the graph build only.
func (s *Service) Rebuild(ctx context.Context) (RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "noteservice.Rebuild")
	defer span.End()
	start := time.Now()

	metas, err := s.store.List("")
	if err != nil {
		return RebuildResult{}, fail(span, fmt.Errorf("noteservice: rebuild: %w", err))
	}

	notes := make([]models.Note, 0, len(metas))
	docs := make([]index.Document, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return RebuildResult{}, fail(span, err)
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("rebuild: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res, err := parser.Parse(data)
		if err != nil {
			s.logger.Warn("rebuild: parse failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		note := s.toNote(m.Path, res, m.UpdatedAt)
		notes = append(notes, note)
		docs = append(docs, document(note, res, m.Checksum))
	}

	s.mu.Lock()
	rep := s.graph.BuildFromNotes(notes)
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()

	unresolved := unresolvedBySource(rep)
	for i := range docs {
		docs[i].Unresolved = unresolved[docs[i].Row.ID]
	}
	for _, id := range rep.Skipped {
		s.logger.Warn("rebuild: note skipped, duplicate id or path", slog.String("note", id))
	}
	s.logUnresolved(rep)

	st, err := index.Sync(s.db, docs, s.logger)
	if err != nil {
		return RebuildResult{}, fail(span, fmt.Errorf("noteservice: rebuild: index sync: %w", err))
	}

	out := RebuildResult{
		Nodes:      nodes,
		Edges:      edges,
		Unresolved: len(rep.Unresolved()),
		Skipped:    nonNilSlice(rep.Skipped),
		Index:      st,
		Duration:   time.Since(start),
	}
	s.metrics.observeSize(nodes, edges)
	s.metrics.unresolved.Set(float64(out.Unresolved))
	s.metrics.rebuild.Observe(out.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("graph.nodes", nodes),
		attribute.Int("graph.edges", edges),
		attribute.Int("graph.unresolved", out.Unresolved),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Info("graph rebuilt",
		slog.Int("nodes", nodes),
		slog.Int("edges", edges),
		slog.Int("unresolved", out.Unresolved),
		slog.Duration("took", out.Duration),
	)
	s.notify(models.Change{Kind: models.ChangeRebuilt})
	return out, nil
}

// ApplyFile brings the graph and index in line with the content of one
// vault file. A new id adds a node, a known id or path updates it in place.
// Content identical to what is indexed for an existing node is a no-op.
func (s *Service) ApplyFile(ctx context.Context, p string, data []byte) (models.ChangeKind, error) {
	_, span := tracer.Start(ctx, "noteservice.ApplyFile", trace.WithAttributes(attribute.String("note.path", p)))
	defer span.End()

	res, err := parser.Parse(data)
	if err != nil {
		return "", fail(span, fmt.Errorf("noteservice: parse %s: %w", p, err))
	}
	cs := checksum.Sum(data)

	s.mu.Lock()
	change, err := s.applyLocked(p, res, cs)
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()
	if err != nil {
		return "", fail(span, err)
	}

	s.metrics.observeSize(nodes, edges)
	span.SetAttributes(attribute.String("change.kind", string(change.Kind)))
	s.notify(change)
	return change.Kind, nil
}

func (s *Service) applyLocked(p string, res *parser.Result, cs string) (models.Change, error) {
	note := s.toNote(p, res, s.now())
	change := models.Change{Path: p, NoteID: note.ID}

	var (
		rep graph.Report
		ok  bool
	)
	prev, havePath := s.graph.NodeByPath(p)
	switch {
	case havePath && prev.ID == note.ID:
		if indexed, _ := s.db.GetChecksum(p); indexed == cs {
			change.Kind = models.ChangeUnchanged
			return change, nil
		}
		rep, ok = s.graph.UpdateNode(note)
		change.Kind = models.ChangeUpdated

	case havePath:
		// The frontmatter id changed; the path now belongs to a new node.
		if _, taken := s.graph.Node(note.ID); taken {
			return change, fmt.Errorf("noteservice: apply %s: id %q already used: %w", p, note.ID, apperr.ErrConflict)
		}
		s.graph.RemoveNode(prev.ID)
		rep, ok = s.graph.AddNode(note)
		change.Kind = models.ChangeUpdated

	default:
		if existing, known := s.graph.Node(note.ID); known {
			// Same id under a new path: a move.
			if exists, _ := s.store.Exists(existing.Path); exists {
				return change, fmt.Errorf("noteservice: apply %s: id %q already used by %s: %w", p, note.ID, existing.Path, apperr.ErrConflict)
			}
			rep, ok = s.graph.UpdateNode(note)
			if ok {
				if err := s.db.DeleteNote(existing.Path); err != nil {
					s.logger.Warn("apply: drop moved index row failed", slog.String("path", existing.Path), slog.String("error", err.Error()))
				}
			}
			change.Kind = models.ChangeUpdated
		} else {
			rep, ok = s.graph.AddNode(note)
			change.Kind = models.ChangeCreated
		}
	}
	if !ok {
		return change, fmt.Errorf("noteservice: apply %s: %w", p, apperr.ErrConflict)
	}
	s.logUnresolved(rep)

	doc := document(note, res, cs)
	doc.Unresolved = unresolvedBySource(rep)[note.ID]
	if err := s.db.UpsertNote(doc.Row, doc.Body, doc.Unresolved); err != nil {
		return change, fmt.Errorf("noteservice: index %s: %w", p, err)
	}
	return change, nil
}

// RemoveFile drops the node stored under path and its search row. Removing
// an unknown path is not an error.
func (s *Service) RemoveFile(ctx context.Context, p string) error {
	_, span := tracer.Start(ctx, "noteservice.RemoveFile", trace.WithAttributes(attribute.String("note.path", p)))
	defer span.End()

	s.mu.Lock()
	n, ok := s.graph.NodeByPath(p)
	if ok {
		s.graph.RemoveNode(n.ID)
	}
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()

	if err := s.db.DeleteNote(p); err != nil {
		return fail(span, fmt.Errorf("noteservice: remove %s: %w", p, err))
	}
	if !ok {
		return nil
	}
	s.metrics.observeSize(nodes, edges)
	s.notify(models.Change{Kind: models.ChangeDeleted, Path: p, NoteID: n.ID})
	return nil
}

// Reconcile compares the vault listing with the graph and applies the
// difference. A single new, changed or missing note goes through the
// incremental path; anything larger is a full Rebuild, so references between
// notes of the same batch resolve in both directions.
func (s *Service) Reconcile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "noteservice.Reconcile")
	defer span.End()

	metas, err := s.store.List("")
	if err != nil {
		return fail(span, fmt.Errorf("noteservice: reconcile: %w", err))
	}
	indexed, err := s.db.AllChecksums()
	if err != nil {
		return fail(span, fmt.Errorf("noteservice: reconcile: %w", err))
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}
	var gone, changed []string
	s.mu.RLock()
	for _, n := range s.graph.Nodes() {
		if _, ok := disk[n.Path]; !ok {
			gone = append(gone, n.Path)
		}
	}
	for _, m := range metas {
		if _, inGraph := s.graph.NodeByPath(m.Path); !inGraph || indexed[m.Path] != m.Checksum {
			changed = append(changed, m.Path)
		}
	}
	s.mu.RUnlock()

	span.SetAttributes(attribute.Int("reconcile.gone", len(gone)), attribute.Int("reconcile.changed", len(changed)))
	switch {
	case len(gone)+len(changed) > 1:
		s.logger.Info("reconcile: batch change, rebuilding",
			slog.Int("gone", len(gone)),
			slog.Int("changed", len(changed)),
		)
		if _, err := s.Rebuild(ctx); err != nil {
			return fail(span, err)
		}
	case len(gone) == 1:
		if err := s.RemoveFile(ctx, gone[0]); err != nil {
			s.logger.Warn("reconcile: remove failed", slog.String("path", gone[0]), slog.String("error", err.Error()))
		}
	case len(changed) == 1:
		data, err := s.store.Read(changed[0])
		if err != nil {
			return nil
		}
		if _, err := s.ApplyFile(ctx, changed[0], data); err != nil {
			s.logger.Warn("reconcile: apply failed", slog.String("path", changed[0]), slog.String("error", err.Error()))
		}
	}
	return nil
}

func document(note models.Note, res *parser.Result, cs string) index.Document {
	return index.Document{
		Row: index.NoteRow{
			Path:      note.Path,
			ID:        note.ID,
			Title:     note.Title,
			Checksum:  cs,
			Tags:      nonNilSlice(res.Tags),
			UpdatedAt: note.Modified,
		},
		Body: res.Body,
	}
}

func unresolvedBySource(rep graph.Report) map[string][]string {
	out := make(map[string][]string)
	for _, is := range rep.Unresolved() {
		out[is.Source] = append(out[is.Source], is.Target)
	}
	return out
}

func (s *Service) logUnresolved(rep graph.Report) {
	for _, is := range rep.Unresolved() {
		s.logger.Debug("unresolved reference", slog.String("source", is.Source), slog.String("target", is.Target))
	}
	for _, d := range rep.Duplicates {
		s.logger.Warn("link id already used, definition ignored",
			slog.String("source", d.Source),
			slog.String("link", d.LinkID),
			slog.String("owner", d.Owner),
		)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
