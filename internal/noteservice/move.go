package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/graphnotes/internal/apperr"
	"github.com/starford/graphnotes/internal/checksum"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/parser"
	"github.com/starford/graphnotes/internal/storage"
)

// MoveNote renames the note at from to to.
//
// A note with a frontmatter id keeps its node, so every edge pointing at it
// survives. A note identified by its path becomes a new node; the notes that
// linked to it are relinked, and references that still resolve (by title or
// filename) keep their edges.
func (s *Service) MoveNote(ctx context.Context, from, to string) (*NoteDetail, error) {
	_, span := tracer.Start(ctx, "noteservice.MoveNote", trace.WithAttributes(
		attribute.String("note.path", from),
		attribute.String("note.new_path", to),
	))
	defer span.End()

	if !storage.IsNoteFile(to) {
		return nil, fail(span, fmt.Errorf("noteservice: %s is not a markdown file: %w", to, apperr.ErrInvalidInput))
	}
	if from == to {
		return nil, fail(span, fmt.Errorf("noteservice: move %s onto itself: %w", from, apperr.ErrInvalidInput))
	}
	data, err := s.read(from)
	if err != nil {
		return nil, fail(span, err)
	}
	exists, err := s.store.Exists(to)
	if err != nil {
		return nil, fail(span, err)
	}
	if exists {
		return nil, fail(span, apperr.ErrAlreadyExists)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fail(span, fmt.Errorf("noteservice: parse %s: %w", from, err))
	}
	if err := s.store.Move(from, to); err != nil {
		return nil, fail(span, err)
	}

	s.mu.Lock()
	change, err := s.moveLocked(from, to, res, checksum.Sum(data))
	var detail *NoteDetail
	if err == nil {
		detail, err = s.buildNoteDetail(to, data)
	}
	nodes, edges := s.graph.NodeCount(), s.graph.EdgeCount()
	s.mu.Unlock()
	if err != nil {
		if change.Kind == "" {
			if rbErr := s.store.Move(to, from); rbErr != nil {
				s.logger.Error("move: rollback failed", slog.String("path", to), slog.String("error", rbErr.Error()))
			}
		}
		return nil, fail(span, err)
	}

	s.metrics.observeSize(nodes, edges)
	span.SetStatus(codes.Ok, "")
	s.logger.Info("note moved", slog.String("from", from), slog.String("to", to))
	s.notify(change)
	return detail, nil
}

// moveLocked updates graph and index for a completed file move. A zero
// change kind means the graph was left untouched.
func (s *Service) moveLocked(from, to string, res *parser.Result, cs string) (models.Change, error) {
	note := s.toNote(to, res, s.now())
	prev, known := s.graph.NodeByPath(from)

	var relink []string
	if known && prev.ID == note.ID {
		rep, ok := s.graph.UpdateNode(note)
		if !ok {
			return models.Change{}, fmt.Errorf("noteservice: move %s: %w", from, apperr.ErrConflict)
		}
		s.logUnresolved(rep)
	} else {
		if _, taken := s.graph.Node(note.ID); taken {
			return models.Change{}, fmt.Errorf("noteservice: move %s: id %q already used: %w", from, note.ID, apperr.ErrConflict)
		}
		if known {
			for _, e := range s.graph.IncomingEdges(prev.ID) {
				relink = append(relink, e.Source)
			}
			s.graph.RemoveNode(prev.ID)
		}
		rep, _ := s.graph.AddNode(note)
		s.logUnresolved(rep)
	}
	change := models.Change{Kind: models.ChangeMoved, Path: to, OldPath: from, NoteID: note.ID}

	if err := s.db.DeleteNote(from); err != nil {
		return change, fmt.Errorf("noteservice: move %s: %w", from, err)
	}
	doc := document(note, res, cs)
	doc.Unresolved = s.unresolvedTargets(note)
	if err := s.db.UpsertNote(doc.Row, doc.Body, doc.Unresolved); err != nil {
		return change, fmt.Errorf("noteservice: index %s: %w", to, err)
	}

	slices.Sort(relink)
	for _, id := range slices.Compact(relink) {
		src, ok := s.graph.Node(id)
		if !ok {
			continue
		}
		if err := s.relinkSource(src.Path); err != nil {
			s.logger.Warn("move: relink failed", slog.String("path", src.Path), slog.String("error", err.Error()))
		}
	}
	return change, nil
}

// relinkSource regenerates the edges of the note at p from its stored
// content and refreshes its unresolved references.
func (s *Service) relinkSource(p string) error {
	data, err := s.read(p)
	if err != nil {
		return err
	}
	if err := s.relinkLocked(p, data); err != nil {
		return err
	}
	n, ok := s.graph.NodeByPath(p)
	if !ok {
		return nil
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return s.db.SetUnresolved(p, s.unresolvedTargets(s.toNote(p, res, n.Modified)))
}
