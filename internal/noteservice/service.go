// Package noteservice coordinates the vault, the search index and the
// in-memory knowledge graph. Every note write goes through here so the three
// stay consistent; the graph store is guarded by the service's RWMutex.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/graphnotes/internal/apperr"
	"github.com/starford/graphnotes/internal/checksum"
	"github.com/starford/graphnotes/internal/graph"
	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/parser"
	"github.com/starford/graphnotes/internal/storage"
)

// DefaultMaxDepth caps Subgraph when no limit is configured.
const DefaultMaxDepth = 5

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Links       []models.Edge  `json:"links"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithChangeHook registers fn to receive every applied change. fn is called
// after the service lock is released.
func WithChangeHook(fn func(models.Change)) Option {
	return func(s *Service) { s.onChange = fn }
}

// WithMaxDepth caps the depth accepted by Subgraph.
func WithMaxDepth(d int) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxDepth = d
		}
	}
}

// Service coordinates storage, index and graph operations.
type Service struct {
	store storage.Provider
	db    index.NoteIndex

	mu    sync.RWMutex
	graph *graph.Store

	metrics  *Metrics
	logger   *slog.Logger
	onChange func(models.Change)
	maxDepth int
	now      func() time.Time
}

// NewService creates a note service with an empty graph. Call Rebuild to
// load the vault.
func NewService(store storage.Provider, db index.NoteIndex, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		graph:    graph.New(),
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// GetNote reads a note from storage and enriches it with its graph links.
func (s *Service) GetNote(_ context.Context, p string) (*NoteDetail, error) {
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildNoteDetail(p, data)
}

// CreateNote writes a new note and applies it to the graph and index.
func (s *Service) CreateNote(ctx context.Context, p string, content []byte) (*NoteDetail, error) {
	if !storage.IsNoteFile(p) {
		return nil, fmt.Errorf("noteservice: %s is not a markdown file: %w", p, apperr.ErrInvalidInput)
	}
	exists, err := s.store.Exists(p)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	if _, err := s.ApplyFile(ctx, p, content); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildNoteDetail(p, content)
}

// UpdateNote writes updated content with optimistic concurrency: a non-empty
// ifMatch must equal the checksum of the stored content.
func (s *Service) UpdateNote(ctx context.Context, p string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.read(p)
	if err != nil {
		return nil, err
	}
	if !checksum.Match(existing, ifMatch) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	if _, err := s.ApplyFile(ctx, p, content); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildNoteDetail(p, content)
}

// DeleteNote removes a note from storage, index and graph.
func (s *Service) DeleteNote(ctx context.Context, p string) error {
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.RemoveFile(ctx, p)
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			ID:        r.ID,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Grep runs a line-oriented pattern search over the vault files.
func (s *Service) Grep(_ context.Context, pattern string, limit int) ([]storage.GrepMatch, error) {
	if pattern == "" {
		return nil, fmt.Errorf("noteservice: empty grep pattern: %w", apperr.ErrInvalidInput)
	}
	return storage.Grep(s.store, pattern, limit)
}

func (s *Service) read(p string) ([]byte, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// buildNoteDetail constructs a NoteDetail from raw data. Callers hold s.mu.
func (s *Service) buildNoteDetail(p string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	note := s.toNote(p, res, s.now())
	d := &NoteDetail{
		Path:        p,
		ID:          note.ID,
		Title:       note.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Links:       []models.Edge{},
		Backlinks:   []string{},
		UpdatedAt:   note.Modified,
	}
	if n, ok := s.graph.NodeByPath(p); ok {
		d.ID = n.ID
		d.Links = s.graph.OutgoingEdges(n.ID)
		d.Backlinks = s.backlinkPaths(n.ID)
	}
	return d, nil
}

// toNote converts a parse result into the graph's note snapshot. The id
// defaults to the vault path, the title to the file stem and the
// timestamps to fallback.
func (s *Service) toNote(p string, res *parser.Result, fallback time.Time) models.Note {
	n := models.Note{
		ID:              res.ID,
		Path:            p,
		Title:           res.Title,
		Created:         res.Created,
		Modified:        res.Modified,
		SuperTags:       res.Tags,
		LinkDefinitions: res.Links,
		Content:         res.Body,
	}
	if n.ID == "" {
		n.ID = p
	}
	if n.Title == "" {
		base := path.Base(p)
		n.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	if n.Modified.IsZero() {
		n.Modified = fallback.UTC().Truncate(time.Second)
	}
	if n.Created.IsZero() {
		n.Created = n.Modified
	}
	return n
}

func (s *Service) notify(c models.Change) {
	s.metrics.observeChange(c.Kind)
	if s.onChange != nil && c.Kind != models.ChangeUnchanged {
		s.onChange(c)
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
