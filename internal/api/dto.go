package api

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/graphnotes/internal/graph"
	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/models"
	"github.com/starford/graphnotes/internal/noteservice"
	"github.com/starford/graphnotes/internal/storage"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// Validate implements validation.Validatable.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// MoveNoteRequest renames a note within the vault.
type MoveNoteRequest struct {
	From string `json:"from" example:"inbox/idea.md" validate:"required"`
	To   string `json:"to" example:"projects/idea.md" validate:"required"`
}

// Validate implements validation.Validatable.
func (r MoveNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required, validation.NotIn(r.From).Error("must differ from from")),
	)
}

// CreateLinkRequest adds or replaces an explicit link. An empty id creates a
// new link.
type CreateLinkRequest struct {
	Source      string            `json:"source" example:"notes/a.md" validate:"required"`
	Target      string            `json:"target" example:"Beta" validate:"required"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty" example:"depends on"`
	Description string            `json:"description,omitempty"`
	Appearance  models.Appearance `json:"appearance"`
}

// Validate implements validation.Validatable.
func (r CreateLinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Target, validation.Required),
		validation.Field(&r.Appearance),
	)
}

func (r CreateLinkRequest) definition() models.LinkDefinition {
	return models.LinkDefinition{
		ID:          r.ID,
		Target:      r.Target,
		Name:        r.Name,
		Description: r.Description,
		Appearance:  r.Appearance,
	}
}

// PositionRequest carries an opaque layout value for a node.
type PositionRequest struct {
	Position any `json:"position"`
}

// NoteDetail is the full note response type.
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response.
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GrepResponse wraps grep matches.
type GrepResponse struct {
	Matches []storage.GrepMatch `json:"matches" validate:"required"`
}

// GraphResponse is a node set and the edges among it.
type GraphResponse = graph.Subgraph

// NodesResponse wraps a node list.
type NodesResponse struct {
	Nodes []models.Node `json:"nodes" validate:"required"`
}

// EdgesResponse wraps an edge list.
type EdgesResponse struct {
	Edges []models.Edge `json:"edges" validate:"required"`
}

// UnresolvedResponse lists references that matched no note.
type UnresolvedResponse struct {
	Links []index.UnresolvedLink `json:"links" validate:"required"`
}

// filterFromQuery builds a graph filter from the tags, exclude, title,
// after and before query parameters. Times are RFC 3339.
func filterFromQuery(get func(string) string) (graph.Filter, error) {
	f := graph.Filter{
		IncludeTags:   splitList(get("tags")),
		ExcludeTags:   splitList(get("exclude")),
		TitleContains: strings.TrimSpace(get("title")),
	}
	var err error
	if f.ModifiedAfter, err = parseTime(get("after")); err != nil {
		return graph.Filter{}, err
	}
	if f.ModifiedBefore, err = parseTime(get("before")); err != nil {
		return graph.Filter{}, err
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
