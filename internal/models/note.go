// Package models defines the domain types for graphnotes.
package models

import "time"

// Note is an immutable snapshot of one vault note as handed to the graph store.
type Note struct {
	ID              string           `json:"id"`
	Path            string           `json:"path"`
	Title           string           `json:"title"`
	Created         time.Time        `json:"created"`
	Modified        time.Time        `json:"modified"`
	SuperTags       []string         `json:"superTags,omitempty"`
	LinkDefinitions []LinkDefinition `json:"linkDefinitions,omitempty"`
	Content         string           `json:"content"`
}

// LinkDefinition is an author-curated link carried in a note's frontmatter.
type LinkDefinition struct {
	ID          string     `json:"id" yaml:"id,omitempty"`
	Target      string     `json:"target" yaml:"target"`
	Name        string     `json:"name" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time  `json:"created" yaml:"created,omitempty"`
	Appearance  Appearance `json:"appearance" yaml:"appearance,omitempty"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
