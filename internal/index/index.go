package index

// NoteIndex is the search-index surface the note service depends on.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, unresolved []string) error
	SetUnresolved(path string, targets []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	ListNotes(limit, offset int, tag, sort string) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Unresolved() ([]UnresolvedLink, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
