package index

import (
	"log/slog"
)

// Document is one parsed note ready for indexing.
type Document struct {
	Row        NoteRow
	Body       string
	Unresolved []string
}

// SyncStats summarises a Sync pass.
type SyncStats struct {
	Indexed   int
	Unchanged int
	Removed   int
}

// Sync brings the index in line with docs, the full set of vault notes:
//   - new or changed documents (by checksum) are upserted
//   - unchanged documents only get their unresolved references refreshed
//   - indexed paths missing from docs are deleted
//
// Per-document failures are logged and skipped.
func Sync(db NoteIndex, docs []Document, logger *slog.Logger) (SyncStats, error) {
	var st SyncStats
	checksums, err := db.AllChecksums()
	if err != nil {
		return st, err
	}

	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		p := d.Row.Path
		seen[p] = struct{}{}

		if cs, ok := checksums[p]; ok && cs == d.Row.Checksum {
			// Resolution depends on the other notes, so it can change
			// without this file changing.
			if err := db.SetUnresolved(p, d.Unresolved); err != nil {
				logger.Warn("sync: links refresh failed", slog.String("path", p), slog.String("error", err.Error()))
			}
			st.Unchanged++
			continue
		}
		if err := db.UpsertNote(d.Row, d.Body, d.Unresolved); err != nil {
			logger.Warn("sync: index failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Indexed++
		logger.Debug("sync: indexed", slog.String("path", p))
	}

	for p := range checksums {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}
	return st, nil
}
