package index

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/graphnotes/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:      "hello.md",
		ID:        "n-hello",
		Title:     "Hello World",
		Checksum:  "abc123",
		Tags:      []string{"go", "test"},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.UpsertNote(row, "This is a hello world note.", nil); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	cs, err := db.GetChecksum("hello.md")
	if err != nil || cs != "abc123" {
		t.Errorf("checksum = %q, %v", cs, err)
	}
	got, err := db.GetNote("hello.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.ID != "n-hello" || got.Title != "Hello World" || len(got.Tags) != 2 {
		t.Errorf("row = %+v", got)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote("missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	cs, err := db.GetChecksum("missing.md")
	if err != nil || cs != "" {
		t.Errorf("checksum = %q, %v", cs, err)
	}
}

func TestUnresolvedReplacedOnUpsert(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1", UpdatedAt: now}, "body", []string{"Ghost", "Other"})
	_ = db.UpsertNote(NoteRow{Path: "b.md", Checksum: "2", UpdatedAt: now}, "body", []string{"Ghost"})

	got, err := db.Unresolved()
	if err != nil {
		t.Fatalf("Unresolved: %v", err)
	}
	if len(got) != 3 || got[0] != (UnresolvedLink{Source: "a.md", Target: "Ghost"}) {
		t.Fatalf("unresolved = %+v", got)
	}

	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "3", UpdatedAt: now}, "body", nil)
	got, _ = db.Unresolved()
	if len(got) != 1 || got[0].Source != "b.md" {
		t.Errorf("after upsert = %+v", got)
	}

	if err := db.SetUnresolved("b.md", nil); err != nil {
		t.Fatalf("SetUnresolved: %v", err)
	}
	got, _ = db.Unresolved()
	if len(got) != 0 {
		t.Errorf("after SetUnresolved = %+v", got)
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, "body", []string{"nowhere"})

	if err := db.DeleteNote("del.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
	if got, _ := db.Unresolved(); len(got) != 0 {
		t.Errorf("links survived delete: %+v", got)
	}
}

func TestListNotes(t *testing.T) {
	db := testDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = db.UpsertNote(NoteRow{Path: "b.md", Title: "alpha", Checksum: "1", Tags: []string{"go"}, UpdatedAt: base}, "", nil)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Title: "Charlie", Checksum: "2", Tags: []string{"rust"}, UpdatedAt: base.Add(time.Hour)}, "", nil)
	_ = db.UpsertNote(NoteRow{Path: "c.md", Title: "Bravo", Checksum: "3", Tags: []string{"go", "db"}, UpdatedAt: base.Add(2 * time.Hour)}, "", nil)

	paths := func(rows []NoteRow) string {
		s := ""
		for _, r := range rows {
			s += r.Path + " "
		}
		return s
	}

	rows, total, err := db.ListNotes(10, 0, "", "")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 3 || paths(rows) != "a.md b.md c.md " {
		t.Errorf("default = %d %q", total, paths(rows))
	}

	rows, _, _ = db.ListNotes(10, 0, "", SortTitle)
	if paths(rows) != "b.md c.md a.md " {
		t.Errorf("by title = %q", paths(rows))
	}

	rows, _, _ = db.ListNotes(10, 0, "", SortUpdated)
	if paths(rows) != "c.md a.md b.md " {
		t.Errorf("by updated = %q", paths(rows))
	}

	rows, total, _ = db.ListNotes(10, 0, "go", "")
	if total != 2 || paths(rows) != "b.md c.md " {
		t.Errorf("tag go = %d %q", total, paths(rows))
	}

	rows, total, _ = db.ListNotes(1, 1, "", "")
	if total != 3 || paths(rows) != "b.md " {
		t.Errorf("page = %d %q", total, paths(rows))
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "s.md", ID: "sid", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" || results[0].ID != "sid" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "stale.md", Checksum: "s", UpdatedAt: now}, "", nil)
	_ = db.UpsertNote(NoteRow{Path: "same.md", Checksum: "k", UpdatedAt: now}, "", []string{"Old ghost"})

	docs := []Document{
		{Row: NoteRow{Path: "same.md", Checksum: "k", UpdatedAt: now}, Unresolved: []string{"New ghost"}},
		{Row: NoteRow{Path: "new.md", ID: "n", Checksum: "n1", UpdatedAt: now}, Body: "fresh"},
	}
	st, err := Sync(db, docs, quietLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if st != (SyncStats{Indexed: 1, Unchanged: 1, Removed: 1}) {
		t.Errorf("stats = %+v", st)
	}

	all, _ := db.AllChecksums()
	if len(all) != 2 || all["new.md"] != "n1" {
		t.Errorf("checksums = %v", all)
	}
	links, _ := db.Unresolved()
	if len(links) != 1 || links[0].Target != "New ghost" {
		t.Errorf("unresolved = %+v", links)
	}

	paths, _ := db.AllPaths()
	if _, ok := paths["stale.md"]; ok {
		t.Error("stale path survived sync")
	}
}
