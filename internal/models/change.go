package models

// ChangeKind classifies a vault or graph mutation.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	// ChangeMoved follows a rename; Change.OldPath holds the previous path.
	ChangeMoved ChangeKind = "moved"
	// ChangeUnchanged is returned when a file was re-applied with identical content.
	ChangeUnchanged ChangeKind = "unchanged"
	// ChangeLinked covers edge edits and layout updates that leave note text alone.
	ChangeLinked ChangeKind = "linked"
	// ChangeRebuilt follows a full graph rebuild.
	ChangeRebuilt ChangeKind = "rebuilt"
)

// Change describes one applied mutation for event subscribers.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	OldPath string     `json:"oldPath,omitempty"`
	NoteID  string     `json:"id,omitempty"`
	EdgeID  string     `json:"edgeId,omitempty"`
}
