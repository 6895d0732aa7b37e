package graph

import (
	"path"
	"strings"
)

// Outcome classifies the result of resolving a raw reference.
type Outcome int

const (
	// Unresolved means no node matched the reference.
	Unresolved Outcome = iota
	// Resolved means the reference names another node.
	Resolved
	// SelfReference means the reference names the referring node itself.
	SelfReference
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case SelfReference:
		return "self"
	default:
		return "unresolved"
	}
}

// Rule records which lookup matched.
type Rule int

const (
	RuleNone Rule = iota
	RuleID
	RuleTitle
	RulePath
	RuleFilename
)

func (r Rule) String() string {
	switch r {
	case RuleID:
		return "id"
	case RuleTitle:
		return "title"
	case RulePath:
		return "path"
	case RuleFilename:
		return "filename"
	default:
		return "none"
	}
}

// Resolution is the result of Resolver.Resolve. ID is set for Resolved and
// SelfReference outcomes.
type Resolution struct {
	ID      string
	Outcome Outcome
	Rule    Rule
}

// Resolver maps raw reference strings to node ids using a store's indices.
// It never mutates the store.
type Resolver struct {
	s *Store
}

// Resolver returns a resolver bound to the store's current indices.
func (s *Store) Resolver() Resolver {
	return Resolver{s: s}
}

// Resolve resolves raw on behalf of the node fromID. Lookups are tried in
// order: node id, case-insensitive title, filepath, then a scan for a
// case-insensitive filename without extension. A match on fromID itself is
// reported as SelfReference.
func (r Resolver) Resolve(raw, fromID string) Resolution {
	id, rule, ok := r.Lookup(raw)
	switch {
	case !ok:
		return Resolution{Outcome: Unresolved}
	case id == fromID:
		return Resolution{ID: id, Outcome: SelfReference, Rule: rule}
	default:
		return Resolution{ID: id, Outcome: Resolved, Rule: rule}
	}
}

// Lookup returns the node id raw refers to and the rule that matched.
func (r Resolver) Lookup(raw string) (string, Rule, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", RuleNone, false
	}
	if _, ok := r.s.nodes[raw]; ok {
		return raw, RuleID, true
	}
	if id, ok := r.s.byTitle[strings.ToLower(raw)]; ok {
		return id, RuleTitle, true
	}
	if id, ok := r.s.byPath[raw]; ok {
		return id, RulePath, true
	}
	if id, ok := r.scanFilenames(raw); ok {
		return id, RuleFilename, true
	}
	return "", RuleNone, false
}

// scanFilenames compares raw against every filepath with its extension
// stripped, either as the bare file stem or as the whole path. The
// lexicographically smallest matching path wins.
func (r Resolver) scanFilenames(raw string) (string, bool) {
	want := strings.ToLower(raw)
	var (
		bestPath string
		bestID   string
		found    bool
	)
	for p, id := range r.s.byPath {
		if !filenameMatches(p, want) {
			continue
		}
		if !found || p < bestPath {
			bestPath, bestID, found = p, id, true
		}
	}
	return bestID, found
}

func filenameMatches(filepath, want string) bool {
	slashed := strings.ToLower(strings.ReplaceAll(filepath, "\\", "/"))
	noExt := strings.TrimSuffix(slashed, path.Ext(slashed))
	if noExt == want {
		return true
	}
	base := path.Base(slashed)
	return strings.TrimSuffix(base, path.Ext(base)) == want
}
