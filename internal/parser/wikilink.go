package parser

import (
	"iter"
	"regexp"
	"strings"
)

// wikilinkRe matches [[target]] and [[target|alias]]. Brackets are excluded
// from the inner text so "[[a [[b]]" yields only "b".
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]\n]*)\]\]`)

// Reference is one raw wikilink occurrence in a note body.
type Reference struct {
	Target string
	Alias  string
	// Offset is the byte offset of the opening "[[" in the body.
	Offset int
}

// Wikilinks returns a lazy sequence of the wikilink occurrences in body.
// Each range over the sequence rescans from the start. Occurrences with an
// empty target are skipped; no resolution is attempted.
func Wikilinks(body string) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		pos := 0
		for pos < len(body) {
			loc := wikilinkRe.FindStringSubmatchIndex(body[pos:])
			if loc == nil {
				return
			}
			start := pos + loc[0]
			inner := body[pos+loc[2] : pos+loc[3]]
			pos += loc[1]

			target, alias, _ := strings.Cut(inner, "|")
			target = strings.TrimSpace(target)
			if target == "" {
				continue
			}
			if !yield(Reference{Target: target, Alias: strings.TrimSpace(alias), Offset: start}) {
				return
			}
		}
	}
}

// LinkTargets returns the distinct wikilink targets of body in first-seen order.
func LinkTargets(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for ref := range Wikilinks(body) {
		if _, ok := seen[ref.Target]; ok {
			continue
		}
		seen[ref.Target] = struct{}{}
		out = append(out, ref.Target)
	}
	return out
}
