package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
)

// DefaultGrepLimit caps Grep results when max is not positive.
const DefaultGrepLimit = 100

// GrepMatch is one matching line.
type GrepMatch struct {
	Path        string `json:"filepath"`
	LineNumber  int    `json:"lineNumber"`
	LineContent string `json:"lineContent"`
	MatchStart  int    `json:"matchStart"`
	MatchEnd    int    `json:"matchEnd"`
}

// Grep searches every note line for pattern and returns at most max matches,
// one per line, in path then line order. Unreadable files and lines longer
// than the scanner limit are skipped. A pattern that fails to compile is
// matched literally.
func Grep(p Provider, pattern string, max int) ([]GrepMatch, error) {
	if max <= 0 {
		max = DefaultGrepLimit
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	notes, err := p.List("")
	if err != nil {
		return nil, fmt.Errorf("storage: grep: %w", err)
	}
	out := []GrepMatch{}
	for _, n := range notes {
		data, err := p.Read(n.Path)
		if err != nil {
			// Removed between List and Read.
			continue
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		line := 0
		for sc.Scan() {
			line++
			text := sc.Text()
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			out = append(out, GrepMatch{
				Path:        n.Path,
				LineNumber:  line,
				LineContent: text,
				MatchStart:  loc[0],
				MatchEnd:    loc[1],
			})
			if len(out) >= max {
				return out, nil
			}
		}
	}
	return out, nil
}
