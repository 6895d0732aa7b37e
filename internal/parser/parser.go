// Package parser turns raw Markdown notes into frontmatter, body, tags,
// author-defined link definitions and inline wikilink references.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/graphnotes/internal/models"
)

const delim = "---"

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// tagKeys are the frontmatter keys whose list values become super tags.
var tagKeys = []string{"tags", "superTags", "supertags"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Tags        []string
	Title       string
	ID          string
	Created     time.Time
	Modified    time.Time
	Links       []models.LinkDefinition
}

// header is the typed view of the frontmatter keys the graph cares about.
// Times are decoded as strings so a malformed date never discards the block.
type header struct {
	ID       string    `yaml:"id"`
	Created  string    `yaml:"created"`
	Modified string    `yaml:"modified"`
	Links    []rawLink `yaml:"links"`
}

type rawLink struct {
	ID          string        `yaml:"id"`
	Target      string        `yaml:"target"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Created     string        `yaml:"created"`
	Appearance  rawAppearance `yaml:"appearance"`
}

type rawAppearance struct {
	Direction string `yaml:"direction"`
	Colour    string `yaml:"colour"`
	Color     string `yaml:"color"`
	Style     string `yaml:"style"`
	Thickness string `yaml:"thickness"`
	Animated  bool   `yaml:"animated"`
}

// Parse extracts frontmatter, body, tags, title and link definitions from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	block, fm, body := splitFrontmatter(data)

	res := &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}

	if fm != nil {
		var h header
		// The map decode already succeeded; a typed mismatch only loses the typed view.
		if err := yaml.Unmarshal(block, &h); err == nil {
			res.ID = strings.TrimSpace(h.ID)
			res.Created = parseTime(h.Created)
			res.Modified = parseTime(h.Modified)
			res.Links = convertLinks(h.Links)
		}
	}

	return res, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) ([]byte, map[string]interface{}, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole file is body.
		return nil, nil, string(data)
	}
	if fm == nil {
		fm = map[string]interface{}{}
	}

	return yamlBlock, fm, body
}

func convertLinks(raw []rawLink) []models.LinkDefinition {
	if len(raw) == 0 {
		return nil
	}
	out := make([]models.LinkDefinition, 0, len(raw))
	for _, l := range raw {
		target := strings.TrimSpace(l.Target)
		if target == "" {
			continue
		}
		colour := l.Appearance.Colour
		if colour == "" {
			colour = l.Appearance.Color
		}
		out = append(out, models.LinkDefinition{
			ID:          strings.TrimSpace(l.ID),
			Target:      target,
			Name:        strings.TrimSpace(l.Name),
			Description: l.Description,
			Created:     parseTime(l.Created),
			Appearance: models.Appearance{
				Direction: models.Direction(strings.ToLower(l.Appearance.Direction)),
				Colour:    colour,
				Style:     models.Style(strings.ToLower(l.Appearance.Style)),
				Thickness: models.Thickness(strings.ToLower(l.Appearance.Thickness)),
				Animated:  l.Appearance.Animated,
			}.Normalize(),
		})
	}
	return out
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// extractTags collects #tags from body and from the frontmatter tag lists.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, key := range tagKeys {
		switch v := fm[key].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
