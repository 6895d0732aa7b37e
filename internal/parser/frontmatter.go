package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/graphnotes/internal/models"
)

// SetLinks rewrites the "links" key of the note's frontmatter, keeping every
// other key in its original order. A note without frontmatter gains one.
// An empty defs slice removes the key.
func SetLinks(data []byte, defs []models.LinkDefinition) ([]byte, error) {
	block, fm, body := splitFrontmatter(data)
	if fm == nil && hasFrontmatterFence(data) {
		return nil, fmt.Errorf("parser: frontmatter is not valid YAML")
	}

	var doc yaml.Node
	if fm != nil && len(bytes.TrimSpace(block)) > 0 {
		if err := yaml.Unmarshal(block, &doc); err != nil {
			return nil, fmt.Errorf("parser: decode frontmatter: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parser: frontmatter is not a mapping")
	}

	idx := -1
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "links" {
			idx = i
			break
		}
	}

	if len(defs) == 0 {
		if idx >= 0 {
			root.Content = append(root.Content[:idx], root.Content[idx+2:]...)
		}
	} else {
		var value yaml.Node
		if err := value.Encode(defs); err != nil {
			return nil, fmt.Errorf("parser: encode links: %w", err)
		}
		if idx >= 0 {
			root.Content[idx+1] = &value
		} else {
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "links"}
			root.Content = append(root.Content, key, &value)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(root.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// hasFrontmatterFence reports whether data opens and closes a --- block.
func hasFrontmatterFence(data []byte) bool {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return false
	}
	return bytes.Contains(trimmed[len(delim):], []byte("\n"+delim))
}
