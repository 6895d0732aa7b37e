package mcpserver

// NoteFormatContract describes the Markdown note format that LLM consumers
// should follow when creating or updating notes.
const NoteFormatContract = `# graphnotes Note Format Contract

Every Markdown note in the vault SHOULD follow this structure. Each note is a
node in the knowledge graph; links between notes are its edges.

## Structure

` + "```" + `markdown
---
id: 2b1f0c9e                        # OPTIONAL – stable node id; defaults to the file path
title: Human-readable title         # RECOMMENDED – falls back to the first H1, then the file name
tags:                               # OPTIONAL – YAML list; used for graph filtering
  - tag-one
created: 2025-01-15T09:00:00Z       # OPTIONAL – RFC 3339 or YYYY-MM-DD
modified: 2025-01-16T10:30:00Z      # OPTIONAL – defaults to the file modification time
links:                              # OPTIONAL – typed links, see below
  - target: other-note
    name: depends on
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes.
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## How link targets resolve

A target (in a wikilink or a typed link) is matched in this order:

1. a note **id**;
2. a note **title**, case-insensitive;
3. a vault **path**, e.g. ` + "`" + `folder/note.md` + "`" + `;
4. a **file name**, with or without ` + "`" + `.md` + "`" + `; the alphabetically first path wins on ties.

Targets that match nothing are reported as unresolved and create no edge.
A note never links to itself.

## Typed links

Entries under ` + "`" + `links` + "`" + ` create explicit edges. An explicit edge replaces the
plain wikilink edge between the same two notes.

` + "```" + `yaml
links:
  - id: rel-1                 # OPTIONAL – generated when omitted
    target: Project X         # REQUIRED – resolved like a wikilink
    name: depends on          # OPTIONAL – defaults to "references"
    description: Needs the API first
    appearance:               # OPTIONAL
      direction: forward      # forward | backward | bidirectional | none
      colour: "#ff8800"
      style: dashed           # solid | dashed | dotted
      thickness: thick        # thin | normal | thick
      animated: false
` + "```" + `

## Rules

1. **YAML frontmatter** fences must be the first thing in the file.
2. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `). Inline ` + "`" + `#tags` + "`" + ` in the body count too.
3. **Ids** must be unique across the vault. A note whose id or path is already taken is skipped. Link ids are vault-wide too: a link whose id another link already holds is ignored.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
5. **Encoding** is UTF-8 with a trailing newline.
6. **Language policy:** file names and frontmatter keys MUST be in English.
   Frontmatter values and body content may use any language.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
links:
  - target: Design doc
    name: reviews
---

# Weekly standup 2025-01-20

- [[alice]] to review the [[design-doc]]
- Bob to update [[project-x/roadmap|the roadmap]]
` + "```" + `
`
