package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultRelationName labels edges that carry no author-chosen name.
const DefaultRelationName = "references"

// Direction controls arrowheads on a rendered edge.
type Direction string

const (
	DirectionForward       Direction = "forward"
	DirectionBackward      Direction = "backward"
	DirectionBidirectional Direction = "bidirectional"
	DirectionNone          Direction = "none"
)

// Style is the stroke pattern of a rendered edge.
type Style string

const (
	StyleSolid  Style = "solid"
	StyleDashed Style = "dashed"
	StyleDotted Style = "dotted"
)

// Thickness is the stroke weight of a rendered edge.
type Thickness string

const (
	ThicknessThin   Thickness = "thin"
	ThicknessNormal Thickness = "normal"
	ThicknessThick  Thickness = "thick"
)

// Appearance holds the visual attributes the visualization layer translates
// into stroke colour, width, dash pattern and arrowheads.
type Appearance struct {
	Direction Direction `json:"direction" yaml:"direction,omitempty"`
	Colour    string    `json:"colour" yaml:"colour,omitempty"`
	Style     Style     `json:"style" yaml:"style,omitempty"`
	Thickness Thickness `json:"thickness" yaml:"thickness,omitempty"`
	Animated  bool      `json:"animated" yaml:"animated,omitempty"`
}

// DefaultAppearance is used for implicit edges and fills unset fields.
func DefaultAppearance() Appearance {
	return Appearance{
		Direction: DirectionForward,
		Style:     StyleSolid,
		Thickness: ThicknessNormal,
	}
}

// Validate rejects unknown enum values.
func (a Appearance) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Direction, validation.In(DirectionForward, DirectionBackward, DirectionBidirectional, DirectionNone)),
		validation.Field(&a.Style, validation.In(StyleSolid, StyleDashed, StyleDotted)),
		validation.Field(&a.Thickness, validation.In(ThicknessThin, ThicknessNormal, ThicknessThick)),
	)
}

// Normalize replaces empty or unknown enum values with defaults.
func (a Appearance) Normalize() Appearance {
	def := DefaultAppearance()
	switch a.Direction {
	case DirectionForward, DirectionBackward, DirectionBidirectional, DirectionNone:
	default:
		a.Direction = def.Direction
	}
	switch a.Style {
	case StyleSolid, StyleDashed, StyleDotted:
	default:
		a.Style = def.Style
	}
	switch a.Thickness {
	case ThicknessThin, ThicknessNormal, ThicknessThick:
	default:
		a.Thickness = def.Thickness
	}
	return a
}

// EdgeID identifies an edge. Explicit edges carry the author's id; implicit
// edges are keyed by their ordered endpoint pair. The two forms never share
// a map key because each leaves the other's fields empty.
type EdgeID struct {
	Explicit string
	Source   string
	Target   string
}

// ExplicitEdgeID wraps an author-chosen edge id.
func ExplicitEdgeID(id string) EdgeID {
	return EdgeID{Explicit: id}
}

// ImplicitEdgeID returns the deterministic id of the wikilink edge source→target.
func ImplicitEdgeID(source, target string) EdgeID {
	return EdgeID{Source: source, Target: target}
}

// IsImplicit reports whether the id belongs to a wikilink-derived edge.
func (id EdgeID) IsImplicit() bool {
	return id.Explicit == "" && id.Source != ""
}

// IsZero reports whether id is the empty value.
func (id EdgeID) IsZero() bool {
	return id == EdgeID{}
}

// String returns the text form: "e:<id>" or "i:<source>/<target>" with both
// endpoints path-escaped.
func (id EdgeID) String() string {
	if id.IsImplicit() {
		return "i:" + url.PathEscape(id.Source) + "/" + url.PathEscape(id.Target)
	}
	return "e:" + id.Explicit
}

// MarshalText implements encoding.TextMarshaler.
func (id EdgeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *EdgeID) UnmarshalText(b []byte) error {
	parsed, err := ParseEdgeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseEdgeID parses the text form produced by EdgeID.String.
func ParseEdgeID(s string) (EdgeID, error) {
	switch {
	case strings.HasPrefix(s, "e:") && len(s) > 2:
		return ExplicitEdgeID(s[2:]), nil
	case strings.HasPrefix(s, "i:"):
		src, tgt, ok := strings.Cut(s[2:], "/")
		if !ok {
			return EdgeID{}, fmt.Errorf("models: malformed implicit edge id %q", s)
		}
		source, err := url.PathUnescape(src)
		if err != nil {
			return EdgeID{}, fmt.Errorf("models: edge id source: %w", err)
		}
		target, err := url.PathUnescape(tgt)
		if err != nil {
			return EdgeID{}, fmt.Errorf("models: edge id target: %w", err)
		}
		if source == "" || target == "" {
			return EdgeID{}, fmt.Errorf("models: malformed implicit edge id %q", s)
		}
		return ImplicitEdgeID(source, target), nil
	}
	return EdgeID{}, fmt.Errorf("models: malformed edge id %q", s)
}

// Node is the graph representation of one note.
type Node struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Path              string    `json:"filepath"`
	Created           time.Time `json:"created"`
	Modified          time.Time `json:"modified"`
	SuperTags         []string  `json:"superTags,omitempty"`
	IncomingLinkCount int       `json:"incomingLinkCount"`
	OutgoingLinkCount int       `json:"outgoingLinkCount"`
	// Position is owned by the visualization layer and passed through untouched.
	Position any `json:"position,omitempty"`
}

// Degree is the total number of edges touching the node.
func (n Node) Degree() int {
	return n.IncomingLinkCount + n.OutgoingLinkCount
}

// HasTag reports whether the node carries tag.
func (n Node) HasTag(tag string) bool {
	for _, t := range n.SuperTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	ID          EdgeID     `json:"id"`
	Source      string     `json:"source"`
	Target      string     `json:"target"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Created     time.Time  `json:"created"`
	Appearance  Appearance `json:"appearance"`
}

// Implicit reports whether the edge was derived from wikilink syntax.
func (e Edge) Implicit() bool {
	return e.ID.IsImplicit()
}

// ConnectedNode is one entry of Stats.MostConnected.
type ConnectedNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Connections int    `json:"connections"`
}

// Stats aggregates graph-wide counts for the statistics panel.
type Stats struct {
	TotalNodes    int             `json:"totalNodes"`
	TotalEdges    int             `json:"totalEdges"`
	OrphanedNodes []string        `json:"orphanedNodes"`
	MostConnected []ConnectedNode `json:"mostConnectedNodes"`
}
