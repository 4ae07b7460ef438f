package source

import "fmt"

// Position is a zero-based line and UTF-16 column, matching LSP positions.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts before other in document order.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Span is a contiguous region of a document. Start never sorts after End.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewSpan builds a span, swapping the ends if they are reversed.
func NewSpan(start, end Position) Span {
	if end.Before(start) {
		start, end = end, start
	}
	return Span{Start: start, End: end}
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// DocFlags encodes metadata about a document.
type DocFlags uint8

const (
	// DocVirtual marks a document that has no backing file on disk.
	DocVirtual DocFlags = 1 << iota
)
