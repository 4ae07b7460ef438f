package source

import (
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"fortio.org/safecast"
)

// Document is an immutable snapshot of an open text buffer.
type Document struct {
	URI     string
	Path    string // empty for virtual documents
	Content []byte
	LineIdx []uint32 // byte offsets of every '\n'
	Flags   DocFlags
}

// NewDocument snapshots content. An empty path marks the document virtual.
func NewDocument(uri, path string, content []byte) *Document {
	var flags DocFlags
	if path == "" {
		flags |= DocVirtual
	}
	return &Document{
		URI:     uri,
		Path:    path,
		Content: content,
		LineIdx: buildLineIndex(content),
		Flags:   flags,
	}
}

// Virtual reports whether the document has no backing file.
func (d *Document) Virtual() bool {
	return d.Flags&DocVirtual != 0
}

// LineCount returns the number of lines. An empty document has one line.
func (d *Document) LineCount() int {
	return len(d.LineIdx) + 1
}

// Line returns the text of line n without its line break.
func (d *Document) Line(n int) string {
	start, end := d.lineBounds(n)
	return string(d.Content[start:end])
}

// FullSpan covers the document from (0,0) to the end of the last line.
func (d *Document) FullSpan() Span {
	last := d.LineCount() - 1
	return Span{
		Start: Position{},
		End:   Position{Line: last, Character: utf16Len(d.Line(last))},
	}
}

// Clamp moves pos inside the document.
func (d *Document) Clamp(pos Position) Position {
	if pos.Line < 0 {
		return Position{}
	}
	if pos.Line >= d.LineCount() {
		return d.FullSpan().End
	}
	if pos.Character < 0 {
		pos.Character = 0
	}
	if width := utf16Len(d.Line(pos.Line)); pos.Character > width {
		pos.Character = width
	}
	return pos
}

// ClampSpan clamps both ends of span and restores their order.
func (d *Document) ClampSpan(span Span) Span {
	return NewSpan(d.Clamp(span.Start), d.Clamp(span.End))
}

// Offset converts pos to a byte offset, clamping out-of-range positions.
func (d *Document) Offset(pos Position) int {
	pos = d.Clamp(pos)
	start, end := d.lineBounds(pos.Line)
	units := 0
	off := int(start)
	for off < int(end) && units < pos.Character {
		r, size := utf8.DecodeRune(d.Content[off:end])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		off += size
	}
	return off
}

// PositionAt converts a byte offset to a position.
func (d *Document) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.Content) {
		offset = len(d.Content)
	}
	off := safeUint32(offset)
	line := sort.Search(len(d.LineIdx), func(i int) bool { return d.LineIdx[i] >= off })
	start, end := d.lineBounds(line)
	if off > end {
		off = end
	}
	return Position{Line: line, Character: utf16Len(string(d.Content[start:off]))}
}

// Text returns the text covered by span.
func (d *Document) Text(span Span) string {
	span = d.ClampSpan(span)
	return string(d.Content[d.Offset(span.Start):d.Offset(span.End)])
}

// lineBounds returns the byte range of line n, excluding "\n" or "\r\n".
func (d *Document) lineBounds(n int) (start, end uint32) {
	contentLen := safeUint32(len(d.Content))
	if n < 0 {
		n = 0
	}
	if n > len(d.LineIdx) {
		n = len(d.LineIdx)
	}
	if n > 0 {
		start = d.LineIdx[n-1] + 1
	}
	end = contentLen
	if n < len(d.LineIdx) {
		end = d.LineIdx[n]
		if end > start && d.Content[end-1] == '\r' {
			end--
		}
	}
	return start, end
}

func buildLineIndex(content []byte) []uint32 {
	out := make([]uint32, 0, 64)
	for i, b := range content {
		if b == '\n' {
			out = append(out, safeUint32(i))
		}
	}
	return out
}

func safeUint32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("document offset overflow: %w", err))
	}
	return v
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++ // invalid runes encode as U+FFFD
		}
	}
	return n
}
