package source

import (
	"strings"
	"unicode"
)

// StatementTerminator ends a Perl statement; on-type spans start after it.
const StatementTerminator = ';'

// Resolve picks the span a formatting request should cover. A non-empty
// selection always wins; without one the explicit range is used, and with
// neither the whole document is.
func Resolve(doc *Document, explicit, selection *Span) Span {
	if selection != nil && !selection.Empty() {
		return doc.ClampSpan(*selection)
	}
	if explicit == nil {
		return doc.FullSpan()
	}
	return doc.ClampSpan(*explicit)
}

// ExpandToLineStart moves the start of a non-empty span to column 0 when
// only whitespace precedes it on its line, so the formatter sees the
// original indentation. Empty spans are returned clamped.
func ExpandToLineStart(doc *Document, span Span) Span {
	span = doc.ClampSpan(span)
	if span.Empty() || span.Start.Character == 0 {
		return span
	}
	lineStart := doc.Offset(Position{Line: span.Start.Line})
	prefix := string(doc.Content[lineStart:doc.Offset(span.Start)])
	if strings.IndexFunc(prefix, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0 {
		return span
	}
	span.Start.Character = 0
	return span
}

// OnTypeSpan returns the span reformatted after a trigger character is typed
// at trigger. It starts on the line after the nearest earlier line holding a
// statement terminator, or at the document start when there is none.
func OnTypeSpan(doc *Document, trigger Position) Span {
	trigger = doc.Clamp(trigger)
	start := Position{}
	for line := trigger.Line - 1; line >= 0; line-- {
		if strings.ContainsRune(doc.Line(line), StatementTerminator) {
			start = Position{Line: line + 1}
			break
		}
	}
	return Span{Start: start, End: trigger}
}
