package source

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSpan parses a human-written range "L:C-L:C" with 1-based lines and
// columns. A bare "L-L" selects whole lines, the end line included.
func ParseSpan(s string) (Span, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Span{}, fmt.Errorf("invalid range %q (expected L:C-L:C or L-L)", s)
	}
	start, _, err := parsePos(from)
	if err != nil {
		return Span{}, fmt.Errorf("invalid range start %q: %w", from, err)
	}
	end, endHasCol, err := parsePos(to)
	if err != nil {
		return Span{}, fmt.Errorf("invalid range end %q: %w", to, err)
	}
	if !endHasCol {
		// whole-line form: run to the start of the following line
		end = Position{Line: end.Line + 1}
	}
	return NewSpan(start, end), nil
}

func parsePos(s string) (Position, bool, error) {
	lineStr, colStr, hasCol := strings.Cut(strings.TrimSpace(s), ":")
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return Position{}, false, err
	}
	if line < 1 {
		return Position{}, false, fmt.Errorf("line must be >= 1")
	}
	pos := Position{Line: line - 1}
	if !hasCol {
		return pos, false, nil
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return Position{}, false, err
	}
	if col < 1 {
		return Position{}, false, fmt.Errorf("column must be >= 1")
	}
	pos.Character = col - 1
	return pos, true, nil
}
