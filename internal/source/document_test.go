package source

import (
	"strings"
	"testing"
)

func TestDocumentUTF16Offsets(t *testing.T) {
	text := "my $s = \"é🙂\"; print $s;\nsecond\n"
	d := doc(text)

	idx := strings.Index(text, "print")
	pos := d.PositionAt(idx)
	// "🙂" takes two UTF-16 units, "é" one
	if pos != (Position{Line: 0, Character: 15}) {
		t.Fatalf("unexpected position for print: %v", pos)
	}
	if got := d.Offset(pos); got != idx {
		t.Fatalf("Offset(%v) = %d, want %d", pos, got, idx)
	}

	// a column inside the surrogate pair snaps to the rune start
	emoji := strings.Index(text, "🙂")
	inside := d.PositionAt(emoji)
	inside.Character++
	if got := d.Offset(inside); got != emoji {
		t.Fatalf("offset inside surrogate pair = %d, want %d", got, emoji)
	}
}

func TestDocumentClamp(t *testing.T) {
	d := doc("ab\ncd")
	tests := []struct {
		in, want Position
	}{
		{in: Position{Line: -1, Character: 3}, want: Position{}},
		{in: Position{Line: 0, Character: 10}, want: Position{Line: 0, Character: 2}},
		{in: Position{Line: 9, Character: 0}, want: Position{Line: 1, Character: 2}},
		{in: Position{Line: 1, Character: -4}, want: Position{Line: 1, Character: 0}},
	}
	for _, tt := range tests {
		if got := d.Clamp(tt.in); got != tt.want {
			t.Fatalf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDocumentLinesAndText(t *testing.T) {
	d := doc("one;\r\ntwo;\nthree;")
	if d.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", d.LineCount())
	}
	if d.Line(0) != "one;" {
		t.Fatalf("crlf should be stripped from line text, got %q", d.Line(0))
	}
	if got := d.Text(span(1, 0, 2, 3)); got != "two;\nthr" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestNewDocumentVirtual(t *testing.T) {
	if !NewDocument("untitled:Untitled-1", "", nil).Virtual() {
		t.Fatal("document without path should be virtual")
	}
	if doc("").Virtual() {
		t.Fatal("document with path should not be virtual")
	}
}

func TestParseSpan(t *testing.T) {
	tests := []struct {
		in      string
		want    Span
		wantErr bool
	}{
		{in: "1:1-2:5", want: span(0, 0, 1, 4)},
		{in: "3-4", want: span(2, 0, 4, 0)},
		{in: "2:3-1:1", want: span(0, 0, 1, 2)},
		{in: "0:1-2:1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1:x-2:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpan(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSpan returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseSpan = %v, want %v", got, tt.want)
			}
		})
	}
}
