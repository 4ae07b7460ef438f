package lsp

import "tidyls/internal/source"

// applyChanges applies incremental or full content changes in order.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		doc := source.NewDocument("", "", []byte(text))
		span := doc.ClampSpan(*change.Range)
		start := doc.Offset(span.Start)
		end := doc.Offset(span.End)
		text = text[:start] + change.Text + text[end:]
	}
	return text
}
