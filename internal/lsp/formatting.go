package lsp

import (
	"context"
	"encoding/json"
	"errors"

	"tidyls/internal/source"
	"tidyls/internal/tidy"
)

// onTypeTriggers lists the characters that reformat the current statement.
var onTypeTriggers = []string{";", "}", ")", "]"}

func (s *Server) handleFormatting(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params documentFormattingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}
	return s.formatSpan(ctx, params.TextDocument.URI, func(doc *source.Document) source.Span {
		return source.Resolve(doc, nil, nil)
	})
}

func (s *Server) handleRangeFormatting(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params documentRangeFormattingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}
	return s.formatSpan(ctx, params.TextDocument.URI, func(doc *source.Document) source.Span {
		return source.ExpandToLineStart(doc, source.Resolve(doc, &params.Range, nil))
	})
}

func (s *Server) handleOnTypeFormatting(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params documentOnTypeFormattingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}
	if !isTrigger(params.Ch) {
		return []textEdit{}, nil
	}
	edits, rerr := s.formatSpan(ctx, params.TextDocument.URI, func(doc *source.Document) source.Span {
		return source.OnTypeSpan(doc, params.Position)
	})
	if rerr == nil && ctx.Err() != nil {
		// cancelled on-type edits are stale
		return nil, &rpcError{Code: codeRequestCancelled, Message: "request cancelled"}
	}
	return edits, rerr
}

// formatSpan formats the part of uri chosen by pick. Formatter failures
// are shown to the user and answered with a null result.
func (s *Server) formatSpan(ctx context.Context, uri string, pick func(*source.Document) source.Span) (any, *rpcError) {
	doc, ok := s.snapshot(uri)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "document is not open: " + uri}
	}
	span := pick(doc)
	edit, err := s.tidySpan(ctx, doc, span)
	if err != nil {
		s.reportFailure(err)
		return nil, nil
	}
	if edit == nil {
		return []textEdit{}, nil
	}
	return []textEdit{*edit}, nil
}

// tidySpan runs perltidy over span. A nil edit means the call was skipped.
func (s *Server) tidySpan(ctx context.Context, doc *source.Document, span source.Span) (*textEdit, error) {
	fc := tidy.FormatContext{
		WorkspaceRoot: s.workspaceFor(doc.Path),
		DocumentPath:  doc.Path,
	}
	res, err := s.invoker.Format(ctx, doc.Text(span), fc)
	if err != nil {
		return nil, err
	}
	if res.Outcome == tidy.OutcomeSkipped {
		return nil, nil
	}
	return &textEdit{Range: span, NewText: res.Text}, nil
}

func (s *Server) reportFailure(err error) {
	var cfgErr *tidy.ConfigError
	if errors.As(err, &cfgErr) {
		s.showMessage(messageTypeError, cfgErr.Error())
		return
	}
	s.logf("perltidy: %v", err)
	s.showMessage(messageTypeError, "Internal error: "+err.Error())
}

// snapshot copies the current text of an open document.
func (s *Server) snapshot(uri string) (*source.Document, bool) {
	uri = canonicalURI(uri)
	s.mu.Lock()
	text, ok := s.openDocs[uri]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return source.NewDocument(uri, uriToPath(uri), []byte(text)), true
}
