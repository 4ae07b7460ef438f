package lsp

import (
	"context"
	"encoding/json"

	"tidyls/internal/source"
)

// CommandTidy formats a document, its selection, or an explicit range and
// applies the result through workspace/applyEdit.
const CommandTidy = "perltidy-more.tidy"

func (s *Server) handleExecuteCommand(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params executeCommandParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}
	if params.Command != CommandTidy {
		return nil, &rpcError{Code: codeInvalidParams, Message: "unknown command: " + params.Command}
	}
	uri, explicit, selection, err := tidyArguments(params.Arguments)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	doc, ok := s.snapshot(uri)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "document is not open: " + uri}
	}
	span := source.Resolve(doc, explicit, selection)
	edit, ferr := s.tidySpan(ctx, doc, span)
	if ferr != nil {
		s.reportFailure(ferr)
		return nil, nil
	}
	if edit == nil {
		return nil, nil
	}
	// keyed by the URI exactly as the client sent it
	apply := applyWorkspaceEditParams{
		Label: "perltidy",
		Edit:  workspaceEdit{Changes: map[string][]textEdit{uri: {*edit}}},
	}
	if err := s.sendRequest("workspace/applyEdit", apply); err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	return nil, nil
}

type argumentError string

func (e argumentError) Error() string { return string(e) }

// tidyArguments decodes [uri, range?, selection?]. Null entries are absent.
func tidyArguments(args []json.RawMessage) (uri string, explicit, selection *source.Span, err error) {
	if len(args) == 0 {
		return "", nil, nil, argumentError(CommandTidy + ": missing document URI")
	}
	if err := json.Unmarshal(args[0], &uri); err != nil || uri == "" {
		return "", nil, nil, argumentError(CommandTidy + ": first argument must be a document URI")
	}
	optional := func(i int) (*source.Span, error) {
		if len(args) <= i {
			return nil, nil
		}
		var span *source.Span
		if err := json.Unmarshal(args[i], &span); err != nil {
			return nil, argumentError(CommandTidy + ": invalid range argument")
		}
		if span != nil {
			*span = source.NewSpan(span.Start, span.End)
		}
		return span, nil
	}
	if explicit, err = optional(1); err != nil {
		return "", nil, nil, err
	}
	if selection, err = optional(2); err != nil {
		return "", nil, nil, err
	}
	return uri, explicit, selection, nil
}
