package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"tidyls/internal/source"
	"tidyls/internal/tidy"
)

func TestFormattingWholeDocument(t *testing.T) {
	root := t.TempDir()
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{reply: func(cmd tidy.Command) ([]byte, error) {
		return []byte(strings.ReplaceAll(cmd.Stdin, "$x=1", "$x = 1")), nil
	}}
	msgs := session(t, root, runner, nil,
		openDoc(uri, "my $x=1;\n"),
		request(2, "textDocument/formatting", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"options":      map[string]any{"tabSize": 4, "insertSpaces": true},
		}),
	)
	edits := decodeEdits(t, response(t, msgs, 2))
	if len(edits) != 1 {
		t.Fatalf("expected one edit, got %+v", edits)
	}
	want := lspRange{End: position{Line: 1}}
	if edits[0].Range != want || edits[0].NewText != "my $x = 1;\n" {
		t.Fatalf("unexpected edit: %+v", edits[0])
	}
	calls := runner.commands()
	if len(calls) != 1 {
		t.Fatalf("expected one perltidy run, got %d", len(calls))
	}
	if calls[0].Path != tidy.DefaultExecutable || strings.Join(calls[0].Args, " ") != "-st -natnl" {
		t.Fatalf("unexpected command: %s", calls[0])
	}
	if calls[0].Dir != root {
		t.Fatalf("expected working dir %q, got %q", root, calls[0].Dir)
	}
}

func TestRangeFormattingIncludesIndentation(t *testing.T) {
	root := t.TempDir()
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{}
	msgs := session(t, root, runner, nil,
		openDoc(uri, "sub f {\n    my $x=1;\n}\n"),
		request(2, "textDocument/rangeFormatting", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"range":        lspRange{Start: position{Line: 1, Character: 4}, End: position{Line: 1, Character: 12}},
		}),
	)
	edits := decodeEdits(t, response(t, msgs, 2))
	if len(edits) != 1 {
		t.Fatalf("expected one edit, got %+v", edits)
	}
	if edits[0].Range.Start != (position{Line: 1}) {
		t.Fatalf("range not expanded to line start: %s", edits[0].Range)
	}
	if got := runner.commands()[0].Stdin; got != "    my $x=1;" {
		t.Fatalf("unexpected stdin %q", got)
	}
}

func TestOnTypeFormattingCurrentStatement(t *testing.T) {
	root := t.TempDir()
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{}
	msgs := session(t, root, runner, nil,
		openDoc(uri, "my $a = 1;\nmy $b=\n  2;\n"),
		request(2, "textDocument/onTypeFormatting", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     position{Line: 2, Character: 4},
			"ch":           ";",
		}),
		request(3, "textDocument/onTypeFormatting", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     position{Line: 2, Character: 4},
			"ch":           "x",
		}),
	)
	edits := decodeEdits(t, response(t, msgs, 2))
	want := lspRange{Start: position{Line: 1}, End: position{Line: 2, Character: 4}}
	if len(edits) != 1 || edits[0].Range != want {
		t.Fatalf("unexpected edits: %+v", edits)
	}
	if got := runner.commands()[0].Stdin; got != "my $b=\n  2;" {
		t.Fatalf("unexpected stdin %q", got)
	}
	if edits := decodeEdits(t, response(t, msgs, 3)); len(edits) != 0 {
		t.Fatalf("non-trigger character produced edits: %+v", edits)
	}
	if len(runner.commands()) != 1 {
		t.Fatalf("non-trigger character ran perltidy")
	}
}

func TestAutoDisableSkipsWithoutProfile(t *testing.T) {
	root := t.TempDir()
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{}
	msgs := session(t, root, runner, map[string]any{"perltidy-more": map[string]any{"autoDisable": true}},
		openDoc(uri, "my $x=1;\n"),
		request(2, "textDocument/formatting", map[string]any{"textDocument": map[string]any{"uri": uri}}),
	)
	if edits := decodeEdits(t, response(t, msgs, 2)); len(edits) != 0 {
		t.Fatalf("expected no edits, got %+v", edits)
	}
	if len(runner.commands()) != 0 {
		t.Fatalf("perltidy ran despite autoDisable")
	}
	if shown := byMethod(msgs, "window/showMessage"); len(shown) != 0 {
		t.Fatalf("skip must be silent, got %d messages", len(shown))
	}
}

func TestLiveConfigurationOverridesInitOptions(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, tidy.ProfileFileName), []byte("-i=2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{}
	session(t, root, runner, map[string]any{"executable": "/opt/init/perltidy"},
		notification("workspace/didChangeConfiguration", map[string]any{
			"settings": map[string]any{"perltidy-more": map[string]any{"executable": "/opt/live/perltidy", "profile": "x.rc"}},
		}),
		openDoc(uri, "1;\n"),
		request(2, "textDocument/formatting", map[string]any{"textDocument": map[string]any{"uri": uri}}),
	)
	calls := runner.commands()
	if len(calls) != 1 {
		t.Fatalf("expected one run, got %d", len(calls))
	}
	if calls[0].Path != "/opt/live/perltidy" || strings.Join(calls[0].Args, " ") != "-st -natnl --profile=x.rc" {
		t.Fatalf("live settings not applied: %s", calls[0])
	}
}

func TestFormattingFailuresShowMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outside bool
		want    string
	}{
		{
			name: "missing executable",
			err:  &tidy.StartError{Path: "perltidy", Err: &exec.Error{Name: "perltidy", Err: exec.ErrNotFound}},
			want: "Install Perl::Tidy",
		},
		{
			name: "stream failure",
			err:  errors.New("broken pipe"),
			want: "Internal error: run perltidy: broken pipe",
		},
		{
			name:    "outside workspace",
			outside: true,
			want:    "not part of a workspace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			docRoot := root
			if tt.outside {
				docRoot = t.TempDir()
			}
			uri := pathToURI(filepath.Join(docRoot, "a.pl"))
			runner := &fakeRunner{reply: func(tidy.Command) ([]byte, error) { return nil, tt.err }}
			msgs := session(t, root, runner, nil,
				openDoc(uri, "my $x=1;\n"),
				request(2, "textDocument/formatting", map[string]any{"textDocument": map[string]any{"uri": uri}}),
			)
			resp := response(t, msgs, 2)
			if resp.Error != nil || string(resp.Result) != "null" {
				t.Fatalf("expected null result, got %s / %+v", resp.Result, resp.Error)
			}
			shown := byMethod(msgs, "window/showMessage")
			if len(shown) != 1 {
				t.Fatalf("expected one message, got %d", len(shown))
			}
			var params showMessageParams
			if err := json.Unmarshal(shown[0].Params, &params); err != nil {
				t.Fatalf("decode showMessage: %v", err)
			}
			if params.Type != messageTypeError || !strings.Contains(params.Message, tt.want) {
				t.Fatalf("unexpected message: %+v", params)
			}
		})
	}
}

func TestFormattingUnopenedDocument(t *testing.T) {
	root := t.TempDir()
	msgs := session(t, root, &fakeRunner{}, nil,
		request(2, "textDocument/formatting", map[string]any{
			"textDocument": map[string]any{"uri": pathToURI(filepath.Join(root, "missing.pl"))},
		}),
	)
	resp := response(t, msgs, 2)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
}

func TestOnTypeCancelledAfterProcessStarted(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.pl")
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &fakeRunner{reply: func(cmd tidy.Command) ([]byte, error) {
		close(started)
		<-release
		return []byte(cmd.Stdin), nil
	}}
	var out bytes.Buffer
	server := NewServer(bytes.NewReader(nil), &out, ServerOptions{Runner: runner, Log: io.Discard})
	server.folders = []string{root}
	server.openDocs[pathToURI(path)] = "my $x=1;\n"

	params, _ := json.Marshal(map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path)},
		"position":     position{Line: 0, Character: 8},
		"ch":           ";",
	})
	id := json.RawMessage(`7`)
	if err := server.goRequest(&rpcMessage{ID: id, Method: "textDocument/onTypeFormatting", Params: params}, server.handleOnTypeFormatting); err != nil {
		t.Fatalf("goRequest: %v", err)
	}
	<-started
	cancel, _ := json.Marshal(cancelParams{ID: id})
	if err := server.handleCancel(&rpcMessage{Method: "$/cancelRequest", Params: cancel}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(release)
	server.requests.Wait()

	if len(runner.commands()) != 1 {
		t.Fatalf("expected the process to run to completion")
	}
	resp := response(t, decodeAll(t, out.Bytes()), 7)
	if resp.Error == nil || resp.Error.Code != codeRequestCancelled {
		t.Fatalf("expected request cancelled, got %+v", resp)
	}
}

func TestExecuteTidyCommand(t *testing.T) {
	root := t.TempDir()
	uri := pathToURI(filepath.Join(root, "a.pl"))
	runner := &fakeRunner{reply: func(cmd tidy.Command) ([]byte, error) {
		return []byte(strings.ToUpper(cmd.Stdin)), nil
	}}
	selection := source.NewSpan(position{Line: 1, Character: 3}, position{Line: 1})
	msgs := session(t, root, runner, nil,
		openDoc(uri, "one;\ntwo;\n"),
		request(2, "workspace/executeCommand", map[string]any{
			"command":   CommandTidy,
			"arguments": []any{uri, nil, selection},
		}),
		request(3, "workspace/executeCommand", map[string]any{"command": CommandTidy}),
	)
	if resp := response(t, msgs, 2); resp.Error != nil || string(resp.Result) != "null" {
		t.Fatalf("unexpected command reply: %+v", resp)
	}
	applied := byMethod(msgs, "workspace/applyEdit")
	if len(applied) != 1 {
		t.Fatalf("expected one applyEdit, got %d", len(applied))
	}
	var params applyWorkspaceEditParams
	if err := json.Unmarshal(applied[0].Params, &params); err != nil {
		t.Fatalf("decode applyEdit: %v", err)
	}
	edits := params.Edit.Changes[uri]
	if len(edits) != 1 || edits[0].NewText != "TWO" || edits[0].Range != (lspRange{Start: position{Line: 1}, End: position{Line: 1, Character: 3}}) {
		t.Fatalf("unexpected applyEdit: %+v", params)
	}
	if resp := response(t, msgs, 3); resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params without arguments, got %+v", resp)
	}
}

func TestExecuteTidyCommandEchoesClientURI(t *testing.T) {
	root := t.TempDir()
	// escaped differently from what pathToURI produces
	clientURI := pathToURI(root) + "/a%2Epl"
	if canonicalURI(clientURI) == clientURI {
		t.Fatalf("test URI is already canonical: %s", clientURI)
	}
	msgs := session(t, root, &fakeRunner{}, nil,
		openDoc(clientURI, "one;\n"),
		request(2, "workspace/executeCommand", map[string]any{
			"command":   CommandTidy,
			"arguments": []any{clientURI},
		}),
	)
	applied := byMethod(msgs, "workspace/applyEdit")
	if len(applied) != 1 {
		t.Fatalf("expected one applyEdit, got %d", len(applied))
	}
	var params applyWorkspaceEditParams
	if err := json.Unmarshal(applied[0].Params, &params); err != nil {
		t.Fatalf("decode applyEdit: %v", err)
	}
	if _, ok := params.Edit.Changes[clientURI]; !ok || len(params.Edit.Changes) != 1 {
		t.Fatalf("edit not keyed by the client URI %q: %+v", clientURI, params.Edit.Changes)
	}
}
