package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tidyls/internal/tidy"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []tidy.Command
	reply func(tidy.Command) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd tidy.Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.reply == nil {
		return []byte(cmd.Stdin), nil
	}
	return f.reply(cmd)
}

func (f *fakeRunner) commands() []tidy.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tidy.Command(nil), f.calls...)
}

func request(id int, method string, params any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
}

func notification(method string, params any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "method": method, "params": params}
}

func frame(t *testing.T, msgs ...map[string]any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := writeMessage(&buf, payload); err != nil {
			t.Fatalf("frame: %v", err)
		}
	}
	return &buf
}

func decodeAll(t *testing.T, out []byte) []rpcMessage {
	t.Helper()
	reader := bufio.NewReader(bytes.NewReader(out))
	var msgs []rpcMessage
	for {
		payload, err := readMessage(reader)
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		msgs = append(msgs, msg)
	}
}

func response(t *testing.T, msgs []rpcMessage, id int) rpcMessage {
	t.Helper()
	want, _ := json.Marshal(id)
	for _, msg := range msgs {
		if msg.Method == "" && string(msg.ID) == string(want) {
			return msg
		}
	}
	t.Fatalf("no response with id %d in %d messages", id, len(msgs))
	return rpcMessage{}
}

func byMethod(msgs []rpcMessage, method string) []rpcMessage {
	var out []rpcMessage
	for _, msg := range msgs {
		if msg.Method == method {
			out = append(out, msg)
		}
	}
	return out
}

// session runs a server over msgs wrapped in initialize and shutdown/exit.
func session(t *testing.T, root string, runner tidy.Runner, initOptions any, msgs ...map[string]any) []rpcMessage {
	t.Helper()
	all := []map[string]any{
		request(1, "initialize", map[string]any{"rootUri": pathToURI(root), "initializationOptions": initOptions}),
		notification("initialized", map[string]any{}),
	}
	all = append(all, msgs...)
	all = append(all, request(999, "shutdown", nil), notification("exit", nil))

	var out bytes.Buffer
	server := NewServer(frame(t, all...), &out, ServerOptions{Runner: runner, Log: io.Discard})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	return decodeAll(t, out.Bytes())
}

func openDoc(uri, text string) map[string]any {
	return notification("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "perl", "version": 1, "text": text},
	})
}

func decodeEdits(t *testing.T, msg rpcMessage) []textEdit {
	t.Helper()
	if msg.Error != nil {
		t.Fatalf("unexpected error: %+v", msg.Error)
	}
	var edits []textEdit
	if err := json.Unmarshal(msg.Result, &edits); err != nil {
		t.Fatalf("decode edits %s: %v", msg.Result, err)
	}
	return edits
}

func TestInitializeCapabilities(t *testing.T) {
	msgs := session(t, t.TempDir(), &fakeRunner{}, nil)
	var result struct {
		Capabilities struct {
			DocumentFormattingProvider       bool `json:"documentFormattingProvider"`
			DocumentRangeFormattingProvider  bool `json:"documentRangeFormattingProvider"`
			DocumentOnTypeFormattingProvider struct {
				FirstTriggerCharacter string   `json:"firstTriggerCharacter"`
				MoreTriggerCharacter  []string `json:"moreTriggerCharacter"`
			} `json:"documentOnTypeFormattingProvider"`
			ExecuteCommandProvider struct {
				Commands []string `json:"commands"`
			} `json:"executeCommandProvider"`
		} `json:"capabilities"`
		ServerInfo serverInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(response(t, msgs, 1).Result, &result); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	caps := result.Capabilities
	if !caps.DocumentFormattingProvider || !caps.DocumentRangeFormattingProvider {
		t.Fatalf("formatting providers not advertised: %+v", caps)
	}
	onType := caps.DocumentOnTypeFormattingProvider
	if onType.FirstTriggerCharacter != ";" || strings.Join(onType.MoreTriggerCharacter, "") != "})]" {
		t.Fatalf("unexpected on-type triggers: %+v", onType)
	}
	if len(caps.ExecuteCommandProvider.Commands) != 1 || caps.ExecuteCommandProvider.Commands[0] != CommandTidy {
		t.Fatalf("unexpected commands: %+v", caps.ExecuteCommandProvider.Commands)
	}
	if result.ServerInfo.Name != "tidyls" {
		t.Fatalf("unexpected server name %q", result.ServerInfo.Name)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	var out bytes.Buffer
	server := NewServer(frame(t, notification("exit", nil)), &out, ServerOptions{Log: io.Discard})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("expected ErrExitWithoutShutdown, got %v", err)
	}
}

func TestUnknownRequest(t *testing.T) {
	msgs := session(t, t.TempDir(), &fakeRunner{}, nil, request(2, "textDocument/hover", map[string]any{}))
	resp := response(t, msgs, 2)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestWorkspaceForPicksInnermostFolder(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "lib")
	server := NewServer(bytes.NewReader(nil), io.Discard, ServerOptions{Log: io.Discard})
	server.folders = []string{root, inner}

	if got := server.workspaceFor(filepath.Join(inner, "A.pm")); got != inner {
		t.Fatalf("expected %q, got %q", inner, got)
	}
	if got := server.workspaceFor(filepath.Join(root, "a.pl")); got != root {
		t.Fatalf("expected %q, got %q", root, got)
	}
	if got := server.workspaceFor(filepath.Join(t.TempDir(), "b.pl")); got != "" {
		t.Fatalf("expected no workspace, got %q", got)
	}
	if got := server.workspaceFor(""); got != "" {
		t.Fatalf("virtual document matched %q", got)
	}
}

func TestDidChangeWorkspaceFolders(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	server := NewServer(bytes.NewReader(nil), io.Discard, ServerOptions{Log: io.Discard})
	server.folders = []string{a}

	params, _ := json.Marshal(map[string]any{
		"event": map[string]any{
			"added":   []workspaceFolder{{URI: pathToURI(b), Name: "b"}},
			"removed": []workspaceFolder{{URI: pathToURI(a), Name: "a"}},
		},
	})
	if err := server.handleDidChangeWorkspaceFolders(&rpcMessage{Params: params}); err != nil {
		t.Fatalf("didChangeWorkspaceFolders: %v", err)
	}
	if len(server.folders) != 1 || server.folders[0] != b {
		t.Fatalf("unexpected folders: %v", server.folders)
	}
}
