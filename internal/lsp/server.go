package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"tidyls/internal/settings"
	"tidyls/internal/tidy"
	"tidyls/internal/trace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// Runner launches perltidy. Nil uses tidy.ExecRunner.
	Runner tidy.Runner
	// Defaults sit below every other configuration layer.
	Defaults settings.Overrides
	// Log receives diagnostic output. Nil means stderr.
	Log     io.Writer
	Version string
}

// Server serves the perltidy formatting providers over stdio JSON-RPC.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex
	mu     sync.Mutex
	log    io.Writer

	openDocs map[string]string
	versions map[string]int
	folders  []string
	inflight map[string]context.CancelFunc
	requests sync.WaitGroup
	nextID   atomic.Int64

	shutdownRequested bool
	baseCtx           context.Context
	version           string

	initOptions *settings.Memory
	live        *settings.Memory
	invoker     *tidy.Invoker
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	logw := opts.Log
	if logw == nil {
		logw = os.Stderr
	}
	s := &Server{
		in:          bufio.NewReader(in),
		out:         bufio.NewWriter(out),
		log:         logw,
		openDocs:    make(map[string]string),
		versions:    make(map[string]int),
		inflight:    make(map[string]context.CancelFunc),
		baseCtx:     context.Background(),
		version:     opts.Version,
		initOptions: &settings.Memory{},
		live:        &settings.Memory{},
	}
	// read per call: later layers win
	chain := settings.Chain{
		settings.Static(opts.Defaults),
		settings.FileSource{},
		s.initOptions,
		s.live,
	}
	s.invoker = tidy.New(tidy.Options{Settings: chain, Runner: opts.Runner})
	return s
}

// Run serves LSP requests until exit or end of input. It waits for
// in-flight formatting requests before returning.
func (s *Server) Run(ctx context.Context) error {
	ctx, span := trace.Start(ctx, trace.ScopeServer, "lsp")
	defer span.End("")
	s.baseCtx = ctx
	defer s.requests.Wait()
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			// responses to our own requests, e.g. workspace/applyEdit
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	s.mu.Lock()
	shuttingDown := s.shutdownRequested
	s.mu.Unlock()
	if shuttingDown && msg.Method != "exit" {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32600, "server is shutting down")
		}
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if shuttingDown {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "$/cancelRequest":
		return s.handleCancel(msg)
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/didChangeWorkspaceFolders":
		return s.handleDidChangeWorkspaceFolders(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/formatting":
		return s.goRequest(msg, s.handleFormatting)
	case "textDocument/rangeFormatting":
		return s.goRequest(msg, s.handleRangeFormatting)
	case "textDocument/onTypeFormatting":
		return s.goRequest(msg, s.handleOnTypeFormatting)
	case "workspace/executeCommand":
		return s.goRequest(msg, s.handleExecuteCommand)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	folders := make([]string, 0, len(params.WorkspaceFolders))
	for _, folder := range params.WorkspaceFolders {
		if path := uriToPath(folder.URI); path != "" {
			folders = append(folders, path)
		}
	}
	if len(folders) == 0 {
		if root := uriToPath(params.RootURI); root != "" {
			folders = append(folders, root)
		} else if params.RootPath != "" {
			folders = append(folders, uriToPath(params.RootPath))
		}
	}
	if o, err := settings.ParseJSON(params.InitializationOptions); err != nil {
		s.logf("ignoring initializationOptions: %v", err)
	} else {
		s.initOptions.Set(o)
	}
	s.mu.Lock()
	s.folders = folders
	s.mu.Unlock()

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
			},
			DocumentFormattingProvider:      true,
			DocumentRangeFormattingProvider: true,
			DocumentOnTypeFormattingProvider: &documentOnTypeFormattingOptions{
				FirstTriggerCharacter: onTypeTriggers[0],
				MoreTriggerCharacter:  onTypeTriggers[1:],
			},
			ExecuteCommandProvider: &executeCommandOptions{
				Commands: []string{CommandTidy},
			},
			Workspace: &workspaceServerCapabilities{
				WorkspaceFolders: workspaceFoldersServerCapabilities{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: serverInfo{Name: "tidyls", Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didOpen: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = params.TextDocument.Text
	s.versions[uri] = params.TextDocument.Version
	s.mu.Unlock()
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChange: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = applyChanges(s.openDocs[uri], params.ContentChanges)
	s.versions[uri] = params.TextDocument.Version
	s.mu.Unlock()
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didClose: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	s.mu.Lock()
	delete(s.openDocs, uri)
	delete(s.versions, uri)
	s.mu.Unlock()
	return nil
}

func (s *Server) handleCancel(msg *rpcMessage) error {
	var params cancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.inflight[string(params.ID)]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// requestHandler serves one request. A nil *rpcError means success.
type requestHandler func(ctx context.Context, params json.RawMessage) (any, *rpcError)

// goRequest runs h on its own goroutine so that the read loop keeps
// draining messages, $/cancelRequest included, while perltidy runs.
func (s *Server) goRequest(msg *rpcMessage, h requestHandler) error {
	if len(msg.ID) == 0 {
		return nil
	}
	key := string(msg.ID)
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.inflight[key] = cancel
	s.mu.Unlock()

	s.requests.Add(1)
	go func() {
		defer s.requests.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
			cancel()
		}()
		ctx, span := trace.Start(ctx, trace.ScopeRequest, msg.Method)
		result, rerr := h(ctx, msg.Params)
		var err error
		if rerr != nil {
			span.Fail(errors.New(rerr.Message))
			err = s.sendError(msg.ID, rerr.Code, rerr.Message)
		} else {
			span.End("")
			err = s.sendResponse(msg.ID, result)
		}
		if err != nil {
			s.logf("%s: failed to reply: %v", msg.Method, err)
		}
	}()
	return nil
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendNotification(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

// sendRequest issues a server-to-client request. Replies are not awaited.
func (s *Server) sendRequest(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("tidyls-%d", s.nextID.Add(1)),
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

func (s *Server) showMessage(kind int, message string) {
	if err := s.sendNotification("window/showMessage", showMessageParams{Type: kind, Message: message}); err != nil {
		s.logf("failed to show message: %v", err)
	}
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "lsp: "+format+"\n", args...)
}
