package lsp

import (
	"encoding/json"
	"slices"
	"strings"

	"tidyls/internal/settings"
)

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.applySettings(params.Settings)
	return nil
}

// applySettings replaces the live layer. Invalid payloads keep the previous
// values and are reported to the user.
func (s *Server) applySettings(raw json.RawMessage) {
	o, err := settings.ParseJSON(raw)
	if err != nil {
		s.logf("didChangeConfiguration: %v", err)
		s.showMessage(messageTypeWarning, "perltidy-more: ignoring settings: "+err.Error())
		return
	}
	s.live.Set(o)
}

func (s *Server) handleDidChangeWorkspaceFolders(msg *rpcMessage) error {
	var params didChangeWorkspaceFoldersParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChangeWorkspaceFolders: %v", err)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, folder := range params.Event.Removed {
		path := uriToPath(folder.URI)
		s.folders = slices.DeleteFunc(s.folders, func(f string) bool { return f == path })
	}
	for _, folder := range params.Event.Added {
		path := uriToPath(folder.URI)
		if path != "" && !slices.Contains(s.folders, path) {
			s.folders = append(s.folders, path)
		}
	}
	return nil
}

// workspaceFor returns the innermost workspace folder holding path, or "".
func (s *Server) workspaceFor(path string) string {
	if path == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	best := ""
	for _, folder := range s.folders {
		if within(folder, path) && len(folder) > len(best) {
			best = folder
		}
	}
	return best
}

// isTrigger reports whether ch is one of the on-type trigger characters.
func isTrigger(ch string) bool {
	return slices.Contains(onTypeTriggers, strings.TrimSpace(ch))
}
