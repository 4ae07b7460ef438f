package lsp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestJSONRPCFramingMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msg1 := []byte(`{"jsonrpc":"2.0","method":"one"}`)
	msg2 := []byte(`{"jsonrpc":"2.0","method":"two"}`)

	if err := writeMessage(&buf, msg1); err != nil {
		t.Fatalf("write message 1: %v", err)
	}
	if err := writeMessage(&buf, msg2); err != nil {
		t.Fatalf("write message 2: %v", err)
	}

	reader := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	got1, err := readMessage(reader)
	if err != nil {
		t.Fatalf("read message 1: %v", err)
	}
	got2, err := readMessage(reader)
	if err != nil {
		t.Fatalf("read message 2: %v", err)
	}
	if string(got1) != string(msg1) || string(got2) != string(msg2) {
		t.Fatalf("unexpected messages: %s / %s", got1, got2)
	}
	if _, err := readMessage(reader); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after last message, got %v", err)
	}
}

func TestJSONRPCHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0"}`
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "content type", raw: "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 17\r\n\r\n" + body},
		{name: "lowercase", raw: "content-length: 17\r\n\r\n" + body},
		{name: "malformed line skipped", raw: "garbage without colon\r\nContent-Length: 17\r\n\r\n" + body},
		{name: "missing length", raw: "Content-Type: x\r\n\r\n" + body, wantErr: true},
		{name: "bad length", raw: "Content-Length: abc\r\n\r\n" + body, wantErr: true},
		{name: "truncated body", raw: "Content-Length: 40\r\n\r\n" + body, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readMessage(bufio.NewReader(strings.NewReader(tt.raw)))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readMessage: %v", err)
			}
			if string(got) != body {
				t.Fatalf("unexpected payload %q", got)
			}
		})
	}
}
