package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"chat-client/internal/models"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"login", "rooms", "connect"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (%v)", name, cmd, err)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		wantCmd string
		wantArg string
	}{
		{line: "  ", wantCmd: "", wantArg: ""},
		{line: "hello there", wantCmd: "say", wantArg: "hello there"},
		{line: "/join 42", wantCmd: "join", wantArg: "42"},
		{line: "/JOIN  7 ", wantCmd: "join", wantArg: "7"},
		{line: "/quit", wantCmd: "quit", wantArg: ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, arg := parseLine(tt.line)
			if cmd != tt.wantCmd || arg != tt.wantArg {
				t.Fatalf("parseLine(%q) = %q, %q", tt.line, cmd, arg)
			}
		})
	}
}

func TestPrintRooms(t *testing.T) {
	var buf bytes.Buffer
	printRooms(&buf, []models.RoomSummary{
		{RoomID: 1, Name: "general", MemberCount: 3, LastMessage: &models.Message{SenderDisplayName: "Bob", Content: "hi"}},
		{RoomID: 2, Name: "empty"},
	})
	out := buf.String()
	if !strings.Contains(out, "general") || !strings.Contains(out, "Bob: hi") || !strings.Contains(out, "empty") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestFormatMessage(t *testing.T) {
	msg := models.Message{SenderDisplayName: "Bob", Content: "hi", CreatedAt: time.Date(2025, 1, 1, 9, 5, 0, 0, time.Local)}
	if got := formatMessage(msg); got != "[09:05] Bob: hi" {
		t.Fatalf("unexpected format %q", got)
	}
	msg.IsOwn = true
	if got := formatMessage(msg); !strings.Contains(got, "you: hi") {
		t.Fatalf("own messages should be marked, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héll…" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
