package tui

import (
	"testing"
	"time"
)

func TestProcessKey_SingleKeys(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantAction string
		wantCount  int
	}{
		{"j moves down", "j", "move_down", 1},
		{"k moves up", "k", "move_up", 1},
		{"G goes to bottom", "G", "go_bottom", 1},
		{"/ starts search", "/", "search_start", 1},
		{"n next search", "n", "search_next", 1},
		{"N prev search", "N", "search_prev", 1},
		{"f starts filter", "f", "filter_start", 1},
		{"F clears filter", "F", "filter_clear", 1},
		{"q quits", "q", "quit", 1},
		{"y yanks event", "y", "yank", 1},
		{"e exports", "e", "export", 1},
		{"r toggles raw", "r", "toggle_raw", 1},
		{"t toggles compact", "t", "toggle_compact", 1},
		{"T toggles timestamp", "T", "toggle_timestamp", 1},
		{"? toggles help", "?", "toggle_help", 1},
		{"p pauses", "p", "pause_toggle", 1},
		{"space pauses", " ", "pause_toggle", 1},
		{"c clears", "c", "clear", 1},
		{"b goes back", "b", "back", 1},
		{"H resizes left", "H", "resize_left", 1},
		{"L resizes right", "L", "resize_right", 1},
		{"m toggles bookmark", "m", "bookmark_toggle", 1},
		{"' next bookmark", "'", "bookmark_next", 1},
		{"s toggles tracing", "s", "trace_toggle", 1},
		{"C clears trace", "C", "trace_clear", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVimKeyState()
			result := v.ProcessKey(tt.key)
			if result.Action != tt.wantAction {
				t.Errorf("ProcessKey(%q).Action = %q, want %q", tt.key, result.Action, tt.wantAction)
			}
			if result.Count != tt.wantCount {
				t.Errorf("ProcessKey(%q).Count = %d, want %d", tt.key, result.Count, tt.wantCount)
			}
		})
	}
}

func TestProcessKey_MultiKeySequences(t *testing.T) {
	v := NewVimKeyState()

	result := v.ProcessKey("g")
	if result.Action != "pending" {
		t.Fatalf("first g should be pending, got %q", result.Action)
	}

	result = v.ProcessKey("g")
	if result.Action != "go_top" {
		t.Errorf("gg should go_top, got %q", result.Action)
	}
}

func TestProcessKey_NumericPrefix(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		wantAction string
		wantCount  int
	}{
		{"5j moves 5 down", []string{"5", "j"}, "move_down", 5},
		{"12k moves 12 up", []string{"1", "2", "k"}, "move_up", 12},
		{"3g then g goes top", []string{"3", "g", "g"}, "go_top", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVimKeyState()
			var result VimKeyResult
			for _, key := range tt.keys {
				result = v.ProcessKey(key)
			}
			if result.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", result.Action, tt.wantAction)
			}
			if result.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", result.Count, tt.wantCount)
			}
		})
	}
}

func TestProcessKey_InvalidSequenceResets(t *testing.T) {
	v := NewVimKeyState()

	v.ProcessKey("g")
	result := v.ProcessKey("x")
	if result.Action != "" {
		t.Errorf("gx should produce no action, got %q", result.Action)
	}
	if v.GetPending() != "" {
		t.Errorf("pending keys should be cleared, got %q", v.GetPending())
	}

	// Handler recovers after the bad sequence
	result = v.ProcessKey("j")
	if result.Action != "move_down" {
		t.Errorf("j after reset should move_down, got %q", result.Action)
	}
}

func TestProcessKey_TimeoutResetsState(t *testing.T) {
	v := NewVimKeyState()

	v.ProcessKey("g")
	v.lastKeyTime = time.Now().Add(-keyTimeout - time.Millisecond)

	result := v.ProcessKey("j")
	if result.Action != "move_down" {
		t.Errorf("j after timeout should move_down, got %q", result.Action)
	}
}

func TestProcessKey_ZeroIsNotPrefixFirst(t *testing.T) {
	v := NewVimKeyState()

	// A leading 0 is not a numeric prefix
	result := v.ProcessKey("0")
	if result.Action == "pending" {
		t.Errorf("leading 0 should not start a count")
	}

	// But 10j counts to 10
	v.Reset()
	v.ProcessKey("1")
	v.ProcessKey("0")
	result = v.ProcessKey("j")
	if result.Count != 10 {
		t.Errorf("10j Count = %d, want 10", result.Count)
	}
}
