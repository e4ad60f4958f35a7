package matcher

import (
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		patternType PatternType
		opts        *Options
		wantErr     bool
		wantType    PatternType
	}{
		{
			name:        "substring",
			pattern:     "Templates/",
			patternType: Auto,
			wantType:    Substring,
		},
		{
			name:        "valid glob pattern",
			pattern:     "*.excalidraw.md",
			patternType: Auto,
			wantType:    Glob,
		},
		{
			name:        "valid regex pattern",
			pattern:     "/^daily\\/\\d{4}/i",
			patternType: Auto,
			wantType:    Regex,
		},
		{
			name:        "invalid glob pattern",
			pattern:     "notes/[unclosed",
			patternType: Glob,
			wantErr:     true,
		},
		{
			name:        "invalid regex pattern",
			pattern:     "/(unclosed/",
			patternType: Regex,
			wantErr:     true,
		},
		{
			name:        "regex type without delimiters",
			pattern:     "^plain$",
			patternType: Regex,
			wantErr:     true,
		},
		{
			name:        "empty pattern",
			pattern:     "",
			patternType: Auto,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.patternType, tt.pattern, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if m == nil {
				t.Fatal("New() returned nil matcher without error")
			}
			if m.Type() != tt.wantType {
				t.Errorf("Type() = %v, want %v", m.Type(), tt.wantType)
			}
			if m.Pattern() != tt.pattern {
				t.Errorf("Pattern() = %q, want %q", m.Pattern(), tt.pattern)
			}
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		opts    *Options
		input   string
		want    bool
	}{
		{"substring anywhere", "Templates", nil, "Areas/Templates/daily.md", true},
		{"substring miss", "Templates", nil, "Areas/daily.md", false},
		{"substring is case sensitive", "templates", nil, "Templates/a.md", false},
		{"substring case insensitive", "templates", &Options{CaseInsensitive: true}, "Templates/a.md", true},
		{"glob full path", "archive/*.md", nil, "archive/old.md", true},
		{"glob does not cross slashes", "archive/*.md", nil, "archive/2020/old.md", false},
		{"glob on base name", "*.excalidraw.md", nil, "drawings/plan.excalidraw.md", true},
		{"glob character class", "note[0-9].md", nil, "inbox/note5.md", true},
		{"glob no match", "*.canvas", nil, "inbox/note.md", false},
		{"regex", "/^daily\\/\\d{4}-/", nil, "daily/2024-01-01.md", true},
		{"regex no match", "/^daily\\//", nil, "notes/daily/x.md", false},
		{"regex flags", "/^DAILY/i", nil, "daily/x.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(Auto, tt.pattern, tt.opts)
			if err != nil {
				t.Fatalf("Failed to create matcher: %v", err)
			}
			if got := m.Match(tt.input); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatcher_Batch(t *testing.T) {
	m := MustNew(Auto, "*.md")
	inputs := []string{"a.md", "b.canvas", "dir/c.md"}

	if got, want := m.MatchAll(inputs...), []string{"a.md", "dir/c.md"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MatchAll() = %v, want %v", got, want)
	}
	if got := m.MatchFirst("b.canvas", "dir/c.md"); got != "dir/c.md" {
		t.Errorf("MatchFirst() = %q, want %q", got, "dir/c.md")
	}
	if got := m.MatchFirst("b.canvas"); got != "" {
		t.Errorf("MatchFirst() = %q, want empty", got)
	}
	if got := m.MatchCount(inputs...); got != 2 {
		t.Errorf("MatchCount() = %d, want 2", got)
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew() did not panic on an invalid pattern")
		}
	}()
	MustNew(Regex, "/(/")
}

func TestDetectPatternType(t *testing.T) {
	tests := map[string]PatternType{
		"plain":        Substring,
		"dir/file.md":  Substring,
		"*.md":         Glob,
		"file?.md":     Glob,
		"[ab].md":      Glob,
		"/regex/":      Regex,
		"/regex/gi":    Regex,
		"/not a regex": Substring,
	}
	for pattern, want := range tests {
		if got := DetectPatternType(pattern); got != want {
			t.Errorf("DetectPatternType(%q) = %v, want %v", pattern, got, want)
		}
	}
}

func TestPatternType_String(t *testing.T) {
	tests := []struct {
		pt   PatternType
		want string
	}{
		{Substring, "substring"},
		{Glob, "glob"},
		{Regex, "regex"},
		{Auto, "auto"},
		{PatternType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.pt.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestMultiMatcher(t *testing.T) {
	mm, err := NewMultiMatcher([]string{"Templates/", "", "*.excalidraw.md", "/^private\\//"}, Auto)
	if err != nil {
		t.Fatalf("NewMultiMatcher() error = %v", err)
	}
	if mm.Len() != 3 {
		t.Errorf("Len() = %d, want 3", mm.Len())
	}

	tests := []struct {
		input   string
		pattern string
	}{
		{"Templates/meeting.md", "Templates/"},
		{"art/sketch.excalidraw.md", "*.excalidraw.md"},
		{"private/diary.md", "/^private\\//"},
		{"notes/private/diary.md", ""},
	}
	for _, tt := range tests {
		if got := mm.MatchingPattern(tt.input); got != tt.pattern {
			t.Errorf("MatchingPattern(%q) = %q, want %q", tt.input, got, tt.pattern)
		}
		if got := mm.Match(tt.input); got != (tt.pattern != "") {
			t.Errorf("Match(%q) = %v", tt.input, got)
		}
	}

	got := mm.MatchAll("Templates/a.md", "x.md", "Templates/a.md")
	if !reflect.DeepEqual(got, []string{"Templates/a.md"}) {
		t.Errorf("MatchAll() = %v", got)
	}
}

func TestMultiMatcher_Invalid(t *testing.T) {
	if _, err := NewMultiMatcher([]string{"ok", "/(/"}, Auto); err == nil {
		t.Error("NewMultiMatcher() expected error for invalid expression")
	}
}

func TestMultiMatcher_Nil(t *testing.T) {
	var mm *MultiMatcher
	if mm.Match("anything") {
		t.Error("nil MultiMatcher matched")
	}
	if mm.Len() != 0 {
		t.Error("nil MultiMatcher has patterns")
	}
}
