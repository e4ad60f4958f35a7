package coerce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/propsync/pkg/coerce"
)

func TestParseMarkdownList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"markers", "- a\n* b\n+ c\n1. d\nnot an item\n\n10. e", []string{"a", "b", "c", "d", "e"}},
		{"indented", "  - a\n\t- b", []string{"a", "b"}},
		{"dash without space", "-a\n- b", []string{"b"}},
		{"plain text", "  solo  ", nil},
		{"prose around items", "Intro\n- kept\nOutro", []string{"kept"}},
		{"empty", "   \n ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerce.ParseMarkdownList(tt.in))
		})
	}
}

func TestRewriteMarkdownLink(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[Note](note.md)", "[[note|Note]]"},
		{"[note](note.md)", "[[note]]"},
		{"[](note)", "[[note]]"},
		{"[a](my%20note.md)", "[[my note|a]]"},
		{"[site](https://example.com)", "[site](https://example.com)"},
		{"[abs](/tmp/a.md)", "[abs](/tmp/a.md)"},
		{"[n](obsidian://open?vault=v&file=dir%2Fmy%20note)", "[[dir/my note|n]]"},
		{"[n](obsidian://dir/note.md)", "[[dir/note|n]]"},
		{"plain text", "plain text"},
		{"[[already]]", "[[already]]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, coerce.RewriteMarkdownLink(tt.in, "obsidian://"))
		})
	}
}
