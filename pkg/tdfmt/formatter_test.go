// Copyright 2024-2026 Aiku AI

package tdfmt

import (
	"testing"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

func TestFromMarkdownPlainText(t *testing.T) {
	t.Parallel()
	ft := FromMarkdown("hello world")
	if ft.Text != "hello world" {
		t.Errorf("Text: got %q", ft.Text)
	}
	if ft.Entities != nil {
		t.Errorf("plain text should have no entities, got %v", ft.Entities)
	}
}

func TestFromMarkdownEntities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		wantText string
		want     []tdproto.TextEntity
	}{
		{
			name:     "bold",
			input:    "**hello** world",
			wantText: "hello world",
			want:     []tdproto.TextEntity{{Offset: 0, Length: 5, Type: tdproto.TextEntityType{Type: tdproto.EntityBold}}},
		},
		{
			name:     "italic",
			input:    "say _hi_ now",
			wantText: "say hi now",
			want:     []tdproto.TextEntity{{Offset: 4, Length: 2, Type: tdproto.TextEntityType{Type: tdproto.EntityItalic}}},
		},
		{
			name:     "snake case untouched",
			input:    "snake_case_name",
			wantText: "snake_case_name",
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			wantText: "gone",
			want:     []tdproto.TextEntity{{Offset: 0, Length: 4, Type: tdproto.TextEntityType{Type: tdproto.EntityStrikethrough}}},
		},
		{
			name:     "inline code shadows bold",
			input:    "run `**x**`",
			wantText: "run **x**",
			want:     []tdproto.TextEntity{{Offset: 4, Length: 5, Type: tdproto.TextEntityType{Type: tdproto.EntityCode}}},
		},
		{
			name:     "code block with language",
			input:    "```go\nfmt.Println()\n```",
			wantText: "fmt.Println()\n",
			want: []tdproto.TextEntity{{Offset: 0, Length: 14, Type: tdproto.TextEntityType{
				Type: tdproto.EntityPreCode, Language: "go",
			}}},
		},
		{
			name:     "safe link",
			input:    "see [docs](https://example.com)",
			wantText: "see docs",
			want: []tdproto.TextEntity{{Offset: 4, Length: 4, Type: tdproto.TextEntityType{
				Type: tdproto.EntityTextURL, URL: "https://example.com",
			}}},
		},
		{
			name:     "unsafe link keeps text only",
			input:    "[click](javascript:alert(1))",
			wantText: "click)",
		},
		{
			name:     "utf16 offsets after emoji",
			input:    "a 😀 **b**",
			wantText: "a 😀 b",
			want:     []tdproto.TextEntity{{Offset: 5, Length: 1, Type: tdproto.TextEntityType{Type: tdproto.EntityBold}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ft := FromMarkdown(tt.input)
			if ft.Text != tt.wantText {
				t.Errorf("Text: got %q, want %q", ft.Text, tt.wantText)
			}
			if len(ft.Entities) != len(tt.want) {
				t.Fatalf("Entities: got %v, want %v", ft.Entities, tt.want)
			}
			for i := range tt.want {
				if ft.Entities[i] != tt.want[i] {
					t.Errorf("entity %d: got %+v, want %+v", i, ft.Entities[i], tt.want[i])
				}
			}
		})
	}
}

func TestToMarkdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   tdproto.FormattedText
		want string
	}{
		{
			name: "no entities",
			in:   tdproto.FormattedText{Text: "plain"},
			want: "plain",
		},
		{
			name: "bold and italic",
			in: tdproto.FormattedText{Text: "bold and it", Entities: []tdproto.TextEntity{
				{Offset: 9, Length: 2, Type: tdproto.TextEntityType{Type: tdproto.EntityItalic}},
				{Offset: 0, Length: 4, Type: tdproto.TextEntityType{Type: tdproto.EntityBold}},
			}},
			want: "**bold** and _it_",
		},
		{
			name: "text url",
			in: tdproto.FormattedText{Text: "docs", Entities: []tdproto.TextEntity{
				{Offset: 0, Length: 4, Type: tdproto.TextEntityType{Type: tdproto.EntityTextURL, URL: "https://example.com"}},
			}},
			want: "[docs](https://example.com)",
		},
		{
			name: "overlapping entity dropped",
			in: tdproto.FormattedText{Text: "abcdef", Entities: []tdproto.TextEntity{
				{Offset: 0, Length: 4, Type: tdproto.TextEntityType{Type: tdproto.EntityBold}},
				{Offset: 2, Length: 4, Type: tdproto.TextEntityType{Type: tdproto.EntityItalic}},
			}},
			want: "**abcd**ef",
		},
		{
			name: "out of range entity dropped",
			in: tdproto.FormattedText{Text: "abc", Entities: []tdproto.TextEntity{
				{Offset: 1, Length: 10, Type: tdproto.TextEntityType{Type: tdproto.EntityBold}},
			}},
			want: "abc",
		},
		{
			name: "surrogate pairs",
			in: tdproto.FormattedText{Text: "😀 hi", Entities: []tdproto.TextEntity{
				{Offset: 3, Length: 2, Type: tdproto.TextEntityType{Type: tdproto.EntityCode}},
			}},
			want: "😀 `hi`",
		},
		{
			name: "pre code",
			in: tdproto.FormattedText{Text: "x := 1", Entities: []tdproto.TextEntity{
				{Offset: 0, Length: 6, Type: tdproto.TextEntityType{Type: tdproto.EntityPreCode, Language: "go"}},
			}},
			want: "```go\nx := 1\n```",
		},
		{
			name: "unknown entity keeps text",
			in: tdproto.FormattedText{Text: "@someone", Entities: []tdproto.TextEntity{
				{Offset: 0, Length: 8, Type: tdproto.TextEntityType{Type: "textEntityTypeMention"}},
			}},
			want: "@someone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ToMarkdown(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"**bold** text",
		"a `code` span",
		"~~strike~~ and _italic_",
		"[link](https://example.com) here",
		"```\nblock\n```",
	}
	for _, in := range inputs {
		if got := ToMarkdown(FromMarkdown(in)); got != in {
			t.Errorf("round trip %q: got %q", in, got)
		}
	}
}
