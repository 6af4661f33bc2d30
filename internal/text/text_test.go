package text

import "testing"

func TestFromMarkdown(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want string
	}{
		{
			name: "heading and paragraph",
			src:  "# Title\n\nSome *emphasis* and `code` here.\n",
			want: "Title. Some emphasis and code here.",
		},
		{
			name: "soft breaks join",
			src:  "first line\nsecond line\n",
			want: "first line second line.",
		},
		{
			name: "links and images",
			src:  "See [the docs](https://example.com) and ![a cat](cat.png)!\n",
			want: "See the docs and a cat!",
		},
		{
			name: "list items",
			src:  "- one\n- two,\n- three?\n",
			want: "one. two, three?",
		},
		{
			name: "code skipped",
			src:  "Before.\n\n```go\nfmt.Println(1)\n```\n\nAfter.\n",
			want: "Before. After.",
		},
		{
			name: "code included",
			src:  "```\nmake build\n```\n",
			opts: Options{IncludeCode: true},
			want: "make build.",
		},
		{
			name: "html dropped",
			src:  "<div>hidden</div>\n\nShown <b>bold</b> text\n",
			want: "Shown bold text.",
		},
		{
			name: "empty",
			src:  "\n\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromMarkdown([]byte(tt.src), tt.opts); got != tt.want {
				t.Errorf("FromMarkdown() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a \t b\n\nc ", "a b c"},
		{"café", "café"},
		{"bell\x07 ring", "bell ring"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLooksLikeMarkdown(t *testing.T) {
	for path, want := range map[string]bool{
		"README.md":     true,
		"notes.MARKDOWN": true,
		"story.txt":     false,
		"md":            false,
	} {
		if got := LooksLikeMarkdown(path); got != want {
			t.Errorf("LooksLikeMarkdown(%q) = %v", path, got)
		}
	}
}
