// Package text prepares user input for synthesis.
package text

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// Options controls markdown extraction.
type Options struct {
	// IncludeCode reads code blocks aloud instead of skipping them.
	IncludeCode bool
}

var md = goldmark.New()

// FromMarkdown returns the readable prose in a markdown document. Each block
// becomes one sentence: blocks without closing punctuation get a period.
func FromMarkdown(src []byte, opts Options) string {
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			var b strings.Builder
			writeInline(&b, n, src)
			blocks = appendBlock(blocks, b.String())
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if opts.IncludeCode {
				blocks = appendBlock(blocks, string(linesOf(n, src)))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(blocks, " ")
}

func writeInline(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.Label(src))
		case *ast.RawHTML:
		default:
			writeInline(b, c, src)
		}
	}
}

func linesOf(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
		buf.WriteByte(' ')
	}
	return buf.Bytes()
}

func appendBlock(blocks []string, s string) []string {
	s = Normalize(s)
	if s == "" {
		return blocks
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if !strings.ContainsRune(".!?:;,", last) {
		s += "."
	}
	return append(blocks, s)
}

// Normalize composes s to NFC, drops control characters and collapses runs
// of whitespace to single spaces.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// LooksLikeMarkdown reports whether path names a markdown file.
func LooksLikeMarkdown(path string) bool {
	p := strings.ToLower(path)
	for _, ext := range []string{".md", ".markdown", ".mdown", ".mkd"} {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}
