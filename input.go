package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/dgnsrekt/chunkvoice/internal/text"
	"golang.org/x/term"
)

var errNoInput = errors.New("no text given: pass it as arguments, with --file, --clipboard or on stdin")

// inputOptions select where text comes from and how it is cleaned.
type inputOptions struct {
	file      string
	clipboard bool
	markdown  bool
	code      bool
}

// readInput returns the text to synthesize. Sources are tried in order:
// clipboard, file, arguments, then stdin when piped is true.
func readInput(args []string, opts inputOptions, stdin io.Reader, piped bool) (string, error) {
	var (
		raw      string
		markdown = opts.markdown
	)

	switch {
	case opts.clipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		raw = s
	case opts.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		raw = string(b)
	case opts.file != "":
		b, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("unable to open file: %w", err)
		}
		raw = string(b)
		markdown = markdown || text.LooksLikeMarkdown(opts.file)
	case len(args) > 0:
		raw = strings.Join(args, " ")
	case piped:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		raw = string(b)
	default:
		return "", errNoInput
	}

	if markdown {
		raw = text.FromMarkdown([]byte(raw), text.Options{IncludeCode: opts.code})
	}
	return text.Normalize(raw), nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// loadInput reads text for a command from the process's own stdin.
func loadInput(args []string, opts inputOptions) (string, error) {
	piped, err := stdinIsPipe()
	if err != nil {
		return "", err
	}
	return readInput(args, opts, os.Stdin, piped)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec
}
