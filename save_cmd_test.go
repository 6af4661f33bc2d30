package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts/wav"
)

func TestPrintSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if _, err := wav.WriteFile(path, make([]float32, 11025), 22050); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printSaved(&out, path); err != nil {
		t.Fatalf("printSaved: %v", err)
	}
	for _, want := range []string{path, "22 kB", "500ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q: %q", want, out.String())
		}
	}
}

func TestWatchFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(file, []byte("one"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, file, func() { changed <- struct{}{} })
	}()

	// Keep writing until the watcher, which starts asynchronously, notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(3 * watchDebounce)
	defer tick.Stop()
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			if err := os.WriteFile(file, []byte("two"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no change reported")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchFile: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchFile did not return after cancel")
	}
}
