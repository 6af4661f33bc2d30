package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chunkvoice/internal/history"
	"github.com/dgnsrekt/chunkvoice/tts"
)

func TestPrintHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []tts.Record{
		{
			Mode: tts.ModeFile, Chunks: 3, SampleRate: 22050, Samples: 44100,
			Path: "/music/greeting.wav", StartedAt: now.Add(-time.Minute), Elapsed: 1500 * time.Millisecond,
		},
		{
			Mode: tts.ModePlay, Code: tts.CodeNotInitialized, Message: "TTS not initialized",
			StartedAt: now.Add(-2 * time.Hour),
		},
	}
	sum := history.Summary{Requests: 2, Failed: 1, Audio: 2 * time.Second}

	var out bytes.Buffer
	if err := printHistory(&out, records, sum, now); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	for _, want := range []string{
		"/music/greeting.wav", "2s", "1.5s", "1 minute ago",
		"E_TTS_NOT_INIT", "2 hours ago", "2 requests, 1 failed",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := printHistory(&out, nil, history.Summary{}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No requests yet.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPlural(t *testing.T) {
	if plural(1, "request") != "request" || plural(0, "request") != "requests" || plural(5, "request") != "requests" {
		t.Error("plural")
	}
}
