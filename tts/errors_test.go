package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorCodes pins the codes reported to callers.
func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code ErrorCode
		text string
	}{
		{"empty input", ErrEmptyInput, "EMPTY_TEXT", "text is empty"},
		{"not initialized", ErrNotInitialized, "E_TTS_NOT_INIT", "TTS engine is not initialized"},
		{"generation", ErrGenerationFailed, "GENERATION_ERROR", "audio generation failed"},
		{"write", ErrWriteFailed, "E_TTS_GENERATE", "failed to write audio file"},
		{"init", ErrInitFailed, "E_TTS_INIT", "failed to initialize TTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %q, want %q", tt.err.Code, tt.code)
			}
			if want := string(tt.code) + ": " + tt.text; tt.err.Error() != want {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), want)
			}
		})
	}
}

// TestErrorIs verifies that errors match by code, not identity.
func TestErrorIs(t *testing.T) {
	cause := errors.New("disk full")
	err := writeError("could not write out.wav", cause)

	if !errors.Is(err, ErrWriteFailed) {
		t.Error("writeError should match ErrWriteFailed")
	}
	if errors.Is(err, ErrGenerationFailed) {
		t.Error("writeError should not match ErrGenerationFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}

	wrapped := fmt.Errorf("request r1: %w", generationError("chunk 2 of 3", nil))
	if !errors.Is(wrapped, ErrGenerationFailed) {
		t.Error("wrapped generation error should still match")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"typed", ErrNotInitialized, CodeNotInitialized},
		{"wrapped", fmt.Errorf("outer: %w", ErrEmptyInput), CodeEmptyInput},
		{"plain", errors.New("boom"), CodeGeneration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(nil); got != "" {
		t.Errorf("nil: %q", got)
	}
	if got := MessageOf(ErrEmptyInput); got != "text is empty" {
		t.Errorf("typed: %q", got)
	}
	got := MessageOf(generationError("chunk 1 of 2", errors.New("exit status 1")))
	if !strings.Contains(got, "chunk 1 of 2") || !strings.Contains(got, "exit status 1") {
		t.Errorf("with cause: %q", got)
	}
	if got := MessageOf(errors.New("boom")); got != "boom" {
		t.Errorf("plain: %q", got)
	}
}
