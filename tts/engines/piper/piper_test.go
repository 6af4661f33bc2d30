package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts"
)

// fakePiper writes a shell script that records its arguments and stdin and
// prints body to stdout.
func fakePiper(t *testing.T, body string) (bin, argsFile, stdinFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	stdinFile = filepath.Join(dir, "stdin")
	bin = filepath.Join(dir, "piper")

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsFile + "\n" +
		"cat > " + stdinFile + "\n" +
		body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile, stdinFile
}

func writeModel(t *testing.T, voiceJSON string) tts.ModelConfig {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(model, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	mc := tts.ModelConfig{ModelPath: model}
	if voiceJSON != "" {
		if err := os.WriteFile(model+".json", []byte(voiceJSON), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return mc
}

func TestNewErrors(t *testing.T) {
	bin, _, _ := fakePiper(t, "")
	model := writeModel(t, "")

	tests := []struct {
		name  string
		cfg   tts.PiperConfig
		model tts.ModelConfig
		kind  string
	}{
		{"empty command", tts.PiperConfig{Command: ""}, model, KindDependency},
		{"unbalanced quotes", tts.PiperConfig{Command: `"piper`}, model, KindDependency},
		{"missing binary", tts.PiperConfig{Command: "definitely-not-piper-xyz"}, model, KindDependency},
		{"no model", tts.PiperConfig{Command: bin}, tts.ModelConfig{}, KindModel},
		{"missing model", tts.PiperConfig{Command: bin}, tts.ModelConfig{ModelPath: "/nope/voice.onnx"}, KindModel},
		{"bad voice config", tts.PiperConfig{Command: bin}, tts.ModelConfig{ModelPath: model.ModelPath, TokensPath: bin}, KindModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.model, nil)
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if pe.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", pe.Kind, tt.kind)
			}
		})
	}
}

func TestNewReadsVoiceConfig(t *testing.T) {
	bin, _, _ := fakePiper(t, "")
	model := writeModel(t, `{"audio": {"sample_rate": 16000}, "num_speakers": 4}`)

	e, err := New(tts.PiperConfig{Command: bin}, model, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.SampleRate() != 16000 {
		t.Errorf("rate = %d", e.SampleRate())
	}
	if e.model.TokensPath != model.ModelPath+".json" {
		t.Errorf("tokens path = %q", e.model.TokensPath)
	}
	if e.Name() != "piper:voice.onnx" {
		t.Errorf("name = %q", e.Name())
	}
}

func TestCacheIdentity(t *testing.T) {
	bin, _, _ := fakePiper(t, "")
	a := writeModel(t, "")
	b := writeModel(t, "")
	if filepath.Base(a.ModelPath) != filepath.Base(b.ModelPath) {
		t.Fatal("fixture models should share a file name")
	}

	ea, err := New(tts.PiperConfig{Command: bin}, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := New(tts.PiperConfig{Command: bin}, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ea.Name() != eb.Name() {
		t.Fatalf("names differ: %q, %q", ea.Name(), eb.Name())
	}
	if ea.CacheIdentity() == eb.CacheIdentity() {
		t.Error("voices in different directories share a cache identity")
	}

	noisy, err := New(tts.PiperConfig{Command: bin, NoiseScale: 0.5}, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if noisy.CacheIdentity() == ea.CacheIdentity() {
		t.Error("noise settings are not part of the cache identity")
	}

	withData := a
	withData.DataDirPath = t.TempDir()
	ed, err := New(tts.PiperConfig{Command: bin}, withData, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ed.CacheIdentity() == ea.CacheIdentity() {
		t.Error("data dir is not part of the cache identity")
	}
}

func TestArgs(t *testing.T) {
	e := &Engine{
		argv: []string{"/bin/piper", "--cuda"},
		model: tts.ModelConfig{
			ModelPath:   "/m/voice.onnx",
			TokensPath:  "/m/voice.onnx.json",
			DataDirPath: "/m/espeak-ng-data",
		},
		cfg:      tts.PiperConfig{NoiseScale: 0.667, NoiseW: 0.8},
		speakers: 2,
	}

	got := e.args(1, 2)
	want := []string{
		"--cuda",
		"--model", "/m/voice.onnx", "--output-raw",
		"--config", "/m/voice.onnx.json",
		"--espeak_data", "/m/espeak-ng-data",
		"--speaker", "1",
		"--length_scale", "0.5",
		"--noise_scale", "0.667",
		"--noise_w", "0.8",
	}
	if !slices.Equal(got, want) {
		t.Errorf("args =\n%q\nwant\n%q", got, want)
	}

	e.speakers = 1
	e.cfg = tts.PiperConfig{}
	got = e.args(3, 1)
	if slices.Contains(got, "--speaker") || slices.Contains(got, "--length_scale") {
		t.Errorf("single speaker at normal speed: %q", got)
	}
}

func TestSynthesize(t *testing.T) {
	// Two samples: 0x4000 (0.5) and 0xC000 (-0.5).
	bin, argsFile, stdinFile := fakePiper(t, `printf '\000\100\000\300'`)
	model := writeModel(t, `{"audio": {"sample_rate": 22050}}`)

	e, err := New(tts.PiperConfig{Command: bin + " --quiet", Timeout: 5 * time.Second}, model, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	buf, err := e.Synthesize(context.Background(), "Hello there.", 0, 1)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.SampleRate != 22050 || len(buf.Samples) != 2 {
		t.Fatalf("buf = %+v", buf)
	}
	if buf.Samples[0] != 0.5 || buf.Samples[1] != -0.5 {
		t.Errorf("samples = %v", buf.Samples)
	}

	stdin, _ := os.ReadFile(stdinFile)
	if string(stdin) != "Hello there.\n" {
		t.Errorf("stdin = %q", stdin)
	}
	args, _ := os.ReadFile(argsFile)
	if !strings.HasPrefix(string(args), "--quiet\n--model\n") {
		t.Errorf("args = %q", args)
	}
}

func TestSynthesizeEmptyOutput(t *testing.T) {
	bin, _, _ := fakePiper(t, "")
	e, err := New(tts.PiperConfig{Command: bin}, writeModel(t, ""), nil)
	if err != nil {
		t.Fatal(err)
	}

	buf, err := e.Synthesize(context.Background(), "...", 0, 1)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.Len() != 0 || buf.SampleRate != DefaultSampleRate {
		t.Errorf("buf = %+v", buf)
	}
}

func TestSynthesizeFailure(t *testing.T) {
	bin, _, _ := fakePiper(t, "echo 'voice exploded' >&2\nexit 3")
	e, err := New(tts.PiperConfig{Command: bin}, writeModel(t, ""), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Synthesize(context.Background(), "hi", 0, 1)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindProcess {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(pe.Message, "voice exploded") {
		t.Errorf("message = %q", pe.Message)
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	bin, _, _ := fakePiper(t, "sleep 5")
	e, err := New(tts.PiperConfig{Command: bin, Timeout: 50 * time.Millisecond}, writeModel(t, ""), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Synthesize(context.Background(), "hi", 0, 1)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindTimeout {
		t.Fatalf("err = %v", err)
	}
}

func TestSynthesizeAfterClose(t *testing.T) {
	bin, _, _ := fakePiper(t, "")
	e, err := New(tts.PiperConfig{Command: bin}, writeModel(t, ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = e.Close()

	_, err = e.Synthesize(context.Background(), "hi", 0, 1)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindClosed {
		t.Fatalf("err = %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	if tb.String() != "defg" {
		t.Errorf("got %q", tb.String())
	}
}
