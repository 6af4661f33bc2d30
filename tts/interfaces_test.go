package tts_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts"
)

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{`{"isSaving": true}`, true, false},
		{`{"isSaving": false}`, false, false},
		{`{"isSaving": 1}`, true, false},
		{`{"isSaving": 0}`, false, false},
		{`{"isSaving": 0.5}`, true, false},
		{`{"isSaving": null}`, false, false},
		{`{}`, false, false},
		{`{"isSaving": "yes"}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var opts tts.SaveOptions
			err := json.Unmarshal([]byte(tt.in), &opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && bool(opts.IsSaving) != tt.want {
				t.Errorf("IsSaving = %v, want %v", opts.IsSaving, tt.want)
			}
		})
	}
}

func TestParseModelConfig(t *testing.T) {
	mc, err := tts.ParseModelConfig([]byte(`{"modelPath":"/m/voice.onnx","tokensPath":"/m/voice.onnx.json","dataDirPath":"/m/espeak"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := tts.ModelConfig{ModelPath: "/m/voice.onnx", TokensPath: "/m/voice.onnx.json", DataDirPath: "/m/espeak"}
	if mc != want {
		t.Errorf("got %+v, want %+v", mc, want)
	}

	if _, err := tts.ParseModelConfig([]byte(`{`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestAudioBufferDuration(t *testing.T) {
	buf := tts.AudioBuffer{Samples: make([]float32, 11025), SampleRate: 22050}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
	if got := (tts.AudioBuffer{Samples: make([]float32, 10)}).Duration(); got != 0 {
		t.Errorf("zero rate Duration = %v", got)
	}
}

func TestVolumeUpdateJSON(t *testing.T) {
	b, err := json.Marshal(tts.VolumeUpdate{Volume: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"volume":0.25}` {
		t.Errorf("got %s", b)
	}
}
