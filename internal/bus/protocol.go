// Package bus exposes a tts.Manager as NATS request/reply subjects and
// publishes its events.
//
// Subjects, under a configurable prefix:
//
//	<prefix>.initialize    InitializeRequest -> Reply
//	<prefix>.play          SpeakRequest      -> Reply
//	<prefix>.generate      GenerateRequest   -> Reply (result is the file path)
//	<prefix>.deinitialize  {}                -> Reply
//	<prefix>.volume        VolumeUpdate events
//	<prefix>.progress      ProgressEvent events
package bus

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/chunkvoice/tts"
)

// Subject suffixes.
const (
	SubjectInitialize   = "initialize"
	SubjectPlay         = "play"
	SubjectGenerate     = "generate"
	SubjectDeinitialize = "deinitialize"
	SubjectVolume       = "volume"
	SubjectProgress     = "progress"
)

// Subject joins prefix and name.
func Subject(prefix, name string) string {
	return prefix + "." + name
}

// InitializeRequest loads an engine and opens playback.
type InitializeRequest struct {
	SampleRate  float64     `json:"sampleRate"`
	Channels    int         `json:"channels"`
	ModelConfig ModelConfig `json:"modelConfig"`
}

// ModelConfig decodes from either a JSON object or a string holding one.
type ModelConfig tts.ModelConfig

// UnmarshalJSON implements json.Unmarshaler.
func (m *ModelConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = ModelConfig{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = ModelConfig{}
			return nil
		}
		data = []byte(s)
	}
	mc, err := tts.ParseModelConfig(data)
	if err != nil {
		return err
	}
	*m = ModelConfig(mc)
	return nil
}

// SpeakRequest synthesizes text to the speakers.
type SpeakRequest struct {
	Text      string  `json:"text"`
	SpeakerID int     `json:"speakerId"`
	Speed     float64 `json:"speed"`
}

// GenerateRequest synthesizes text to a WAV file.
type GenerateRequest struct {
	Text      string          `json:"text"`
	SpeakerID int             `json:"speakerId"`
	Speed     float64         `json:"speed"`
	Options   tts.SaveOptions `json:"options"`
}

// Reply answers every request. Error is set exactly when OK is false.
type Reply struct {
	OK     bool        `json:"ok"`
	Result string      `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
}

// ReplyError carries the code and message of a failed request.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeBadRequest rejects requests that cannot be decoded.
const CodeBadRequest = "BAD_REQUEST"

func failure(code, message string) Reply {
	return Reply{Error: &ReplyError{Code: code, Message: message}}
}

// ProgressEvent is published before each chunk is synthesized.
type ProgressEvent struct {
	RequestID string `json:"requestId"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Text      string `json:"text"`
}

func replyFor(result string, err error) Reply {
	if err != nil {
		return failure(string(tts.CodeOf(err)), tts.MessageOf(err))
	}
	return Reply{OK: true, Result: result}
}

// Err converts a failed reply back into a *tts.Error.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return &tts.Error{Code: tts.CodeGeneration, Message: "request failed without an error"}
	}
	code := tts.ErrorCode(r.Error.Code)
	if code == "" {
		code = tts.CodeGeneration
	}
	return &tts.Error{Code: code, Message: r.Error.Message}
}

func decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
