package tts

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of failure reported to callers.
type ErrorCode string

// Error codes surfaced through the command surface.
const (
	CodeEmptyInput     ErrorCode = "EMPTY_TEXT"
	CodeNotInitialized ErrorCode = "E_TTS_NOT_INIT"
	CodeGeneration     ErrorCode = "GENERATION_ERROR"
	CodeWrite          ErrorCode = "E_TTS_GENERATE"
	CodeInit           ErrorCode = "E_TTS_INIT"
)

// Common errors. Match them with errors.Is; any *Error with the same code matches.
var (
	// ErrEmptyInput is returned when the request text is blank.
	ErrEmptyInput = &Error{Code: CodeEmptyInput, Message: "text is empty"}
	// ErrNotInitialized is returned when no engine is loaded.
	ErrNotInitialized = &Error{Code: CodeNotInitialized, Message: "TTS engine is not initialized"}
	// ErrGenerationFailed is returned when the engine fails or produces no audio.
	ErrGenerationFailed = &Error{Code: CodeGeneration, Message: "audio generation failed"}
	// ErrWriteFailed is returned when the output file cannot be written.
	ErrWriteFailed = &Error{Code: CodeWrite, Message: "failed to write audio file"}
	// ErrInitFailed is returned when the engine or sink cannot be created.
	ErrInitFailed = &Error{Code: CodeInit, Message: "failed to initialize TTS"}

	// ErrSinkNotStarted is returned by sinks that receive audio before Start.
	ErrSinkNotStarted = errors.New("audio sink is not started")
	// ErrSinkClosed is returned by sinks that receive audio after Stop.
	ErrSinkClosed = errors.New("audio sink is closed")
)

// Error is a failure with a stable code and a human readable message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// newError builds an error of the given code.
func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// initError wraps an engine or sink setup failure.
func initError(msg string, cause error) *Error {
	return newError(CodeInit, msg, cause)
}

// generationError wraps an engine failure.
func generationError(msg string, cause error) *Error {
	return newError(CodeGeneration, msg, cause)
}

// writeError wraps an output failure.
func writeError(msg string, cause error) *Error {
	return newError(CodeWrite, msg, cause)
}

// CodeOf returns the code carried by err. Errors without one are reported as
// generation failures.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeGeneration
}

// MessageOf returns the message carried by err, or err's text.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
