package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Engine is shown in the header, e.g. "piper:en_US-amy-medium".
	Engine string
	// Mode is tts.ModePlay or tts.ModeFile.
	Mode string
	// HideText suppresses the current chunk's text.
	HideText bool
	// MaxWidth caps the rendered width. Zero uses the terminal width.
	MaxWidth int
}
