package audio

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
)

// Options tunes a Player.
type Options struct {
	// Buffer is the device buffer length. Zero picks a platform default.
	Buffer time.Duration
	// MaxQueued bounds how much audio Enqueue accepts ahead of playback.
	// Zero means unbounded.
	MaxQueued time.Duration
	Logger    *log.Logger
}

// OptionsFromConfig maps the playback section of the configuration.
func OptionsFromConfig(cfg tts.PlaybackConfig, logger *log.Logger) Options {
	return Options{
		Buffer:    cfg.Buffer,
		MaxQueued: cfg.MaxQueued,
		Logger:    logger,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// samplesFor returns the number of interleaved samples in d at format.
func samplesFor(d time.Duration, format tts.Format) int {
	if d <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(format.SampleRate*max(1, format.Channels)))
}
