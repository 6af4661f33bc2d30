//go:build nocgo

package audio

import (
	"context"
	"errors"

	"github.com/dgnsrekt/chunkvoice/tts"
)

// ErrUnavailable is returned by builds without audio output support.
var ErrUnavailable = errors.New("audio output not available in nocgo build")

// Player is unavailable without cgo.
type Player struct{}

// NewPlayer always fails in nocgo builds.
func NewPlayer(tts.Format, func(float64), Options) (*Player, error) {
	return nil, ErrUnavailable
}

func (*Player) Start() error                                   { return ErrUnavailable }
func (*Player) Enqueue(context.Context, tts.AudioBuffer) error { return ErrUnavailable }
func (*Player) Drain(context.Context) error                    { return ErrUnavailable }
func (*Player) Stop() error                                    { return nil }
