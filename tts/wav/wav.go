// Package wav encodes mono float samples as canonical 16-bit PCM WAV files.
package wav

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

const (
	// HeaderSize is the size of a canonical PCM WAV header with no audio.
	HeaderSize = 44
	// DefaultSampleRate is used when a header is requested for a rate of zero.
	DefaultSampleRate = 24000
	// MaxSamples is the largest sample count whose sizes fit the 32-bit
	// RIFF size fields.
	MaxSamples = (math.MaxUint32 - (HeaderSize - 8)) / blockAlign

	formatPCM     = 1
	channels      = 1
	bitsPerSample = 16
	blockAlign    = channels * bitsPerSample / 8

	dirPerm  = 0o755
	filePerm = 0o644
)

var (
	// ErrNotWAV is returned when the input does not start with a RIFF/WAVE header.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")
	// ErrUnsupported is returned for WAV layouts other than PCM16.
	ErrUnsupported = errors.New("wav: unsupported format")
	// ErrTooLong is returned when the audio does not fit a single WAV file.
	ErrTooLong = errors.New("wav: audio exceeds the 4 GiB RIFF limit")
)

// Header describes the fields of a PCM WAV header.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// NewHeader returns the canonical header for n mono PCM16 samples. n must
// not exceed MaxSamples.
func NewHeader(n int, sampleRate int) Header {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return Header{
		AudioFormat:   formatPCM,
		Channels:      channels,
		SampleRate:    uint32(sampleRate),              //nolint:gosec
		ByteRate:      uint32(sampleRate * blockAlign), //nolint:gosec
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		DataSize:      uint32(n * blockAlign), //nolint:gosec
	}
}

// Samples returns the number of frames in the data chunk.
func (h Header) Samples() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize) / int(h.BlockAlign)
}

// Duration returns the playback length described by the header.
func (h Header) Duration() time.Duration {
	if h.SampleRate == 0 {
		return 0
	}
	return time.Duration(h.Samples()) * time.Second / time.Duration(h.SampleRate)
}

// FileSize returns the size of a canonical file carrying this header.
func (h Header) FileSize() int64 {
	return HeaderSize + int64(h.DataSize)
}

// PCM16 converts one float sample to a signed 16-bit value. Samples are
// clamped to [-1, 1] and truncated toward zero after scaling. NaN maps to 0.
func PCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

func checkLength(n int) error {
	if n > MaxSamples {
		return fmt.Errorf("%w: %d samples", ErrTooLong, n)
	}
	return nil
}

// Encode writes a complete WAV stream for samples to w. Sizes are patched
// in when the stream is closed, so w must be seekable.
func Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if err := checkLength(len(samples)); err != nil {
		return err
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(PCM16(s))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitsPerSample,
	}

	enc := gowav.NewEncoder(w, sampleRate, bitsPerSample, channels, formatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: close encoder: %w", err)
	}
	return nil
}

// WriteFile encodes samples to path. The file is written to a temporary name
// in the same directory and renamed into place, so readers of path see either
// the previous file or the complete new one. It returns the size on disk.
func WriteFile(path string, samples []float32, sampleRate int) (int64, error) {
	if err := checkLength(len(samples)); err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("wav: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("wav: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := Encode(tmp, samples, sampleRate); err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("wav: sync: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		cleanup()
		return 0, fmt.Errorf("wav: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("wav: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("wav: rename: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("wav: stat: %w", err)
	}
	return info.Size(), nil
}

// ReadHeader parses the header of a PCM WAV stream. Chunks other than "fmt "
// and "data" are skipped. The reader is left positioned at the first sample.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	d := gowav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrNotWAV, err) //nolint:errorlint
	}
	if d.NumChans == 0 {
		return Header{}, ErrNotWAV
	}
	if d.WavAudioFormat != formatPCM || d.BitDepth != bitsPerSample {
		return Header{}, fmt.Errorf("%w: format %d, %d bits", ErrUnsupported, d.WavAudioFormat, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return Header{}, fmt.Errorf("wav: %q chunk not found: %w", "data", err)
	}

	return Header{
		AudioFormat:   d.WavAudioFormat,
		Channels:      d.NumChans,
		SampleRate:    d.SampleRate,
		ByteRate:      d.AvgBytesPerSec,
		BlockAlign:    d.NumChans * d.BitDepth / 8,
		BitsPerSample: d.BitDepth,
		DataSize:      uint32(d.PCMSize), //nolint:gosec
	}, nil
}

// ReadFileHeader opens path and parses its header.
func ReadFileHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("wav: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return ReadHeader(f)
}
