package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts/wav"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.wav",
	Short: "Print the header of a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd.OutOrStdout(), args[0])
	},
}

func inspect(w io.Writer, path string) error {
	h, err := wav.ReadFileHeader(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to stat %s: %w", path, err)
	}

	rows := []struct{ key, value string }{
		{"format", fmt.Sprintf("PCM %d-bit, %d channel(s)", h.BitsPerSample, h.Channels)},
		{"sample rate", fmt.Sprintf("%d Hz", h.SampleRate)},
		{"byte rate", humanize.Bytes(uint64(h.ByteRate)) + "/s"},
		{"samples", humanize.Comma(int64(h.Samples()))},
		{"duration", h.Duration().Round(time.Millisecond).String()},
		{"data", humanize.Bytes(uint64(h.DataSize))},
		{"file", humanize.Bytes(uint64(info.Size()))}, //nolint:gosec
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%12s  %s\n", keyword(r.key), r.value); err != nil {
			return err //nolint:wrapcheck
		}
	}

	if msg := sizeCheck(h, info.Size()); msg != "" {
		_, err := fmt.Fprintln(w, failure("warning: "+msg))
		return err //nolint:wrapcheck
	}
	return nil
}

// sizeCheck reports a file that is shorter than its header claims.
func sizeCheck(h wav.Header, size int64) string {
	if size < h.FileSize() {
		return fmt.Sprintf("file is truncated: header promises %d data bytes, file holds %d bytes", h.DataSize, size)
	}
	return ""
}
