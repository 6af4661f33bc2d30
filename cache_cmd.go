package main

import (
	"fmt"
	"io"

	"github.com/dgnsrekt/chunkvoice/tts/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheClear bool

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Show or clear the synthesized chunk cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := chunkCacheDir(cfg.Cache)
			if err != nil {
				return err
			}
			disk, err := cache.NewDiskCache(dir, int64(cfg.Cache.MaxDiskMB)<<20, cfg.Cache.CompressionLevel)
			if err != nil {
				return err
			}
			defer disk.Close() //nolint:errcheck
			return cacheReport(cmd.OutOrStdout(), disk, dir, cacheClear)
		},
	}
)

func init() {
	cacheCmd.Flags().BoolVar(&cacheClear, "clear", false, "delete every cached chunk")
}

func cacheReport(w io.Writer, disk *cache.DiskCache, dir string, wipe bool) error {
	n, size := disk.Len(), disk.Size()
	if wipe {
		if err := disk.Clear(); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		_, err := fmt.Fprintf(w, "Removed %s %s (%s).\n", humanize.Comma(int64(n)), plural(int64(n), "chunk"), humanize.Bytes(uint64(size))) //nolint:gosec
		return err //nolint:wrapcheck
	}

	_, err := fmt.Fprintf(w, "%s\n%s %s, %s on disk\n", faint(dir), humanize.Comma(int64(n)), plural(int64(n), "chunk"), humanize.Bytes(uint64(size))) //nolint:gosec
	if err != nil {
		return err //nolint:wrapcheck
	}
	if ev := disk.Stats().Evictions; ev > 0 {
		_, err = fmt.Fprintf(w, "%s evicted to stay under %d MB\n", humanize.Comma(ev), cfg.Cache.MaxDiskMB)
	}
	return err //nolint:wrapcheck
}
