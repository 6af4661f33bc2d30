package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/history"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/tts/audio"
	"github.com/dgnsrekt/chunkvoice/tts/cache"
	"github.com/dgnsrekt/chunkvoice/tts/engines"
	gap "github.com/muesli/go-app-paths"
)

// runtime is a Manager together with the stores it was built on.
type runtime struct {
	mgr     *tts.Manager
	history *history.Store
	disk    *cache.DiskCache
	cfg     tts.Config
}

// newRuntime builds a manager for cfg. Playback opens the audio device on
// initialize; without it the manager only renders files.
func newRuntime(ctx context.Context, cfg tts.Config, playback bool, logger *log.Logger) (*runtime, error) {
	dirs, err := tts.ResolveOutputDirs(cfg.Output)
	if err != nil {
		return nil, err
	}

	cacheDir, err := chunkCacheDir(cfg.Cache)
	if err != nil {
		return nil, err
	}
	disk, err := engines.OpenDiskCache(cfg.Cache, cacheDir)
	if err != nil {
		logger.Warn("chunk disk cache unavailable", "err", err)
		disk = nil
	}

	rt := &runtime{disk: disk, cfg: cfg}
	if cfg.History.Enabled {
		if rt.history, err = openHistory(ctx, cfg.History, logger); err != nil {
			logger.Warn("request history unavailable", "err", err)
		}
	}

	opts := tts.ManagerOptions{
		NewEngine:             engines.Factory(cfg, disk, logger),
		Dirs:                  dirs,
		MaxWords:              cfg.MaxWords,
		VolumeEventsPerSecond: cfg.Playback.VolumeEventsPerSecond,
		Logger:                logger,
	}
	if rt.history != nil {
		opts.Recorder = rt.history
	}
	if playback {
		opts.NewSink = sinkFactory(cfg.Playback, logger)
	}
	rt.mgr = tts.NewManager(opts)
	return rt, nil
}

// chunkCacheDir is the configured disk cache directory or the default one
// under the user cache dir.
func chunkCacheDir(cfg tts.CacheConfig) (string, error) {
	if cfg.Dir != "" {
		return cfg.Dir, nil
	}
	dir, err := gap.NewScope(gap.User, tts.AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return filepath.Join(dir, "chunks"), nil
}

func sinkFactory(cfg tts.PlaybackConfig, logger *log.Logger) tts.SinkFactory {
	opts := audio.OptionsFromConfig(cfg, logger)
	return func(format tts.Format, onVolume func(float64)) (tts.Sink, error) {
		p, err := audio.NewPlayer(format, onVolume, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func openHistory(ctx context.Context, cfg tts.HistoryConfig, logger *log.Logger) (*history.Store, error) {
	path := cfg.Path
	if path == "" {
		p, err := gap.NewScope(gap.User, tts.AppName).DataPath("history.db")
		if err != nil {
			return nil, fmt.Errorf("locate data directory: %w", err)
		}
		path = p
	}
	return history.Open(ctx, path, logger)
}

// initialize loads the configured engine with the configured format.
func (rt *runtime) initialize() error {
	return initHint(rt.mgr.Initialize(float64(rt.cfg.SampleRate), rt.cfg.Channels, rt.cfg.Model), configFile)
}

// initHint points setup failures at the config file.
func initHint(err error, path string) error {
	if !errors.Is(err, tts.ErrInitFailed) {
		return err
	}
	return fmt.Errorf("%w\ncheck the engine and model settings in %s (chunkvoice config)", err, path)
}

// Close waits for in-flight requests, bounded by ctx, and releases everything.
func (rt *runtime) Close(ctx context.Context) error {
	errs := []error{rt.mgr.Shutdown(ctx)}
	if rt.history != nil {
		errs = append(errs, rt.history.Close())
	}
	if rt.disk != nil {
		st := rt.disk.Stats()
		log.Debug("chunk disk cache", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
		errs = append(errs, rt.disk.Close())
	}
	return errors.Join(errs...)
}
