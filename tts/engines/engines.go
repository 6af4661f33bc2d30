// Package engines builds the configured synthesis engine.
package engines

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/tts/cache"
	"github.com/dgnsrekt/chunkvoice/tts/engines/mock"
	"github.com/dgnsrekt/chunkvoice/tts/engines/piper"
)

// Engine names accepted in the configuration.
const (
	Piper = "piper"
	Mock  = "mock"
)

// Names lists the available engines.
func Names() []string {
	return []string{Piper, Mock}
}

// Factory returns a tts.EngineFactory for cfg. Model fields left empty by the
// caller fall back to cfg.Model. When disk is non-nil and caching is enabled,
// engines are wrapped with a chunk cache backed by it.
func Factory(cfg tts.Config, disk *cache.DiskCache, logger *log.Logger) tts.EngineFactory {
	if logger == nil {
		logger = log.Default()
	}

	return func(model tts.ModelConfig) (tts.Engine, error) {
		model = MergeModel(model, cfg.Model)

		var (
			engine tts.Engine
			err    error
		)
		switch strings.ToLower(cfg.Engine) {
		case Piper:
			engine, err = piper.New(cfg.Piper, model, logger)
		case Mock:
			engine = mock.New(cfg.Mock)
		default:
			err = fmt.Errorf("unknown engine %q (available: %s)", cfg.Engine, strings.Join(Names(), ", "))
		}
		if err != nil {
			return nil, err
		}

		if !cfg.Cache.Enabled {
			return engine, nil
		}
		return cache.New(engine, cache.Options{
			MemoryEntries: cfg.Cache.MemoryEntries,
			TTL:           cfg.Cache.TTL,
			Disk:          disk,
			Logger:        logger,
		}), nil
	}
}

// MergeModel fills empty fields of model from defaults.
func MergeModel(model, defaults tts.ModelConfig) tts.ModelConfig {
	if model.ModelPath == "" {
		model.ModelPath = defaults.ModelPath
	}
	if model.TokensPath == "" {
		model.TokensPath = defaults.TokensPath
	}
	if model.DataDirPath == "" {
		model.DataDirPath = defaults.DataDirPath
	}
	return model
}

// OpenDiskCache opens the disk tier described by cfg, or returns nil when
// caching is disabled. An empty dir selects defaultDir.
func OpenDiskCache(cfg tts.CacheConfig, defaultDir string) (*cache.DiskCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = defaultDir
	}
	if dir == "" {
		return nil, nil
	}
	return cache.NewDiskCache(dir, int64(cfg.MaxDiskMB)<<20, cfg.CompressionLevel)
}
