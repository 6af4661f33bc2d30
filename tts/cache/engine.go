package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Options configures an Engine.
type Options struct {
	// MemoryEntries bounds the memory tier. Zero means unbounded.
	MemoryEntries int
	// TTL expires memory entries. Zero keeps them until evicted.
	TTL time.Duration
	// Disk, if set, is the persistent tier.
	Disk   *DiskCache
	Logger *log.Logger
}

// Identity is implemented by engines whose output depends on more than their
// name. CacheIdentity must change whenever the audio for the same text would.
type Identity interface {
	CacheIdentity() string
}

// Engine wraps a tts.Engine and serves repeated chunks from cache. Empty
// results and errors are never cached.
type Engine struct {
	inner  tts.Engine
	id     string
	memory *ttlcache.Cache[string, tts.AudioBuffer]
	disk   *DiskCache
	logger *log.Logger

	mu      sync.Mutex
	stats   map[Level]int64
	lookups metric.Int64Counter
}

// New wraps inner.
func New(inner tts.Engine, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	cacheOpts := []ttlcache.Option[string, tts.AudioBuffer]{
		ttlcache.WithTTL[string, tts.AudioBuffer](opts.TTL),
	}
	if opts.MemoryEntries > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, tts.AudioBuffer](uint64(opts.MemoryEntries)))
	}
	memory := ttlcache.New(cacheOpts...)
	go memory.Start()

	id := inner.Name()
	if v, ok := inner.(Identity); ok {
		id = v.CacheIdentity()
	}

	e := &Engine{
		inner:  inner,
		id:     id,
		memory: memory,
		disk:   opts.Disk,
		logger: opts.Logger.WithPrefix("cache"),
		stats:  make(map[Level]int64),
	}

	lookups, err := otel.Meter("github.com/dgnsrekt/chunkvoice/tts/cache").Int64Counter("chunkvoice.cache.lookups",
		metric.WithDescription("Chunk cache lookups by the tier that served them"))
	if err != nil {
		e.logger.Warn("failed to create metric", "name", "chunkvoice.cache.lookups", "err", err)
	}
	e.lookups = lookups
	return e
}

// Key identifies a synthesis result. engine is the engine's cache identity.
func Key(engine, text string, speakerID int, speed float64) string {
	return fmt.Sprintf("%s\x00%d\x00%s\x00%s", engine, speakerID, formatSpeed(speed), text)
}

func formatSpeed(speed float64) string {
	return fmt.Sprintf("%.3f", speed)
}

// Name returns the wrapped engine's name.
func (e *Engine) Name() string {
	return e.inner.Name()
}

// Synthesize returns a cached result or delegates to the wrapped engine.
func (e *Engine) Synthesize(ctx context.Context, text string, speakerID int, speed float64) (tts.AudioBuffer, error) {
	key := Key(e.id, text, speakerID, speed)

	if item := e.memory.Get(key); item != nil {
		e.count(LevelMemory)
		return item.Value(), nil
	}
	if e.disk != nil {
		if data, ok := e.disk.Get(key); ok {
			buf, err := decodeBuffer(data)
			if err == nil {
				e.count(LevelDisk)
				e.memory.Set(key, buf, ttlcache.DefaultTTL)
				return buf, nil
			}
			e.logger.Warn("discarding corrupt cache entry", "err", err)
		}
	}
	e.count(LevelNone)

	buf, err := e.inner.Synthesize(ctx, text, speakerID, speed)
	if err != nil || buf.Len() == 0 {
		return buf, err
	}

	e.memory.Set(key, buf, ttlcache.DefaultTTL)
	if e.disk != nil {
		if err := e.disk.Put(key, encodeBuffer(buf)); err != nil {
			e.logger.Warn("failed to persist chunk audio", "err", err)
		}
	}
	return buf, nil
}

// Close stops the memory tier and closes the wrapped engine. The disk tier
// is left open for its owner.
func (e *Engine) Close() error {
	e.memory.Stop()
	e.memory.DeleteAll()
	return e.inner.Close()
}

// hits returns how many lookups each tier served. LevelNone counts misses.
func (e *Engine) hits() map[Level]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Level]int64, len(e.stats))
	for k, v := range e.stats {
		out[k] = v
	}
	return out
}

func (e *Engine) count(l Level) {
	e.mu.Lock()
	e.stats[l]++
	e.mu.Unlock()

	if e.lookups != nil {
		e.lookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("level", l.String())))
	}
}

// encodeBuffer lays out the sample rate followed by little-endian float32 samples.
func encodeBuffer(buf tts.AudioBuffer) []byte {
	out := make([]byte, 4+4*len(buf.Samples))
	binary.LittleEndian.PutUint32(out, uint32(buf.SampleRate))
	for i, s := range buf.Samples {
		binary.LittleEndian.PutUint32(out[4+4*i:], math.Float32bits(s))
	}
	return out
}

func decodeBuffer(data []byte) (tts.AudioBuffer, error) {
	if len(data) < 4 || (len(data)-4)%4 != 0 {
		return tts.AudioBuffer{}, fmt.Errorf("bad cache entry length %d", len(data))
	}
	buf := tts.AudioBuffer{
		SampleRate: int(binary.LittleEndian.Uint32(data)),
		Samples:    make([]float32, (len(data)-4)/4),
	}
	for i := range buf.Samples {
		buf.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return buf, nil
}
