package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const diskExt = ".zst"

// DiskCache stores zstd compressed values as files, one per key. The total
// size on disk is kept under a capacity by evicting the least recently used
// files.
type DiskCache struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	index map[string]*diskEntry // by file name
	size  int64
	stats Stats
}

type diskEntry struct {
	path       string
	size       int64
	lastAccess time.Time
}

// NewDiskCache opens the cache in dir, indexing files left by earlier runs.
// A capacity of zero or less means unbounded.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*diskEntry),
	}
	if err := dc.scan(); err != nil {
		return nil, err
	}
	return dc, nil
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), diskExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dc.index[e.Name()] = &diskEntry{
			path:       filepath.Join(dc.dir, e.Name()),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		dc.size += info.Size()
	}
	return nil
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + diskExt
}

// Get returns the value for key. Unreadable or corrupt files are dropped.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	name := fileName(key)
	entry, ok := dc.index[name]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.path)
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		dc.removeLocked(name)
		dc.stats.Misses++
		return nil, false
	}

	entry.lastAccess = time.Now()
	_ = os.Chtimes(entry.path, entry.lastAccess, entry.lastAccess)
	dc.stats.Hits++
	return data, true
}

// Put compresses and stores value under key.
func (dc *DiskCache) Put(key string, value []byte) error {
	data := dc.encoder.EncodeAll(value, nil)
	size := int64(len(data))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.capacity > 0 && size > dc.capacity {
		return ErrItemTooLarge
	}

	name := fileName(key)
	if _, ok := dc.index[name]; ok {
		dc.removeLocked(name)
	}
	for dc.capacity > 0 && dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldestLocked()
	}

	path := filepath.Join(dc.dir, name)
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[name] = &diskEntry{path: path, size: size, lastAccess: time.Now()}
	dc.size += size
	return nil
}

// Clear removes every cached file.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for name := range dc.index {
		dc.removeLocked(name)
	}
	return nil
}

// Size returns the bytes used on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Len returns the number of cached values.
func (dc *DiskCache) Len() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.index)
}

// Stats returns hit and miss counts.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.stats
}

// Close releases the compression codecs.
func (dc *DiskCache) Close() error {
	dc.decoder.Close()
	return dc.encoder.Close()
}

func (dc *DiskCache) removeLocked(name string) {
	entry := dc.index[name]
	_ = os.Remove(entry.path)
	dc.size -= entry.size
	delete(dc.index, name)
}

func (dc *DiskCache) evictOldestLocked() {
	var (
		oldest string
		at     time.Time
	)
	for name, e := range dc.index {
		if oldest == "" || e.lastAccess.Before(at) {
			oldest, at = name, e.lastAccess
		}
	}
	if oldest != "" {
		dc.removeLocked(oldest)
		dc.stats.Evictions++
	}
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
