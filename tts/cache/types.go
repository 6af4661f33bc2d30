// Package cache memoizes synthesized chunk audio.
//
// Results are kept in a bounded in-memory tier with a TTL and, optionally, in
// a compressed on-disk tier that survives restarts. Disk hits are promoted to
// memory.
package cache

import "errors"

// ErrItemTooLarge is returned when a value exceeds the disk capacity.
var ErrItemTooLarge = errors.New("item too large for cache")

// Level names the tier a lookup was served from.
type Level int

const (
	LevelNone Level = iota
	LevelMemory
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "none"
	}
}

// Stats counts cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}
