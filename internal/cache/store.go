// Package cache owns the lifecycle of cache entries.
//
// A cache entry is a directory named by a request key. While a build is in
// flight the directory holds a lock marker; once the marker is gone the
// directory is considered finished and its artifacts may be served:
//
//	Absent   no directory
//	Building directory with a lock marker
//	Ready    directory without a lock marker
//
// Mutual exclusion relies only on atomic filesystem operations (or, for
// MemoryStore, a mutex), so concurrent requests for different keys never
// contend. Nothing expires a lock marker: a build whose process died leaves
// the entry Building until a caller overrides the marker or an operator
// removes it.
//
// Build metadata is recorded separately in a bbolt index (see Index), which
// is informational and never consulted to decide whether an entry is usable.
package cache

import (
	"time"

	"go.trai.ch/zerr"
)

var (
	// ErrAlreadyBuilding is returned when a lock marker is present and the
	// caller did not ask to override it.
	ErrAlreadyBuilding = zerr.New("cache entry is already being built")

	// ErrNotBuilding is returned when unlocking an entry that has no marker.
	ErrNotBuilding = zerr.New("cache entry is not locked")

	// ErrInvalidKey is returned for keys that are not safe directory names.
	ErrInvalidKey = zerr.New("invalid cache key")
)

// State is the lifecycle state of a cache entry
type State int

const (
	Absent State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Ready:
		return "ready"
	default:
		return "absent"
	}
}

// BuildOptions controls BeginBuild
type BuildOptions struct {
	// IgnoreLock overwrites an existing lock marker instead of failing.
	// The previous holder is assumed dead; nothing checks that it is.
	IgnoreLock bool
}

// Handle identifies a build in progress. It is returned by BeginBuild and
// passed back to CommitBuild or AbandonBuild.
type Handle struct {
	Key     string
	Dir     string
	BuildID string
	Started time.Time

	// Overrode is set when BeginBuild replaced somebody else's lock marker
	Overrode bool
}

// Store is the cache entry lifecycle used by the orchestrator
type Store interface {
	// Lookup reports the state of an entry without modifying anything.
	Lookup(key string) (State, error)

	// BeginBuild moves an entry to Building. It fails with ErrAlreadyBuilding
	// if the entry is locked, unless opts.IgnoreLock is set.
	BeginBuild(key string, opts BuildOptions) (*Handle, error)

	// CommitBuild removes the lock marker. Calling it twice is harmless.
	CommitBuild(h *Handle) error

	// AbandonBuild discards a failed build, returning the entry to Absent.
	// Calling it twice is harmless.
	AbandonBuild(h *Handle) error

	// LockInfo returns the lock marker of a Building entry, or nil.
	LockInfo(key string) (*LockInfo, error)

	// Dir returns the directory of an entry regardless of its state.
	Dir(key string) string
}
