package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/zerr"
)

// DefaultCacheDir is the default cache directory name
const DefaultCacheDir = ".glyphd-cache"

// maxBeginAttempts bounds how often BeginBuild retries when a concurrent
// AbandonBuild removes the entry between its existence check and marker
// creation.
const maxBeginAttempts = 3

// DirStore keeps cache entries and their lock markers on the filesystem
type DirStore struct {
	root string
}

// EntryInfo describes a cache entry on disk
type EntryInfo struct {
	Key     string
	State   State
	Outputs []string
	Size    int64
	ModTime time.Time
	Lock    *LockInfo
}

// NewDirStore creates a store rooted at root.
// If root is empty, uses DefaultCacheDir in current working directory
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, zerr.Wrap(err, "failed to get working directory")
		}

		root = filepath.Join(cwd, DefaultCacheDir)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create cache directory"), "dir", root)
	}

	return &DirStore{root: root}, nil
}

// Root returns the cache root directory
func (s *DirStore) Root() string {
	return s.root
}

// Dir returns the directory of an entry
func (s *DirStore) Dir(key string) string {
	return filepath.Join(s.root, key)
}

func (s *DirStore) lockPath(key string) string {
	return filepath.Join(s.root, key, LockFile)
}

// Lookup reports the state of an entry. The marker is looked for through
// an open handle on the entry directory, and the path must still name that
// directory afterwards, so an entry renamed away mid-lookup is never
// mistaken for Ready.
func (s *DirStore) Lookup(key string) (State, error) {
	if err := ValidateKey(key); err != nil {
		return Absent, err
	}

	for range maxBeginAttempts {
		state, stable, err := s.lookupOnce(key)
		if err != nil || stable {
			return state, err
		}
	}

	// the entry keeps changing under us, so someone is working on it
	return Building, nil
}

func (s *DirStore) lookupOnce(key string) (State, bool, error) {
	dir := s.Dir(key)

	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, true, nil
		}

		return Absent, false, zerr.With(zerr.Wrap(err, "failed to open cache entry"), "key", key)
	}
	defer f.Close()

	opened, err := f.Stat()
	if err != nil {
		return Absent, false, zerr.With(zerr.Wrap(err, "failed to stat cache entry"), "key", key)
	}

	if !opened.IsDir() {
		return Absent, false, zerr.With(zerr.New("cache entry is not a directory"), "key", key)
	}

	names, err := f.Readdirnames(-1)
	if err != nil {
		return Absent, false, zerr.With(zerr.Wrap(err, "failed to read cache entry"), "key", key)
	}

	if slices.Contains(names, LockFile) {
		return Building, true, nil
	}

	current, err := os.Stat(dir)
	if err != nil || !os.SameFile(opened, current) {
		return Absent, false, nil
	}

	return Ready, true, nil
}

// BeginBuild puts an entry into Building. An absent entry is assembled
// with its marker under a staging name and renamed into place, so the entry
// directory never exists without a marker. For an existing entry the marker
// is created with O_EXCL. Either way exactly one of several concurrent
// callers succeeds; the rest get ErrAlreadyBuilding unless they set
// IgnoreLock.
func (s *DirStore) BeginBuild(key string, opts BuildOptions) (*Handle, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	dir := s.Dir(key)
	lockPath := s.lockPath(key)

	var lastErr error
	for range maxBeginAttempts {
		info := newLockInfo()

		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			created, err := s.createStaged(key, info)
			if err != nil {
				return nil, err
			}

			if created {
				return info.handle(key, dir, false), nil
			}
		}

		overrode := false

		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			if !opts.IgnoreLock {
				return nil, zerr.With(zerr.Wrap(ErrAlreadyBuilding, "lock marker present"), "key", key)
			}

			overrode = true
			f, err = os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		}

		if errors.Is(err, fs.ErrNotExist) {
			// entry removed under us by a concurrent abandon; start over
			lastErr = err
			continue
		}

		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to create lock marker"), "key", key)
		}

		if err := writeLockInfo(f, info); err != nil {
			_ = os.Remove(lockPath)
			return nil, zerr.With(err, "key", key)
		}

		return info.handle(key, dir, overrode), nil
	}

	return nil, zerr.With(zerr.Wrap(lastErr, "failed to create lock marker"), "key", key)
}

// createStaged creates the entry directory with its marker already inside.
// It reports false when another caller created the entry first.
func (s *DirStore) createStaged(key string, info *LockInfo) (bool, error) {
	staging := s.scratchDir(key, stagingInfix)

	if err := os.Mkdir(staging, 0o755); err != nil {
		return false, zerr.With(zerr.Wrap(err, "failed to create staging directory"), "key", key)
	}

	f, err := os.OpenFile(filepath.Join(staging, LockFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		_ = os.RemoveAll(staging)
		return false, zerr.With(zerr.Wrap(err, "failed to create lock marker"), "key", key)
	}

	if err := writeLockInfo(f, info); err != nil {
		_ = os.RemoveAll(staging)
		return false, zerr.With(err, "key", key)
	}

	if err := os.Rename(staging, s.Dir(key)); err != nil {
		_ = os.RemoveAll(staging)

		// a non-empty directory is never replaced by rename
		if _, statErr := os.Stat(s.Dir(key)); statErr == nil {
			return false, nil
		}

		return false, zerr.With(zerr.Wrap(err, "failed to create cache entry"), "key", key)
	}

	return true, nil
}

// CommitBuild removes the lock marker, making the entry Ready
func (s *DirStore) CommitBuild(h *Handle) error {
	if err := os.Remove(s.lockPath(h.Key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, "failed to remove lock marker"), "key", h.Key)
	}

	return nil
}

// AbandonBuild returns the entry to Absent. The directory is renamed away
// first, so its marker and partial output disappear together.
func (s *DirStore) AbandonBuild(h *Handle) error {
	tombstone := s.scratchDir(h.Key, tombstoneInfix)

	if err := os.Rename(s.Dir(h.Key), tombstone); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return zerr.With(zerr.Wrap(err, "failed to remove abandoned cache entry"), "key", h.Key)
	}

	if err := os.RemoveAll(tombstone); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove abandoned cache entry"), "key", h.Key)
	}

	return nil
}

func (s *DirStore) scratchDir(key, infix string) string {
	return filepath.Join(s.root, scratchName(key, infix, uuid.NewString()))
}

// LockInfo returns the lock marker of an entry, or nil if it has none
func (s *DirStore) LockInfo(key string) (*LockInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	info, err := readLockInfo(s.lockPath(key))
	if err != nil {
		return nil, zerr.With(err, "key", key)
	}

	return info, nil
}

// Entry describes a single entry. It returns nil for an Absent entry.
func (s *DirStore) Entry(key string) (*EntryInfo, error) {
	state, err := s.Lookup(key)
	if err != nil || state == Absent {
		return nil, err
	}

	dir := s.Dir(key)

	stat, err := os.Stat(dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to stat cache entry"), "key", key)
	}

	outputs, err := CollectOutputs(dir)
	if err != nil {
		return nil, zerr.With(err, "key", key)
	}

	entry := &EntryInfo{
		Key:     key,
		State:   state,
		Outputs: outputs,
		Size:    dirSize(dir),
		ModTime: stat.ModTime(),
	}

	if state == Building {
		if entry.Lock, err = s.LockInfo(key); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// Entries lists all cache entries sorted by key
func (s *DirStore) Entries() ([]EntryInfo, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read cache directory")
	}

	var entries []EntryInfo
	for _, d := range dirents {
		if !d.IsDir() || ValidateKey(d.Name()) != nil {
			continue
		}

		entry, err := s.Entry(d.Name())
		if err != nil {
			return nil, err
		}

		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return entries, nil
}

// Remove deletes an entry. Entries that are Building are only removed when
// force is set.
func (s *DirStore) Remove(key string, force bool) error {
	state, err := s.Lookup(key)
	if err != nil {
		return err
	}

	if state == Building && !force {
		return zerr.With(zerr.Wrap(ErrAlreadyBuilding, "refusing to remove"), "key", key)
	}

	if err := os.RemoveAll(s.Dir(key)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove cache entry"), "key", key)
	}

	return nil
}

// Clear removes every entry and returns the removed keys. Building entries
// are skipped unless force is set.
func (s *DirStore) Clear(force bool) ([]string, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.State == Building && !force {
			continue
		}

		if err := s.Remove(e.Key, force); err != nil {
			return removed, err
		}

		removed = append(removed, e.Key)
	}

	return removed, nil
}

// Sweep removes staging and tombstone directories left behind by crashed
// processes and returns their names. A running build owns its staging
// directory, so only sweep when no build is in progress.
func (s *DirStore) Sweep() ([]string, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read cache directory")
	}

	var removed []string
	for _, d := range dirents {
		if !d.IsDir() || !isScratch(d.Name()) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(s.root, d.Name())); err != nil {
			return removed, zerr.With(zerr.Wrap(err, "failed to remove leftover build directory"), "dir", d.Name())
		}

		removed = append(removed, d.Name())
	}

	return removed, nil
}

// Unlock removes the lock marker of a Building entry, leaving whatever
// output it has. This is the operator's way to recover from a crashed build.
func (s *DirStore) Unlock(key string) error {
	state, err := s.Lookup(key)
	if err != nil {
		return err
	}

	if state != Building {
		return zerr.With(zerr.Wrap(ErrNotBuilding, "cannot unlock"), "key", key)
	}

	if err := os.Remove(s.lockPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, "failed to remove lock marker"), "key", key)
	}

	return nil
}

// Scratch directories sit next to entries as <key><infix><uuid>. The dot
// keeps them from ever passing ValidateKey.
const (
	stagingInfix   = ".building-"
	tombstoneInfix = ".abandoned-"
)

func scratchName(key, infix, id string) string {
	return key + infix + id
}

// isScratch reports whether name is a staging or tombstone directory
func isScratch(name string) bool {
	key, _, ok := strings.Cut(name, ".")
	if !ok || ValidateKey(key) != nil {
		return false
	}

	rest := name[len(key):]

	return strings.HasPrefix(rest, stagingInfix) || strings.HasPrefix(rest, tombstoneInfix)
}

// ValidateKey rejects keys that are not plain directory names
func ValidateKey(key string) error {
	if key == "" || len(key) > 128 {
		return zerr.With(zerr.Wrap(ErrInvalidKey, "bad cache key"), "key", key)
	}

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return zerr.With(zerr.Wrap(ErrInvalidKey, "bad cache key"), "key", key)
		}
	}

	return nil
}
