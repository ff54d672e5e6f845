package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/zerr"
)

// MemoryStore keeps lock markers in process memory and artifacts on disk.
// It only coordinates builds within one process. Builds write into a
// staging directory that is renamed into place on commit, so a crash never
// leaves a partial entry that looks Ready.
type MemoryStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*LockInfo
}

// NewMemoryStore creates a store whose entries live below root
func NewMemoryStore(root string) (*MemoryStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create cache directory"), "dir", root)
	}

	return &MemoryStore{
		root:  root,
		locks: make(map[string]*LockInfo),
	}, nil
}

// Dir returns the directory of an entry
func (s *MemoryStore) Dir(key string) string {
	return filepath.Join(s.root, key)
}

func (s *MemoryStore) stagingDir(key, buildID string) string {
	return filepath.Join(s.root, scratchName(key, stagingInfix, buildID))
}

// Lookup reports the state of an entry
func (s *MemoryStore) Lookup(key string) (State, error) {
	if err := ValidateKey(key); err != nil {
		return Absent, err
	}

	s.mu.Lock()
	_, building := s.locks[key]
	s.mu.Unlock()

	if building {
		return Building, nil
	}

	if _, err := os.Stat(s.Dir(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}

		return Absent, zerr.With(zerr.Wrap(err, "failed to stat cache entry"), "key", key)
	}

	return Ready, nil
}

// BeginBuild registers a lock for key and creates a fresh staging directory
func (s *MemoryStore) BeginBuild(key string, opts BuildOptions) (*Handle, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, overrode := s.locks[key]
	if overrode && !opts.IgnoreLock {
		return nil, zerr.With(zerr.Wrap(ErrAlreadyBuilding, "lock held"), "key", key)
	}

	info := newLockInfo()
	staging := s.stagingDir(key, info.BuildID)

	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create staging directory"), "key", key)
	}

	s.locks[key] = info

	return info.handle(key, staging, overrode), nil
}

// CommitBuild moves the staging directory into place. A build whose lock
// was overridden still commits; the last commit wins.
func (s *MemoryStore) CommitBuild(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.Dir(h.Key)

	if _, err := os.Stat(h.Dir); errors.Is(err, fs.ErrNotExist) {
		// already committed or abandoned
		return nil
	}

	if err := os.RemoveAll(final); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace cache entry"), "key", h.Key)
	}

	if err := os.Rename(h.Dir, final); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to commit cache entry"), "key", h.Key)
	}

	s.release(h)
	h.Dir = final

	return nil
}

// AbandonBuild discards the staging directory
func (s *MemoryStore) AbandonBuild(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release(h)

	if err := os.RemoveAll(h.Dir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove staging directory"), "key", h.Key)
	}

	return nil
}

// release drops the lock if h still owns it. Callers hold mu.
func (s *MemoryStore) release(h *Handle) {
	if info, ok := s.locks[h.Key]; ok && info.BuildID == h.BuildID {
		delete(s.locks, h.Key)
	}
}

// LockInfo returns the in-memory lock for key, or nil
func (s *MemoryStore) LockInfo(key string) (*LockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.locks[key]
	if !ok {
		return nil, nil
	}

	cp := *info
	return &cp, nil
}
