package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/zerr"
)

// LockInfo is the body of a lock marker. Only the marker's presence matters
// for correctness; the body helps operators find the owner of a stuck build.
type LockInfo struct {
	BuildID   string    `json:"build_id"`
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	StartedAt time.Time `json:"started_at"`
}

// Age returns how long ago the build started
func (l *LockInfo) Age(now time.Time) time.Duration {
	return now.Sub(l.StartedAt)
}

func newLockInfo() *LockInfo {
	host, _ := os.Hostname()

	return &LockInfo{
		BuildID:   uuid.NewString(),
		PID:       os.Getpid(),
		Host:      host,
		StartedAt: time.Now().UTC(),
	}
}

func (l *LockInfo) handle(key, dir string, overrode bool) *Handle {
	return &Handle{
		Key:      key,
		Dir:      dir,
		BuildID:  l.BuildID,
		Started:  l.StartedAt,
		Overrode: overrode,
	}
}

func writeLockInfo(f *os.File, info *LockInfo) error {
	defer f.Close()

	if err := json.NewEncoder(f).Encode(info); err != nil {
		return zerr.Wrap(err, "failed to write lock marker")
	}

	return nil
}

// readLockInfo returns nil, nil when there is no marker. A marker with an
// unreadable body (for example one left half-written by a crash) is still a
// marker, so it yields an empty LockInfo rather than an error.
func readLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, zerr.Wrap(err, "failed to read lock marker")
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return &LockInfo{}, nil
	}

	return &info, nil
}
