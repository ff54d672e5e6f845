package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.trai.ch/zerr"
)

const (
	// IndexFile is the bbolt database inside the cache root
	IndexFile = "index.db"

	// bucketName is the BoltDB bucket name for build records
	bucketName = "builds"
)

// Index records build metadata in BoltDB. It is informational only: the
// entry directories remain the source of truth for cache state.
type Index struct {
	db   *bbolt.DB
	path string
}

// Stats summarises the cache
type Stats struct {
	Entries   int
	Building  int
	Records   int
	Failures  int
	TotalSize int64
}

// OpenIndex opens (creating if necessary) the index in the cache root.
// bbolt takes an exclusive file lock, so a second process gets an error
// after timeout instead of blocking forever.
func OpenIndex(root string, timeout time.Duration) (*Index, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create cache directory"), "dir", root)
	}

	path := filepath.Join(root, IndexFile)

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open cache index"), "path", path)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, zerr.Wrap(err, "failed to create index bucket")
	}

	return &Index{db: db, path: path}, nil
}

// Close closes the index database
func (i *Index) Close() error {
	if i.db != nil {
		return i.db.Close()
	}

	return nil
}

// Record stores the outcome of a build, replacing any earlier record
func (i *Index) Record(r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return zerr.Wrap(err, "failed to encode build record")
	}

	err = i.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(r.Key), data)
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to store build record"), "key", r.Key)
	}

	return nil
}

// Get returns the record for key, or nil if there is none
func (i *Index) Get(key string) (*Record, error) {
	var rec *Record

	err := i.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}

		rec = &Record{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read build record"), "key", key)
	}

	return rec, nil
}

// List returns all records, most recently finished first
func (i *Index) List() ([]Record, error) {
	var records []Record

	err := i.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list build records")
	}

	sort.Slice(records, func(a, b int) bool {
		return records[a].FinishedAt.After(records[b].FinishedAt)
	})

	return records, nil
}

// Delete removes the record for key
func (i *Index) Delete(key string) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Clear removes all records
func (i *Index) Clear() error {
	err := i.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return zerr.Wrap(err, "failed to clear cache index")
	}

	return nil
}

// CollectStats combines the on-disk entries with the index records. idx may be nil
// when the index is held by another process.
func CollectStats(store *DirStore, idx *Index) (*Stats, error) {
	entries, err := store.Entries()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Entries: len(entries)}
	for _, e := range entries {
		if e.State == Building {
			stats.Building++
		}

		stats.TotalSize += e.Size
	}

	if idx == nil {
		return stats, nil
	}

	records, err := idx.List()
	if err != nil {
		return nil, err
	}

	stats.Records = len(records)
	for _, r := range records {
		if !r.Success {
			stats.Failures++
		}
	}

	return stats, nil
}
