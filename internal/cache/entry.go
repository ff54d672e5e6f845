package cache

import "time"

// Record describes the most recent build of a cache entry
type Record struct {
	// Key is the cache key, also the entry directory name
	Key string `json:"key"`

	// BuildID matches the lock marker written for the build
	BuildID string `json:"build_id"`

	// Args is the normalized generator argument list the key was derived from
	Args []string `json:"args"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// ExitCode is the generator's exit status, -1 if it did not run
	ExitCode int `json:"exit_code"`

	// Success indicates the entry was committed
	Success bool `json:"success"`

	// Overrode is set when the build replaced another build's lock marker
	Overrode bool `json:"overrode,omitempty"`

	// Artifacts maps artifact file names to their xxhash checksum
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// Duration returns how long the build took
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
