package cache

import (
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashFile returns the xxhash64 of a file's content as a hex string. It is
// used for artifact checksums and HTTP entity tags, not for cache keys.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return strconv.FormatUint(h.Sum64(), 16), nil
}
