package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Fixed file names inside an entry directory
const (
	// ImageFile is the atlas image written by the generator
	ImageFile = "atlas.png"

	// MetricsFile is the bitmap-font metrics file written by the generator
	MetricsFile = "atlas.fnt"

	// LockFile is the lock marker present while a build is in flight
	LockFile = ".lock"
)

// ArtifactNames lists every artifact a successful build produces
var ArtifactNames = []string{ImageFile, MetricsFile}

// CollectOutputs returns the artifact files present in an entry directory.
// Anything that is not a known artifact (the lock marker, scratch files the
// generator may leave behind) is ignored.
func CollectOutputs(dir string) ([]string, error) {
	var outputs []string

	for _, name := range ArtifactNames {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}

		if info.Mode().IsRegular() {
			outputs = append(outputs, name)
		}
	}

	sort.Strings(outputs)

	return outputs, nil
}

// CopyArtifact copies a cached artifact to dst, creating parent directories
func CopyArtifact(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}

	return nil
}

// dirSize sums the size of regular files below dir
func dirSize(dir string) int64 {
	var total int64

	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !info.IsDir() {
			total += info.Size()
		}

		return nil
	})

	return total
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	// Preserve file permissions
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	return os.Chmod(dst, srcInfo.Mode())
}
