package fonts

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
	"seehuhn.de/go/sfnt"
)

var (
	// ErrInvalidFont is returned for files that do not parse as TrueType or OpenType
	ErrInvalidFont = zerr.New("not a valid font file")

	// ErrFontNotAllowed is returned for font files outside the configured directories
	ErrFontNotAllowed = zerr.New("font file is outside the allowed directories")
)

// Info summarises a font file
type Info struct {
	Path           string `json:"path"`
	Family         string `json:"family"`
	PostScriptName string `json:"postscript_name"`
	Glyphs         int    `json:"glyphs"`
	UnitsPerEm     uint16 `json:"units_per_em"`
	Italic         bool   `json:"italic"`
}

// Inspect parses a TrueType/OpenType file
func Inspect(path string) (*Info, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open font file"), "path", path)
	}
	defer f.Close()

	font, err := sfnt.Read(f)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(ErrInvalidFont, err.Error()), "path", path)
	}

	return &Info{
		Path:           path,
		Family:         font.FamilyName,
		PostScriptName: font.PostScriptName(),
		Glyphs:         font.NumGlyphs(),
		UnitsPerEm:     font.UnitsPerEm,
		Italic:         font.IsItalic,
	}, nil
}

// CheckFontFile verifies that path names a readable font and returns its
// info with Path resolved to an absolute, symlink-free path, so every
// spelling of one file yields the same Path. When allowed is not empty the
// resolved path must lie inside one of those directories.
func CheckFontFile(path string, allowed []string) (*Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve font path"), "path", path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "font file not found"), "path", path)
	}

	if len(allowed) > 0 && !within(resolved, allowed) {
		return nil, zerr.With(zerr.Wrap(ErrFontNotAllowed, "rejected font file"), "path", path)
	}

	return Inspect(resolved)
}

func within(path string, dirs []string) bool {
	for _, dir := range dirs {
		root, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}

		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
