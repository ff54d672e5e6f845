package params

import (
	"crypto/sha256"
	"encoding/base32"
	"strconv"
	"strings"

	"github.com/Norgate-AV/glyphd/internal/utils"
)

// keyBytes is how many bytes of the SHA-256 digest make up a key.
// 16 bytes encode to 26 base32 characters.
const keyBytes = 16

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Normalized is the generator-facing form of a request
type Normalized struct {
	// Args are the generator arguments in fixed order, excluding output paths
	Args []string

	// Key names the cache entry for Args
	Key string
}

// Normalize applies service defaults and produces the argument list and key.
// The request must already be valid.
func Normalize(r *Request) Normalized {
	var args []string

	add := func(name, value string) {
		args = append(args, "--"+name, value)
	}

	addInt := func(name string, v *int) {
		if v != nil {
			add(name, strconv.Itoa(*v))
		}
	}

	switch r.DistanceField {
	case "":
		add("df", DefaultDistanceField)
	case DistanceFieldNone:
		// explicit opt-out: no argument at all
	default:
		add("df", r.DistanceField)
	}

	if r.Packing != "" {
		add("packing", r.Packing)
	}

	switch {
	case r.Glyphs != "":
		add("glyphs", r.Glyphs)
	case r.Preset != "":
		add("preset", r.Preset)
	case len(r.CharCodes) > 0:
		add("charcodes", utils.FormatCharCodes(r.CharCodes))
	}

	addInt("fontsize", r.FontSize)

	if r.FontName != "" {
		add("fontname", r.FontName)
	} else {
		add("fontfile", r.FontFile)
	}

	addInt("padding", r.Padding)
	addInt("downsample", r.Downsample)

	if r.DownsampleAlgorithm != "" {
		add("downsample-algorithm", r.DownsampleAlgorithm)
	}

	if r.DynamicRange != nil {
		add("dynamic-range", strconv.Itoa(r.DynamicRange[0])+","+strconv.Itoa(r.DynamicRange[1]))
	}

	return Normalized{
		Args: args,
		Key:  Key(args),
	}
}

// Key derives the cache key for an argument list: the SHA-256 of the
// length-prefixed arguments, truncated and encoded as unpadded lowercase
// base32. Length prefixes keep distinct lists distinct whatever bytes the
// arguments contain. The result never contains '/', '+' or '=', never starts
// with '-', and is safe on case-insensitive filesystems.
func Key(args []string) string {
	h := sha256.New()
	for _, arg := range args {
		h.Write([]byte(strconv.Itoa(len(arg))))
		h.Write([]byte{':'})
		h.Write([]byte(arg))
	}

	return strings.ToLower(keyEncoding.EncodeToString(h.Sum(nil)[:keyBytes]))
}
