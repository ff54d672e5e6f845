// Package params turns generation requests into the generator's argument list
// and a stable cache key.
//
// A Request is the closed set of options the service understands. Query
// strings (or CLI flags) are parsed into a Request, validated, and then
// normalized: service defaults are applied, multi-valued options are
// flattened, and the resulting arguments are hashed into a filesystem-safe
// key that names the cache entry.
package params

// Distance field algorithms. DistanceFieldNone disables the distance field
// entirely and is distinct from leaving the field unset.
const (
	DistanceFieldNone   = "none"
	DistanceFieldEDT    = "edt"
	DistanceField8SSEDT = "8ssedt"
	DistanceFieldSweep  = "sweep"

	// DefaultDistanceField is applied when a request leaves the field unset.
	// The generator's own default differs; the service always sends its own.
	DefaultDistanceField = DistanceFieldEDT
)

var (
	distanceFields       = []string{DistanceFieldNone, DistanceFieldEDT, DistanceField8SSEDT, DistanceFieldSweep}
	packingAlgorithms    = []string{"skyline", "maxrects", "guillotine", "shelf"}
	presets              = []string{"ascii", "latin1", "latin-ext", "digits", "alnum", "cyrillic", "greek"}
	downsampleAlgorithms = []string{"box", "bilinear", "lanczos"}
)

// Format selects which artifact of a cache entry is returned
type Format int

const (
	FormatImage Format = iota
	FormatMetrics
)

func (f Format) String() string {
	if f == FormatMetrics {
		return "fnt"
	}

	return "png"
}

// Request is a generation request. Optional numeric fields are pointers so that
// "unset" and zero stay distinguishable.
type Request struct {
	// Distance field algorithm; empty means "use the service default"
	DistanceField string

	// Atlas packing algorithm
	Packing string

	// Glyph selection: exactly one of Glyphs, Preset, CharCodes
	Glyphs    string
	Preset    string
	CharCodes []int

	FontSize *int

	// Font identification: exactly one of FontName, FontFile
	FontName string
	FontFile string

	Padding             *int
	Downsample          *int
	DownsampleAlgorithm string

	// Dynamic range of the distance field as (min, max)
	DynamicRange *[2]int

	// Metrics selects the .fnt metrics file instead of the atlas image
	Metrics bool

	// NoCache forces a rebuild even when a finished entry exists
	NoCache bool

	// IgnoreLock overrides an existing lock marker, assuming the previous
	// build crashed. No liveness check is made.
	IgnoreLock bool
}

// Format returns the artifact format the request asks for
func (r *Request) Format() Format {
	if r.Metrics {
		return FormatMetrics
	}

	return FormatImage
}

// Int returns a pointer to v, for filling optional Request fields
func Int(v int) *int {
	return &v
}
