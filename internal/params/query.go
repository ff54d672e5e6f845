package params

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/Norgate-AV/glyphd/internal/utils"
)

// Query parameter names
const (
	QueryDistanceField       = "df"
	QueryPacking             = "packing"
	QueryGlyphs              = "glyphs"
	QueryPreset              = "preset"
	QueryCharCodes           = "charcodes"
	QueryFontSize            = "fontsize"
	QueryFontName            = "fontname"
	QueryFontFile            = "fontfile"
	QueryPadding             = "padding"
	QueryDownsample          = "downsample"
	QueryDownsampleAlgorithm = "downsample_algorithm"
	QueryDynamicRange        = "dynamic_range"
	QueryMetrics             = "fnt"
	QueryNoCache             = "nocache"
	QueryIgnoreLock          = "ignorelock"
)

// Check is an additional validation run by ParseQuery after the built-in
// ones, for constraints that need outside state such as the filesystem
type Check func(r *Request, verr *ValidationError)

// ParseQuery builds a validated Request from URL query values. Unknown and
// repeated parameters are violations, as are malformed values. All violations
// are collected into a single *ValidationError.
func ParseQuery(values url.Values, checks ...Check) (*Request, error) {
	verr := &ValidationError{}
	req := &Request{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		if len(vals) > 1 {
			verr.Add(fmt.Sprintf("%s may only be given once", key))
			continue
		}

		var v string
		if len(vals) == 1 {
			v = vals[0]
		}

		switch key {
		case QueryDistanceField:
			req.DistanceField = v
		case QueryPacking:
			req.Packing = v
		case QueryGlyphs:
			req.Glyphs = v
		case QueryPreset:
			req.Preset = v
		case QueryCharCodes:
			codes, err := utils.ParseCharCodes(v)
			if err != nil {
				verr.Add(fmt.Sprintf("charcodes: %v", err))
				continue
			}
			req.CharCodes = codes
		case QueryFontSize:
			req.FontSize = parseInt(verr, key, v)
		case QueryFontName:
			req.FontName = v
		case QueryFontFile:
			req.FontFile = v
		case QueryPadding:
			req.Padding = parseInt(verr, key, v)
		case QueryDownsample:
			req.Downsample = parseInt(verr, key, v)
		case QueryDownsampleAlgorithm:
			req.DownsampleAlgorithm = v
		case QueryDynamicRange:
			pair, err := utils.ParseIntPair(v)
			if err != nil {
				verr.Add(fmt.Sprintf("dynamic_range: %v", err))
				continue
			}
			req.DynamicRange = &pair
		case QueryMetrics:
			req.Metrics = parseBool(verr, key, v)
		case QueryNoCache:
			req.NoCache = parseBool(verr, key, v)
		case QueryIgnoreLock:
			req.IgnoreLock = parseBool(verr, key, v)
		default:
			verr.Add(fmt.Sprintf("unknown parameter %q", key))
		}
	}

	req.validate(verr)

	for _, check := range checks {
		check(req, verr)
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	return req, nil
}

func parseInt(verr *ValidationError, name, v string) *int {
	n, err := strconv.Atoi(v)
	if err != nil {
		verr.Add(fmt.Sprintf("%s must be an integer, got %q", name, v))
		return nil
	}

	return &n
}

// parseBool treats a bare flag ("?nocache") as true
func parseBool(verr *ValidationError, name, v string) bool {
	if v == "" {
		return true
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		verr.Add(fmt.Sprintf("%s must be a boolean, got %q", name, v))
		return false
	}

	return b
}
