package params

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Validate checks the request invariants and reports every violation at once
func (r *Request) Validate() error {
	verr := &ValidationError{}
	r.validate(verr)
	return verr.Err()
}

func (r *Request) validate(verr *ValidationError) {
	checkEnum(verr, "df", r.DistanceField, distanceFields)
	checkEnum(verr, "packing", r.Packing, packingAlgorithms)
	checkEnum(verr, "preset", r.Preset, presets)
	checkEnum(verr, "downsample_algorithm", r.DownsampleAlgorithm, downsampleAlgorithms)

	glyphSelections := 0
	if r.Glyphs != "" {
		glyphSelections++
	}
	if r.Preset != "" {
		glyphSelections++
	}
	if len(r.CharCodes) > 0 {
		glyphSelections++
	}

	switch glyphSelections {
	case 0:
		verr.Add("one of glyphs, preset or charcodes is required")
	case 1:
	default:
		verr.Add("only one of glyphs, preset or charcodes may be set")
	}

	switch {
	case r.FontName == "" && r.FontFile == "":
		verr.Add("one of fontname or fontfile is required")
	case r.FontName != "" && r.FontFile != "":
		verr.Add("only one of fontname or fontfile may be set")
	}

	checkPrintable(verr, "glyphs", r.Glyphs)
	checkPrintable(verr, "fontname", r.FontName)
	checkPrintable(verr, "fontfile", r.FontFile)

	checkNonNegative(verr, "fontsize", r.FontSize)
	checkNonNegative(verr, "padding", r.Padding)
	checkNonNegative(verr, "downsample", r.Downsample)

	if r.DownsampleAlgorithm != "" && r.Downsample == nil {
		verr.Add("downsample_algorithm requires downsample")
	}

	if r.DynamicRange != nil && r.DynamicRange[0] > r.DynamicRange[1] {
		verr.Add(fmt.Sprintf("dynamic_range min %d is greater than max %d", r.DynamicRange[0], r.DynamicRange[1]))
	}
}

func checkEnum(verr *ValidationError, name, value string, allowed []string) {
	if value == "" || slices.Contains(allowed, value) {
		return
	}

	verr.Add(fmt.Sprintf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value))
}

// checkPrintable rejects control characters. NUL cannot be passed to a
// process at all, and the others are never valid glyphs or font names.
func checkPrintable(verr *ValidationError, name, value string) {
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		verr.Add(fmt.Sprintf("%s must not contain control characters", name))
	}
}

func checkNonNegative(verr *ValidationError, name string, v *int) {
	if v != nil && *v < 0 {
		verr.Add(fmt.Sprintf("%s must be a non-negative integer, got %d", name, *v))
	}
}
