package codes

// ErrorCodes maps atlas generator exit codes to their descriptions
var ErrorCodes = map[int]string{
	0:  "Success",
	1:  "General failure",
	2:  "Invalid arguments",
	3:  "Font not found",
	4:  "Cannot load font",
	5:  "No glyphs selected",
	6:  "Glyphs missing from font",
	7:  "Atlas packing failed",
	8:  "Distance field generation failed",
	9:  "Downsampling failed",
	10: "Cannot write image file",
	11: "Cannot write metrics file",
	12: "Output directory not writable",
	70: "Internal error",
}

// IsSuccess returns true if the exit code indicates a successful generation.
// The generator has no "success with warnings" code.
func IsSuccess(code int) bool {
	return code == 0
}

// GetErrorMessage returns the error message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if code < 0 {
		return "Generator did not run"
	}

	if msg, ok := ErrorCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
