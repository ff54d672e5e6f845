package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseCharCodes parses a list of character codes separated by commas and/or
// whitespace. Each code may be decimal, hex with a 0x prefix, or U+XXXX.
// Order is preserved.
func ParseCharCodes(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	codes := make([]int, 0, len(fields))
	for _, f := range fields {
		code, err := parseCharCode(f)
		if err != nil {
			return nil, err
		}

		codes = append(codes, code)
	}

	return codes, nil
}

func parseCharCode(s string) (int, error) {
	base := 10
	digits := s

	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		base, digits = 16, s[2:]
	case strings.HasPrefix(s, "U+"), strings.HasPrefix(s, "u+"):
		base, digits = 16, s[2:]
	}

	n, err := strconv.ParseInt(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid character code %q", s)
	}

	if n < 0 || n > utf8.MaxRune {
		return 0, fmt.Errorf("character code %q out of range", s)
	}

	return int(n), nil
}

// FormatCharCodes joins codes into a single comma-separated decimal token
func FormatCharCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}

	return strings.Join(parts, ",")
}

// ParseIntPair parses "a,b" into two integers. Either value may be negative.
func ParseIntPair(s string) ([2]int, error) {
	var pair [2]int

	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return pair, fmt.Errorf("expected two comma-separated integers, got %q", s)
	}

	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return pair, fmt.Errorf("invalid integer %q", strings.TrimSpace(p))
		}

		pair[i] = n
	}

	return pair, nil
}
