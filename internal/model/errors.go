package model

import (
	"errors"
	"strconv"
	"strings"
)

// Error kinds surfaced by the core operations. Callers match them with errors.Is.
var (
	ErrFormat     = errors.New("malformed input")
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
)

// ParseCount parses a vote cell. Blank, non-integer and negative cells are
// reported as not ok and must be skipped by callers.
func ParseCount(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	n, err := strconv.Atoi(cell)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
