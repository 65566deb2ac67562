package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

var caseFolder = cases.Fold()

// Fold normalises a string for case-insensitive comparison. Unlike
// strings.ToLower it applies full Unicode case folding, so customer names in
// any script compare consistently.
func Fold(value string) string {
	return caseFolder.String(strings.TrimSpace(value))
}
