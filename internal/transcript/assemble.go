// Package transcript assembles recognized speech segments into one transcript.
package transcript

import "strings"

// Assemble trims each segment, drops empty ones, and joins the rest with
// single spaces in the order given.
func Assemble(segments []string) string {
	if len(segments) == 0 {
		return ""
	}

	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if normalized := strings.TrimSpace(segment); normalized != "" {
			parts = append(parts, normalized)
		}
	}
	return strings.Join(parts, " ")
}
