// SPDX-License-Identifier: MIT

// Package strutil holds small string helpers shared by the CLI and config.
package strutil

import "strings"

// SplitCSV splits a comma-separated flag value, trimming blanks and
// dropping empty items.
func SplitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
