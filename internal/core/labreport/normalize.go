package labreport

import (
	"strings"
	"unicode/utf8"
)

const (
	maxLineChars  = 80
	maxLineTokens = 15
)

// Normalize keeps only short label/value lines. Letterheads, disclaimers and footnotes
// are longer and more prose-like than result rows, so they are dropped by shape.
func Normalize(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxLineChars {
			continue
		}
		if countTokens(line) > maxLineTokens {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func countTokens(line string) int {
	n := 0
	for _, token := range strings.Split(line, " ") {
		if token != "" {
			n++
		}
	}
	return n
}
