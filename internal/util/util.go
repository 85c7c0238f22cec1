// Package util provides small string helpers shared by the ingest path.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg trims whitespace and quotes and unescapes embedded quotes.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// SplitCommand splits a "CMD|arg|arg" line into its command and cleaned
// arguments. Blank lines and lines starting with '#' yield an empty command.
func SplitCommand(line string) (string, []string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}
	parts := strings.Split(line, "|")
	cmd := strings.ToUpper(strings.TrimSpace(parts[0]))
	args := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		args = append(args, CleanArg(p))
	}
	return cmd, args
}
