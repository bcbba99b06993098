package server

import (
	"regexp"
	"strings"
)

func okLine(body string) string   { return "OK " + body + "\r\n" }
func errorLine(msg string) string { return "ERROR " + msg + "\r\n" }

// sensitiveLeaf matches a "key: value" or "key=value" config line whose key
// contains one of the masked substrings, case-insensitive.
var sensitiveLeaf = regexp.MustCompile(`(?i)(password|token|secret|private_key)`)

// maskSensitive replaces the value half of any config line whose key
// matches sensitiveLeaf with "***", leaving the key and indentation intact.
func maskSensitive(dump string) string {
	lines := strings.Split(dump, "\n")
	for i, line := range lines {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		key, sep, _, ok := splitConfigLine(line)
		if !ok {
			continue
		}
		if sensitiveLeaf.MatchString(key) {
			lines[i] = indent + key + sep + " ***"
		}
	}
	return strings.Join(lines, "\n")
}

// splitConfigLine splits a "<indent><key>: <value>" or "<indent><key>=<value>"
// line into its key (with leading indentation trimmed for matching) and
// separator. ok is false for lines with no recognizable key/value split.
func splitConfigLine(line string) (key, sep, value string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for _, candidate := range []string{": ", ":", "="} {
		if idx := strings.Index(trimmed, candidate); idx > 0 {
			return strings.TrimSpace(trimmed[:idx]), candidate, strings.TrimSpace(trimmed[idx+len(candidate):]), true
		}
	}
	return "", "", "", false
}
