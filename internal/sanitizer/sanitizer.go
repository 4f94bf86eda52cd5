// Package sanitizer extracts the CSS portion of a model response that may be
// wrapped in code fences or surrounded by prose.
package sanitizer

import (
	"regexp"
	"strings"
)

var (
	// fenceLine matches a code fence opener (optionally tagged) or closer
	fenceLine = regexp.MustCompile("^```[A-Za-z0-9_+-]*$")

	// selectorLine matches lines made only of characters that can appear in a
	// selector list
	selectorLine = regexp.MustCompile(`^[a-zA-Z0-9\s\-_#.,>+~\[\]:()@*="'|^$]+$`)

	// pseudoColon matches a colon used by a pseudo-class or pseudo-element
	pseudoColon = regexp.MustCompile(`:[:a-zA-Z-]`)

	// declaration matches a single "property: value;" line
	declaration = regexp.MustCompile(`^-{0,2}[a-zA-Z][a-zA-Z0-9-]*\s*:\s*[^;{}]+;$`)

	// atRule matches the head of a CSS at-rule whose brace is on a later line
	atRule = regexp.MustCompile(`^@(media|supports|import|font-face|keyframes|-webkit-keyframes|layer|container|page|charset|namespace)\b`)
)

// Sanitize returns the CSS found in raw. When no clear CSS boundaries exist it
// returns the fence-stripped, trimmed input.
func Sanitize(raw string) string {
	out, _ := Extract(raw)
	return out
}

// Extract is Sanitize that also reports whether CSS boundaries were found.
// A false result means the fallback (fence-stripped input) was returned.
func Extract(raw string) (string, bool) {
	lines := stripFences(splitLines(raw))

	start := -1
	for i, line := range lines {
		if isCSSStart(strings.TrimSpace(line)) || opensSelectorList(lines, i) {
			start = i
			break
		}
	}

	end := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], "}") {
			end = i
			break
		}
	}

	if start >= 0 && end >= 0 && start <= end {
		return strings.TrimSpace(strings.Join(lines[start:end+1], "\n")), true
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), false
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

func stripFences(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if fenceLine.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

// opensSelectorList reports whether lines[i] is a selector ending in a comma
// whose list continues, one selector per line, up to a line with a brace.
// This keeps "h1," in "h1,\nh2 {" while prose ending in a comma is skipped.
func opensSelectorList(lines []string, i int) bool {
	if !isListedSelector(strings.TrimSpace(lines[i])) {
		return false
	}
	for i++; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "" || isListedSelector(line):
			continue
		case strings.Contains(line, "{"):
			head := strings.TrimSpace(line[:strings.Index(line, "{")])
			return head == "" || selectorLine.MatchString(head)
		default:
			return false
		}
	}
	return false
}

// isListedSelector matches one selector followed by a comma. Prose such as
// "Sure, here you go," has several commas or starts with a capital letter.
func isListedSelector(line string) bool {
	if !strings.HasSuffix(line, ",") || strings.Count(line, ",") != 1 {
		return false
	}
	if c := line[0]; c >= 'A' && c <= 'Z' {
		return false
	}
	return selectorLine.MatchString(line)
}

// isCSSStart reports whether a trimmed line plausibly begins CSS
func isCSSStart(line string) bool {
	if line == "" {
		return false
	}
	if strings.Contains(line, "{") {
		return true
	}
	if atRule.MatchString(line) || declaration.MatchString(line) {
		return true
	}
	return selectorLine.MatchString(line) && pseudoColon.MatchString(line)
}
