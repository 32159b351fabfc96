// Package parser derives short display titles ("blurbs") from node content.
package parser

import (
	"strings"
	"unicode/utf8"
)

// DefaultBlurbLength bounds derived blurbs, in runes.
const DefaultBlurbLength = 50

// EmptyBlurb is used when content has no visible text.
const EmptyBlurb = "(empty)"

// Blurb returns a title for content: the first non-blank line with Markdown
// heading markers stripped, truncated to max runes. Content without any
// visible text yields EmptyBlurb.
func Blurb(content string, max int) string {
	if max <= 0 {
		max = DefaultBlurbLength
	}
	line := firstLine(content)
	if line == "" {
		return EmptyBlurb
	}
	return truncate(line, max)
}

// firstLine returns the first non-blank line, trimmed and without a leading
// "#"-style heading marker.
func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if h := stripHeading(trimmed); h != "" {
			return h
		}
	}
	return ""
}

func stripHeading(line string) string {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	if hashes == 0 || hashes > 6 {
		return line
	}
	rest := line[hashes:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		// "#tag" is not a heading.
		return line
	}
	return strings.TrimSpace(rest)
}

// truncate cuts s to at most max runes without splitting a rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return strings.TrimRight(s[:i], " \t")
		}
		n++
	}
	return s
}
