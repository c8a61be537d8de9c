package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	applyMarker = regexp.MustCompile(`(?i)\bapply(?:\s+now)?\s+to\b\s*:?`)
	itemSplit   = regexp.MustCompile(`[,;|\n•·▪‣◦]+`)
	andMore     = regexp.MustCompile(`(?i)\s*(?:,\s*)?and\s+(?:many\s+)?more\s*$`)
)

// ExtractContext returns the titles listed after an "Apply to" marker, in
// source order, deduplicated case-insensitively with first-seen casing kept.
// It returns an empty slice when the text has no such list.
func ExtractContext(text string) []string {
	titles := []string{}
	seen := make(map[string]bool)

	for _, loc := range applyMarker.FindAllStringIndex(text, -1) {
		section := sectionAfter(text[loc[1]:])

		for _, item := range itemSplit.Split(section, -1) {
			item = cleanItem(item)
			if !usableItem(item) {
				continue
			}
			key := strings.ToLower(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			titles = append(titles, item)
		}
	}

	return titles
}

// sectionAfter cuts text at the end of the list: a sentence terminator,
// a blank line, or the end of the text
func sectionAfter(text string) string {
	if i := strings.Index(text, "\n\n"); i >= 0 {
		text = text[:i]
	}
	for i, r := range text {
		switch r {
		case '!', '?':
			return text[:i]
		case '.':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				return text[:i]
			}
		}
	}
	return text
}

func cleanItem(item string) string {
	item = strings.TrimSpace(item)
	item = strings.TrimLeft(item, "-*+> ")
	item = andMore.ReplaceAllString(item, "")
	if rest, ok := cutPrefixFold(item, "and "); ok {
		item = rest
	}
	if rest, ok := cutPrefixFold(item, "or "); ok {
		item = rest
	}
	return strings.Trim(item, ` "'()[]:.`)
}

func usableItem(item string) bool {
	if len([]rune(item)) < 2 {
		return false
	}
	return strings.IndexFunc(item, func(r rune) bool { return !unicode.IsDigit(r) && !unicode.IsSpace(r) }) >= 0
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):]), true
	}
	return s, false
}
