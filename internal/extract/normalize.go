package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var tagPattern = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|/[a-zA-Z][a-zA-Z0-9]*|!--)[^>]*>`)

// Normalize cleans raw posting text for pattern matching.
// Runs of spaces collapse to one space, control characters are dropped, line
// breaks survive as "\n" and runs of blank lines collapse to a single blank
// line. Case is preserved. HTML markup, when present, is reduced to its
// visible text first.
func Normalize(raw string) string {
	text := strings.ToValidUTF8(raw, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if tagPattern.MatchString(text) {
		text = visibleText(text)
	}

	var out []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = cleanLine(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// cleanLine drops control and format characters and collapses whitespace
func cleanLine(line string) string {
	var buf strings.Builder
	for _, r := range line {
		switch {
		case unicode.IsSpace(r):
			buf.WriteRune(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == unicode.ReplacementChar:
		default:
			buf.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

// visibleText extracts text nodes from HTML, skipping scripts and styles.
// Block elements end a line so list items stay separable.
func visibleText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			case "br":
				buf.WriteString("\n")
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlock(n.Data) {
			buf.WriteString("\n")
		}
	}

	walk(doc)
	return buf.String()
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "ul", "ol", "tr", "table", "section", "article",
		"h1", "h2", "h3", "h4", "h5", "h6", "header", "footer":
		return true
	}
	return false
}

// FirstSentence returns the first line of normalized text, cut at the first
// sentence terminator that is followed by a space or the end of the line
func FirstSentence(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	for i, r := range line {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(line) || line[i+1] == ' ' {
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}
