package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

const (
	countLocationBase = 0.9
	countTitleBase    = 0.75
	capitalSpanBase   = 0.5
	noisePenalty      = 0.1
	confidenceFloor   = 0.1
)

// titleChars is the shape of a TITLE inside the leading count patterns
const titleChars = `([A-Z][A-Za-z&'/ -]*?)\s+(?i:jobs?)\b`

var (
	countCityState = regexp.MustCompile(`^\d[\d,]*\+?\s+([A-Za-z][A-Za-z.' -]*?,\s*[A-Z]{2})\s+` + titleChars)
	countTitle     = regexp.MustCompile(`^\d[\d,]*\+?\s+` + titleChars)
)

// connectors are trimmed from both ends of a cleaned title
var connectors = map[string]bool{
	"in": true, "at": true, "for": true, "near": true, "of": true,
	"and": true, "the": true, "&": true, "-": true, "to": true,
}

// titleRule is one entry of the ordered extraction rule list
type titleRule struct {
	id       model.ExtractionRule
	base     float64
	fallback bool
	match    func(sentence string) []string
}

// phrase is a lexicon entry split into comparable tokens
type phrase struct {
	text          string
	tokens        []string
	caseSensitive bool
}

// TitleExtractor finds the most likely job title in posting text
type TitleExtractor struct {
	rules     []titleRule
	noise     []phrase // marketing and location phrases, longest first
	locations []phrase
	marketing []phrase
	filler    map[string]bool
	acronyms  map[string]bool
	address   *AddressDetector
}

// NewTitleExtractor creates a title extractor from a taxonomy lexicon
func NewTitleExtractor(lex taxonomy.Lexicon) *TitleExtractor {
	e := &TitleExtractor{
		marketing: buildPhrases(lex.Marketing),
		locations: buildPhrases(lex.Locations),
		filler:    make(map[string]bool),
		acronyms:  make(map[string]bool),
		address:   NewAddressDetector(lex.JobWords),
	}

	e.noise = append(append([]phrase{}, e.marketing...), e.locations...)
	sort.SliceStable(e.noise, func(i, j int) bool {
		return len(e.noise[i].tokens) > len(e.noise[j].tokens)
	})

	for _, w := range lex.Filler {
		e.filler[strings.ToLower(w)] = true
	}
	for _, a := range lex.Acronyms {
		e.acronyms[strings.ToUpper(a)] = true
	}

	countPlace := placePattern(lex.Locations)

	e.rules = []titleRule{
		{
			id:   model.RuleCountLocation,
			base: countLocationBase,
			match: func(sentence string) []string {
				if m := countCityState.FindStringSubmatch(sentence); m != nil && !mentionsJobs(m[1]) {
					return []string{m[2]}
				}
				if countPlace != nil {
					if m := countPlace.FindStringSubmatch(sentence); m != nil {
						return []string{m[2]}
					}
				}
				return nil
			},
		},
		{
			id:   model.RuleCountTitle,
			base: countTitleBase,
			match: func(sentence string) []string {
				if m := countTitle.FindStringSubmatch(sentence); m != nil {
					return []string{m[1]}
				}
				return nil
			},
		},
		{
			id:       model.RuleCapitalSpan,
			base:     capitalSpanBase,
			fallback: true,
			match:    e.capitalSpans,
		},
	}

	return e
}

// Extract returns the best title candidate for normalized posting text
func (e *TitleExtractor) Extract(text string) model.ExtractionResult {
	if e.address.IsAddress(text) {
		return model.ExtractionResult{Title: model.UnknownTitle, MatchedRule: model.RuleAddress}
	}

	sentence := FirstSentence(text)

	// Once a leading pattern matched, an emptied candidate falls through to the span rule only
	matched := false
	for _, rule := range e.rules {
		if matched && !rule.fallback {
			continue
		}
		candidates := rule.match(sentence)
		if len(candidates) == 0 {
			continue
		}
		matched = true

		for _, candidate := range candidates {
			title, hits := e.clean(candidate)
			if title == "" {
				continue
			}
			confidence := rule.base - noisePenalty*float64(len(hits))
			if confidence < confidenceFloor {
				confidence = confidenceFloor
			}
			return model.ExtractionResult{
				Title:       title,
				Confidence:  round2(confidence),
				MatchedRule: rule.id,
				NoiseHits:   hits,
			}
		}
	}

	return model.ExtractionResult{Title: model.UnknownTitle, MatchedRule: model.RuleNone}
}

// clean strips noise from a candidate and returns the title plus the denylist hits
func (e *TitleExtractor) clean(candidate string) (string, []string) {
	words := strings.Fields(candidate)
	keep := make([]bool, len(words))
	for i := range keep {
		keep[i] = true
	}

	var hits []string
	for _, p := range e.noise {
		for i := 0; i+len(p.tokens) <= len(words); i++ {
			if !allKept(keep, i, len(p.tokens)) || !p.matchAt(words, i) {
				continue
			}
			for j := i; j < i+len(p.tokens); j++ {
				keep[j] = false
			}
			hits = append(hits, p.text)
		}
	}

	var out []string
	for i, w := range words {
		if !keep[i] {
			continue
		}
		if e.filler[comparable(w)] {
			continue
		}
		out = append(out, w)
	}

	out = trimConnectors(out)
	if len(out) == 0 {
		return "", hits
	}

	title := strings.Trim(strings.Join(out, " "), " ,.;:!?-|/")
	if !hasLetter(title) {
		return "", hits
	}
	return e.titleCase(title), hits
}

// capitalSpans lists capitalized spans of a sentence, longest first
func (e *TitleExtractor) capitalSpans(sentence string) []string {
	type span struct {
		text  string
		words int
		pos   int
	}

	var spans []span
	var current []string
	start := 0

	flush := func() {
		current = trimConnectors(current)
		if len(current) > 0 {
			text := strings.Trim(strings.Join(current, " "), " ,.;:!?")
			if !e.isNoisePhrase(text) {
				spans = append(spans, span{text: text, words: len(current), pos: start})
			}
		}
		current = nil
	}

	for i, w := range strings.Fields(sentence) {
		core := strings.TrimLeft(w, `("'[`)
		switch {
		case w == "&" && len(current) > 0:
			current = append(current, w)
		case startsUpper(core):
			if len(current) == 0 {
				start = i
			}
			current = append(current, w)
			if strings.ContainsAny(w[len(w)-1:], ",;:!?)") {
				flush()
			}
		default:
			flush()
		}
	}
	flush()

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].words != spans[j].words {
			return spans[i].words > spans[j].words
		}
		if len(spans[i].text) != len(spans[j].text) {
			return len(spans[i].text) > len(spans[j].text)
		}
		return spans[i].pos < spans[j].pos
	})

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.text)
	}
	return out
}

// isNoisePhrase reports whether text is entirely one location or marketing phrase
func (e *TitleExtractor) isNoisePhrase(text string) bool {
	words := strings.Fields(text)
	for _, p := range e.noise {
		if len(p.tokens) == len(words) && p.matchAt(words, 0) {
			return true
		}
	}
	return false
}

// titleCase rewrites an all-caps title in title case, keeping acronyms
func (e *TitleExtractor) titleCase(title string) string {
	if strings.IndexFunc(title, unicode.IsLower) >= 0 {
		return title
	}

	words := strings.Fields(title)
	for i, w := range words {
		parts := strings.Split(w, "-")
		for j, p := range parts {
			if e.acronyms[p] || !hasLetter(p) {
				continue
			}
			r := []rune(strings.ToLower(p))
			r[0] = unicode.ToUpper(r[0])
			parts[j] = string(r)
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " ")
}

func buildPhrases(items []string) []phrase {
	out := make([]phrase, 0, len(items))
	for _, item := range items {
		words := strings.Fields(item)
		if len(words) == 0 {
			continue
		}
		caseSensitive := strings.IndexFunc(item, unicode.IsLower) < 0
		tokens := make([]string, len(words))
		for i, w := range words {
			if caseSensitive {
				tokens[i] = strings.Trim(w, punctuation)
			} else {
				tokens[i] = comparable(w)
			}
		}
		out = append(out, phrase{text: item, tokens: tokens, caseSensitive: caseSensitive})
	}
	return out
}

func (p phrase) matchAt(words []string, i int) bool {
	for j, tok := range p.tokens {
		w := words[i+j]
		if p.caseSensitive {
			w = strings.Trim(w, punctuation)
		} else {
			w = comparable(w)
		}
		if w != tok {
			return false
		}
	}
	return true
}

// placePattern builds the "<count> <place> <TITLE> jobs" matcher from lexicon place names
func placePattern(locations []string) *regexp.Regexp {
	var names []string
	for _, loc := range locations {
		// All-caps state codes only count inside "CITY, ST"
		if strings.IndexFunc(loc, unicode.IsLower) < 0 {
			continue
		}
		names = append(names, regexp.QuoteMeta(loc))
	}
	if len(names) == 0 {
		return nil
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return regexp.MustCompile(`^\d[\d,]*\+?\s+((?i:` + strings.Join(names, "|") + `))\s+` + titleChars)
}

const punctuation = ` ,.;:!?()[]"'|`

// comparable lowercases a word and trims surrounding punctuation
func comparable(w string) string {
	return strings.ToLower(strings.Trim(w, punctuation))
}

func mentionsJobs(s string) bool {
	for _, w := range strings.Fields(s) {
		if c := comparable(w); c == "job" || c == "jobs" {
			return true
		}
	}
	return false
}

func trimConnectors(words []string) []string {
	for len(words) > 0 && connectors[comparable(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && connectors[comparable(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return words
}

func allKept(keep []bool, i, n int) bool {
	for j := i; j < i+n; j++ {
		if !keep[j] {
			return false
		}
	}
	return true
}

func startsUpper(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
