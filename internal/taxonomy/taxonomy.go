package taxonomy

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTaxonomy []byte

// regexPrefix marks a pattern as a regular expression
const regexPrefix = "re:"

// Pattern is one exact or general category pattern
type Pattern struct {
	Source string
	tokens []string
	re     *regexp.Regexp
}

// Len is the pattern's token length, used to prefer more specific matches
func (p Pattern) Len() int {
	return len(p.tokens)
}

// Match reports whether the pattern matches a tokenized title
func (p Pattern) Match(tokens []string) bool {
	if p.re != nil {
		return p.re.MatchString(strings.Join(tokens, " "))
	}
	return containsSequence(tokens, p.tokens)
}

// Category is one named taxonomy entry
type Category struct {
	Name    string
	Exact   []Pattern
	General []Pattern
}

// Lexicon holds the word lists used by title extraction
type Lexicon struct {
	Marketing []string // Marketing phrases stripped from titles
	Locations []string // Location-only tokens; all-caps entries match case-sensitively
	Filler    []string // Words dropped from titles at no confidence cost
	Acronyms  []string
	JobWords  []string // Words that mark text as a job posting
}

// Taxonomy is the immutable category configuration shared by all rows
type Taxonomy struct {
	version    string
	categories []Category
	lexicon    Lexicon
}

// Version identifies the taxonomy contents
func (t *Taxonomy) Version() string {
	return t.version
}

// Categories returns the categories in declaration order
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Lexicon returns the extraction word lists
func (t *Taxonomy) Lexicon() Lexicon {
	return t.lexicon
}

// Names returns category names in declaration order
func (t *Taxonomy) Names() []string {
	names := make([]string, 0, len(t.categories))
	for _, c := range t.categories {
		names = append(names, c.Name)
	}
	return names
}

type fileCategory struct {
	Name    string   `yaml:"name"`
	Exact   []string `yaml:"exact"`
	General []string `yaml:"general"`
}

type fileTaxonomy struct {
	Version    string         `yaml:"version"`
	Categories []fileCategory `yaml:"categories"`
	Noise      struct {
		Marketing []string `yaml:"marketing"`
		Locations []string `yaml:"locations"`
		Filler    []string `yaml:"filler"`
	} `yaml:"noise"`
	Acronyms []string `yaml:"acronyms"`
	JobWords []string `yaml:"job_words"`
}

// Default returns the built-in taxonomy
func Default() (*Taxonomy, error) {
	return Parse(defaultTaxonomy, "builtin")
}

// Load reads a taxonomy file. An empty path loads the built-in taxonomy.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Cause: err}
	}
	return Parse(data, path)
}

// Parse builds a taxonomy from YAML. source names the input in errors.
func Parse(data []byte, source string) (*Taxonomy, error) {
	var raw fileTaxonomy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Source: source, Cause: fmt.Errorf("parse yaml: %w", err)}
	}

	if len(raw.Categories) == 0 {
		return nil, &LoadError{Source: source, Cause: fmt.Errorf("no categories defined")}
	}

	t := &Taxonomy{
		version: raw.Version,
		lexicon: Lexicon{
			Marketing: cleanList(raw.Noise.Marketing),
			Locations: cleanList(raw.Noise.Locations),
			Filler:    cleanList(raw.Noise.Filler),
			Acronyms:  cleanList(raw.Acronyms),
			JobWords:  cleanList(raw.JobWords),
		},
	}
	if t.version == "" {
		sum := sha256.Sum256(data)
		t.version = hex.EncodeToString(sum[:])[:12]
	}

	seen := make(map[string]bool)
	for i, fc := range raw.Categories {
		name := strings.TrimSpace(fc.Name)
		if name == "" {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("category %d has no name", i)}
		}
		key := strings.ToLower(name)
		if key == strings.ToLower(OtherName) {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("category name %q is reserved", name)}
		}
		if seen[key] {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("duplicate category %q", name)}
		}
		seen[key] = true

		if len(fc.Exact) == 0 && len(fc.General) == 0 {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("category %q has no patterns", name)}
		}

		exact, err := compilePatterns(fc.Exact)
		if err != nil {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("category %q: %w", name, err)}
		}
		general, err := compilePatterns(fc.General)
		if err != nil {
			return nil, &LoadError{Source: source, Cause: fmt.Errorf("category %q: %w", name, err)}
		}

		t.categories = append(t.categories, Category{Name: name, Exact: exact, General: general})
	}

	return t, nil
}

// OtherName is reserved for the fallback category
const OtherName = "OTHER"

func compilePatterns(sources []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(sources))
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			return nil, fmt.Errorf("empty pattern")
		}

		if expr, ok := strings.CutPrefix(src, regexPrefix); ok {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", src, err)
			}
			// Regex specificity is approximated by its space-separated pieces
			patterns = append(patterns, Pattern{Source: src, tokens: strings.Fields(expr), re: re})
			continue
		}

		tokens := Tokenize(src)
		if len(tokens) == 0 {
			return nil, fmt.Errorf("pattern %q has no words", src)
		}
		patterns = append(patterns, Pattern{Source: src, tokens: tokens})
	}
	return patterns, nil
}

// Tokenize lowercases text and splits it into word tokens.
// Letters, digits and '&' form tokens; apostrophes are dropped.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&':
			current.WriteRune(unicode.ToLower(r))
		case r == '\'' || r == '’':
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// containsSequence reports whether needle occurs contiguously in haystack
func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, tok := range needle {
			if haystack[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
