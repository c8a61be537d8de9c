package classify

import (
	"fmt"
	"math"

	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

// Classifier maps an extracted title and its context list to a taxonomy category.
// It holds no mutable state; identical inputs always give identical results.
type Classifier struct {
	tax        *taxonomy.Taxonomy
	categories []taxonomy.Category
}

// NewClassifier creates a classifier bound to one taxonomy
func NewClassifier(tax *taxonomy.Taxonomy) *Classifier {
	return &Classifier{
		tax:        tax,
		categories: tax.Categories(),
	}
}

// Taxonomy returns the taxonomy the classifier was built with
func (c *Classifier) Taxonomy() *taxonomy.Taxonomy {
	return c.tax
}

// match is the best pattern hit for one category
type match struct {
	index   int // Declaration order
	pattern taxonomy.Pattern
}

// Classify decides the category for a title. Tiers are tried in order:
// exact title match, exact context match, general title match, OTHER.
func (c *Classifier) Classify(extraction model.ExtractionResult, context []string) model.ClassificationResult {
	ext := extraction.Confidence
	tokens := taxonomy.Tokenize(extraction.Title)
	if extraction.Title == model.UnknownTitle && extraction.Confidence == 0 {
		tokens = nil
	}

	// 1. Exact phrase in the title
	if m, ok := c.best(tokens, exactPatterns); ok {
		return c.result(m, model.PrecisionExact, "title",
			0.85+0.15*ext, fmt.Sprintf("0.85 + 0.15 × %.2f", ext))
	}

	// 2. Exact phrase in the context list
	var contextHit *match
	for _, title := range context {
		m, ok := c.best(taxonomy.Tokenize(title), exactPatterns)
		if ok && (contextHit == nil || better(m, *contextHit)) {
			hit := m
			contextHit = &hit
		}
	}
	if contextHit != nil {
		return c.result(*contextHit, model.PrecisionGeneral, "context",
			0.6*ext+0.2, fmt.Sprintf("0.6 × %.2f + 0.2", ext))
	}

	// 3. General term in the title
	if m, ok := c.best(tokens, generalPatterns); ok {
		return c.result(m, model.PrecisionGeneral, "title",
			0.5*ext+0.1, fmt.Sprintf("0.5 × %.2f + 0.1", ext))
	}

	// 4. Nothing matched
	return model.ClassificationResult{
		Category:   model.CategoryOther,
		Precision:  model.PrecisionOther,
		Confidence: clamp(0.1 * ext),
		Formula:    fmt.Sprintf("0.1 × %.2f", ext),
	}
}

func exactPatterns(cat taxonomy.Category) []taxonomy.Pattern   { return cat.Exact }
func generalPatterns(cat taxonomy.Category) []taxonomy.Pattern { return cat.General }

// best finds the winning category at one pattern tier
func (c *Classifier) best(tokens []string, tier func(taxonomy.Category) []taxonomy.Pattern) (match, bool) {
	var winner match
	found := false

	if len(tokens) == 0 {
		return winner, false
	}

	for i, cat := range c.categories {
		for _, p := range tier(cat) {
			if !p.Match(tokens) {
				continue
			}
			m := match{index: i, pattern: p}
			if !found || better(m, winner) {
				winner = m
				found = true
			}
		}
	}

	return winner, found
}

// better prefers the longer pattern, then the earlier declared category
func better(a, b match) bool {
	if a.pattern.Len() != b.pattern.Len() {
		return a.pattern.Len() > b.pattern.Len()
	}
	return a.index < b.index
}

func (c *Classifier) result(m match, precision model.Precision, basis string, confidence float64, formula string) model.ClassificationResult {
	return model.ClassificationResult{
		Category:   c.categories[m.index].Name,
		Precision:  precision,
		Confidence: clamp(confidence),
		Basis:      basis,
		Pattern:    m.pattern.Source,
		Formula:    formula,
	}
}

// clamp bounds a confidence to [0,1] and rounds away float noise
func clamp(v float64) float64 {
	v = math.Round(v*10000) / 10000
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
