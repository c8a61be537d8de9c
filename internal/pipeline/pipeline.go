package pipeline

import (
	"fmt"

	"github.com/ppiankov/jobsift/internal/classify"
	"github.com/ppiankov/jobsift/internal/extract"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

// Pipeline runs normalize -> title -> context -> classify for one posting
type Pipeline struct {
	titles     *extract.TitleExtractor
	classifier *classify.Classifier
}

// NewPipeline creates a pipeline bound to one taxonomy
func NewPipeline(tax *taxonomy.Taxonomy) *Pipeline {
	return &Pipeline{
		titles:     extract.NewTitleExtractor(tax.Lexicon()),
		classifier: classify.NewClassifier(tax),
	}
}

// TaxonomyVersion identifies the taxonomy behind the pipeline's results
func (p *Pipeline) TaxonomyVersion() string {
	return p.classifier.Taxonomy().Version()
}

// Process classifies one posting. A panic inside the pipeline is returned
// as an error so one bad row cannot take down a batch.
func (p *Pipeline) Process(posting model.Posting) (row model.ProcessedRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	text := extract.Normalize(posting.RawText)

	// 1. Title
	extraction := p.titles.Extract(text)

	// 2. Context list
	context := extract.ExtractContext(text)

	// 3. Category
	classification := p.classifier.Classify(extraction, context)

	return model.ProcessedRow{
		Posting:        posting,
		Extraction:     extraction,
		Context:        context,
		Classification: classification,
	}, nil
}

// Failed builds the degraded row recorded when processing a posting fails
func Failed(posting model.Posting, cause error) model.ProcessedRow {
	return model.ProcessedRow{
		Posting: posting,
		Extraction: model.ExtractionResult{
			Title:       model.UnknownTitle,
			MatchedRule: model.RuleError,
		},
		Context: []string{},
		Classification: model.ClassificationResult{
			Category:  model.CategoryOther,
			Precision: model.PrecisionOther,
		},
		Error: cause.Error(),
	}
}
