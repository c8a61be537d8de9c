package pipeline

import (
	"sort"

	"github.com/ppiankov/jobsift/internal/model"
)

const (
	lowConfidence  = 0.5
	highConfidence = 0.7
)

// Summary aggregates classification results for reporting
type Summary struct {
	Total             int                     `json:"total"`
	Failed            int                     `json:"failed"`
	AverageConfidence float64                 `json:"average_confidence"`
	LowConfidence     int                     `json:"low_confidence"`  // confidence < 0.5
	HighConfidence    int                     `json:"high_confidence"` // confidence >= 0.7
	Categories        []CategoryCount         `json:"categories"`      // Most frequent first
	Precision         map[model.Precision]int `json:"precision"`
}

// CategoryCount is one row of the category distribution
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Summarize computes summary statistics over processed rows
func Summarize(rows []model.ProcessedRow) Summary {
	s := Summary{
		Total:     len(rows),
		Precision: make(map[model.Precision]int),
	}
	if len(rows) == 0 {
		return s
	}

	counts := make(map[string]int)
	var sum float64
	for _, row := range rows {
		c := row.Classification.Confidence
		sum += c
		if c < lowConfidence {
			s.LowConfidence++
		}
		if c >= highConfidence {
			s.HighConfidence++
		}
		if row.Failed() {
			s.Failed++
		}
		counts[row.Classification.Category]++
		s.Precision[row.Classification.Precision]++
	}
	s.AverageConfidence = sum / float64(len(rows))

	for name, n := range counts {
		s.Categories = append(s.Categories, CategoryCount{Category: name, Count: n})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		if s.Categories[i].Count != s.Categories[j].Count {
			return s.Categories[i].Count > s.Categories[j].Count
		}
		return s.Categories[i].Category < s.Categories[j].Category
	})

	return s
}
