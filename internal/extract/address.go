package extract

import (
	"regexp"
	"strings"
)

var (
	streetPattern = regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z0-9 .'-]+?\s+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|way|court|ct|place|pl|parkway|pkwy|highway|hwy)\b`)
	cityState     = regexp.MustCompile(`\b[A-Za-z][A-Za-z .'-]*,\s*[A-Z]{2}\b(?:\s+\d{5}(?:-\d{4})?)?`)
)

// AddressDetector recognizes address-only entries that carry no job title
type AddressDetector struct {
	jobWords map[string]bool
}

// NewAddressDetector creates a detector; any of jobWords marks text as a posting
func NewAddressDetector(jobWords []string) *AddressDetector {
	d := &AddressDetector{jobWords: make(map[string]bool)}
	for _, w := range jobWords {
		d.jobWords[strings.ToLower(w)] = true
	}
	return d
}

// IsAddress reports whether text is a street address with a city/state and no job wording
func (d *AddressDetector) IsAddress(text string) bool {
	if !streetPattern.MatchString(text) || !cityState.MatchString(text) {
		return false
	}
	for _, w := range strings.Fields(text) {
		if d.jobWords[comparable(w)] {
			return false
		}
	}
	return true
}
