package taxonomy

import "fmt"

// LoadError reports a taxonomy that could not be read or validated.
// No job can run without a taxonomy, so callers treat it as fatal.
type LoadError struct {
	Source string
	Cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load taxonomy %s: %v", e.Source, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
