package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrStoreUnavailable     = errors.New("vector store unavailable")
	ErrRerankUnavailable    = errors.New("reranker unavailable")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrEmptyCandidateSet    = errors.New("empty candidate set")
	ErrUngroundedCitation   = errors.New("ungrounded citation")
)

// UngroundedCitationError reports answer markers that do not match any source.
type UngroundedCitationError struct {
	Numbers []int
	Sources int
}

func (e *UngroundedCitationError) Error() string {
	return fmt.Sprintf("ungrounded citation: markers %v outside [1,%d]", e.Numbers, e.Sources)
}

func (e *UngroundedCitationError) Unwrap() error { return ErrUngroundedCitation }

// Invalid returns an ErrInvalidInput carrying a description.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
