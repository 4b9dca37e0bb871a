package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine(nil, []float64{1}))
	assert.Equal(t, 0.0, Cosine([]float64{math.NaN(), 1}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float64{math.Inf(1), 0}, []float64{1, 0}))
}

func TestUngroundedCitationErrorUnwraps(t *testing.T) {
	var err error = &UngroundedCitationError{Numbers: []int{4}, Sources: 2}
	wrapped := fmt.Errorf("compose: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUngroundedCitation))
	var uerr *UngroundedCitationError
	assert.True(t, errors.As(wrapped, &uerr))
	assert.Equal(t, []int{4}, uerr.Numbers)
	assert.Contains(t, err.Error(), "[1,2]")
}

func TestInvalid(t *testing.T) {
	err := Invalid("top_k must be in [1,%d]", 20)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: top_k must be in [1,20]", err.Error())
}
