// Package fold splits a price series into contiguous out-of-sample folds.
package fold

import (
	"errors"
	"fmt"

	"wfsweep/internal/domain"
)

const (
	// DefaultFolds is the fold count used when none is configured.
	DefaultFolds = 5
	// DefaultMinFoldSize is the warm-up floor per fold; with DefaultFolds it
	// requires at least 1000 bars.
	DefaultMinFoldSize = 200
)

// ErrInvalidFoldConfig is returned for a non-positive fold count or minimum
// fold size.
var ErrInvalidFoldConfig = errors.New("invalid fold configuration")

// InsufficientDataError reports a series too short for the requested folds.
type InsufficientDataError struct {
	Bars        int
	Folds       int
	MinFoldSize int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d bars < %d folds x %d min bars",
		e.Bars, e.Folds, e.MinFoldSize)
}

// Required returns the minimum series length that would have been accepted.
func (e *InsufficientDataError) Required() int { return e.Folds * e.MinFoldSize }

// Partition returns k equal folds of floor(n/k) bars covering
// [0, k*floor(n/k)). Remainder bars at the end of the series are discarded.
func Partition(n, k, minFoldSize int) ([]domain.Fold, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: fold count %d", ErrInvalidFoldConfig, k)
	}
	if minFoldSize < 1 {
		return nil, fmt.Errorf("%w: min fold size %d", ErrInvalidFoldConfig, minFoldSize)
	}
	if n < k*minFoldSize {
		return nil, &InsufficientDataError{Bars: n, Folds: k, MinFoldSize: minFoldSize}
	}

	size := n / k
	folds := make([]domain.Fold, k)
	for i := range folds {
		folds[i] = domain.Fold{ID: i, Start: i * size, End: (i + 1) * size}
	}
	return folds, nil
}
