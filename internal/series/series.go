// Package series provides the validated market data series the
// simulation consumes. Ordering is a load-bearing invariant: a series
// that is out of order or contains duplicate timestamps is rejected at
// construction rather than producing silently-wrong analytics.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var (
	ErrEmptySeries        = errors.New("series: no bars")
	ErrUnsortedSeries     = errors.New("series: timestamps not strictly ascending")
	ErrDuplicateTimestamp = errors.New("series: duplicate timestamp")
	ErrInvalidBar         = errors.New("series: inconsistent OHLC bar")
)

// Series is an ordered, deduplicated-by-timestamp sequence of bars.
// Once constructed it is read-only.
type Series struct {
	bars []types.Bar
}

// New validates the bars and wraps them. The slice is not copied; the
// caller must not mutate it afterwards.
func New(bars []types.Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	for i, b := range bars {
		if err := checkBar(b); err != nil {
			return nil, fmt.Errorf("bar %d at %s: %w", i, b.Timestamp.Format(time.RFC3339), err)
		}
		if i == 0 {
			continue
		}
		switch {
		case b.Timestamp.Equal(bars[i-1].Timestamp):
			return nil, fmt.Errorf("bar %d at %s: %w", i, b.Timestamp.Format(time.RFC3339), ErrDuplicateTimestamp)
		case b.Timestamp.Before(bars[i-1].Timestamp):
			return nil, fmt.Errorf("bar %d at %s: %w", i, b.Timestamp.Format(time.RFC3339), ErrUnsortedSeries)
		}
	}
	return &Series{bars: bars}, nil
}

func checkBar(b types.Bar) error {
	if b.Open.IsNegative() || b.High.IsNegative() || b.Low.IsNegative() || b.Close.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidBar)
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("%w: high %s below low %s", ErrInvalidBar, b.High, b.Low)
	}
	if b.Open.GreaterThan(b.High) || b.Open.LessThan(b.Low) {
		return fmt.Errorf("%w: open %s outside [low, high]", ErrInvalidBar, b.Open)
	}
	if b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low) {
		return fmt.Errorf("%w: close %s outside [low, high]", ErrInvalidBar, b.Close)
	}
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s *Series) At(i int) types.Bar { return s.bars[i] }

// Bars returns the underlying bars. Callers must treat the slice as
// read-only.
func (s *Series) Bars() []types.Bar { return s.bars }

// First returns the earliest bar.
func (s *Series) First() types.Bar { return s.bars[0] }

// Last returns the latest bar.
func (s *Series) Last() types.Bar { return s.bars[len(s.bars)-1] }

// Slice returns the sub-series bars[start:end]. The invariants of the
// parent carry over, so no re-validation is needed.
func (s *Series) Slice(start, end int) (*Series, error) {
	if start < 0 || end > len(s.bars) || start >= end {
		return nil, fmt.Errorf("series: invalid slice [%d:%d] of %d bars", start, end, len(s.bars))
	}
	return &Series{bars: s.bars[start:end]}, nil
}
