// Package windowstats keeps fixed-size windows of numeric samples and
// maintains a running statistic over them.
//
// Calculators are not safe for concurrent use. Callers sharing one across
// goroutines must guard it themselves.
package windowstats

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Number is the set of sample types a window can hold. All arithmetic on the
// statistic happens in the sample type itself, so integer windows truncate
// on division.
type Number interface {
	constraints.Integer | constraints.Float
}

// ErrInvalidArgument is returned when a window is constructed with a
// capacity it cannot hold.
var ErrInvalidArgument = errors.New("windowstats: invalid argument")

// checkCapacity rejects non-positive capacities and capacities that do not
// survive conversion to T, since the sample count is divided in T.
func checkCapacity[T Number](capacity int) error {
	if capacity <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "capacity %d must be positive", capacity)
	}
	if c := T(capacity); c <= 0 || int(c) != capacity {
		return errors.Wrapf(ErrInvalidArgument, "capacity %d overflows the sample type", capacity)
	}
	return nil
}
