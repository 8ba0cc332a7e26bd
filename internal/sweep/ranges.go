package sweep

import (
	"fmt"
	"math"
	"strconv"
)

// MaxCombinations caps the size of any cartesian product built by this
// package, per strategy and across strategies.
const MaxCombinations = 10000

// gridSignificantDigits is the precision float grid points are normalised to
// so that low + i*increment lands on the decimal value a user wrote.
const gridSignificantDigits = 12

// GenerateRange returns the arithmetic progression from low to high
// inclusive. Each point is computed as low + i*step rather than by repeated
// addition, and the upper bound is kept even when step does not divide the
// range exactly in binary floating point.
func GenerateRange(low, high, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}
	if low > high {
		return nil, fmt.Errorf("bound_low %v exceeds bound_high %v", low, high)
	}

	span := (high - low) / step
	count := int(math.Floor(span+1e-9)) + 1
	if count > MaxCombinations || count < 0 {
		return nil, fmt.Errorf("range %v..%v step %v would exceed safe limit of %d values", low, high, step, MaxCombinations)
	}

	result := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		v := normalise(low + float64(i)*step)
		if v > high {
			v = high
		}
		result = append(result, v)
	}
	return result, nil
}

// GenerateIntRange returns the integers from low to high inclusive in steps
// of step. Any bounds are accepted, including the extremes of int.
func GenerateIntRange(low, high, step int) ([]int, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}
	if low > high {
		return nil, fmt.Errorf("bound_low %d exceeds bound_high %d", low, high)
	}
	count, ok := intRangeCount(low, high, step)
	if !ok {
		return nil, fmt.Errorf("range %d..%d step %d would exceed safe limit of %d values", low, high, step, MaxCombinations)
	}
	result := make([]int, 0, count)
	for i := 0; i < count; i++ {
		result = append(result, int(uint64(low)+uint64(i)*uint64(step)))
	}
	return result, nil
}

// intRangeCount returns the number of points in low..high by step, or false
// when it exceeds MaxCombinations. The span is taken in uint64 so that it
// cannot overflow for low <= high.
func intRangeCount(low, high, step int) (int, bool) {
	span := uint64(high) - uint64(low)
	n := span / uint64(step)
	if n >= MaxCombinations {
		return 0, false
	}
	return int(n) + 1, true
}

func normalise(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', gridSignificantDigits, 64), 64)
	if err != nil {
		return v
	}
	if r == 0 {
		// Avoid -0 in written documents.
		return 0
	}
	return r
}

// cartesian returns the index tuples of the cartesian product of dimensions
// with the given sizes. The last dimension varies fastest. Zero dimensions
// yield a single empty tuple.
func cartesian(sizes []int) ([][]int, error) {
	total := int64(1)
	for _, n := range sizes {
		total *= int64(n)
		if total > MaxCombinations || total < 0 {
			return nil, fmt.Errorf("%w: parameter combinations would exceed safe limit of %d", ErrConfiguration, MaxCombinations)
		}
	}
	if total == 0 {
		return nil, nil
	}

	result := make([][]int, total)
	for i := range result {
		result[i] = make([]int, len(sizes))
	}

	repeat := int64(1)
	for dim := len(sizes) - 1; dim >= 0; dim-- {
		cycle := int64(sizes[dim])
		for i := int64(0); i < total; i++ {
			result[i][dim] = int((i / repeat) % cycle)
		}
		repeat *= cycle
	}
	return result, nil
}

// product combines per-parameter value lists into full tuples.
func product(lists [][]any) ([][]any, error) {
	sizes := make([]int, len(lists))
	for i, l := range lists {
		sizes[i] = len(l)
	}
	idx, err := cartesian(sizes)
	if err != nil {
		return nil, err
	}
	out := make([][]any, len(idx))
	for i, tuple := range idx {
		row := make([]any, len(tuple))
		for dim, j := range tuple {
			row[dim] = lists[dim][j]
		}
		out[i] = row
	}
	return out, nil
}
