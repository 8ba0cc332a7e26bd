package sweep

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateRange(t *testing.T) {
	testCases := []struct {
		name      string
		low       float64
		high      float64
		step      float64
		expected  []float64
		expectErr bool
	}{
		{"inclusive_upper_bound", 0.0, 0.6, 0.2, []float64{0.0, 0.2, 0.4, 0.6}, false},
		{"five_points", 0.0, 0.8, 0.2, []float64{0.0, 0.2, 0.4, 0.6, 0.8}, false},
		{"tenths", 0.1, 0.5, 0.1, []float64{0.1, 0.2, 0.3, 0.4, 0.5}, false},
		{"step_not_dividing", 0, 1, 0.3, []float64{0, 0.3, 0.6, 0.9}, false},
		{"negative_values", -1.0, 1.0, 0.5, []float64{-1.0, -0.5, 0, 0.5, 1.0}, false},
		{"single_value", 5.0, 5.0, 1.0, []float64{5.0}, false},
		{"step_larger_than_range", 0, 1, 5, []float64{0}, false},
		{"small_step", 0.001, 0.005, 0.001, []float64{0.001, 0.002, 0.003, 0.004, 0.005}, false},
		{"zero_step", 0, 1, 0, nil, true},
		{"negative_step", 0, 1, -0.1, nil, true},
		{"inverted", 1, 0, 0.1, nil, true},
		{"too_many", 0, 1, 1e-6, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := GenerateRange(tc.low, tc.high, tc.step)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("GenerateRange(%v, %v, %v) mismatch (-want +got):\n%s", tc.low, tc.high, tc.step, diff)
			}
		})
	}
}

func TestGenerateIntRange(t *testing.T) {
	testCases := []struct {
		name      string
		low       int
		high      int
		step      int
		expected  []int
		expectErr bool
	}{
		{"simple", 1, 5, 1, []int{1, 2, 3, 4, 5}, false},
		{"step_two", 0, 10, 2, []int{0, 2, 4, 6, 8, 10}, false},
		{"not_dividing", 0, 10, 3, []int{0, 3, 6, 9}, false},
		{"negative", -5, 5, 5, []int{-5, 0, 5}, false},
		{"zero_step", 0, 10, 0, nil, true},
		{"inverted", 10, 0, 1, nil, true},
		{"too_many", 0, 1000000, 1, nil, true},
		{"top_of_int", math.MaxInt - 5, math.MaxInt, 10, []int{math.MaxInt - 5}, false},
		{"top_of_int_step_two", math.MaxInt - 4, math.MaxInt, 2, []int{math.MaxInt - 4, math.MaxInt - 2, math.MaxInt}, false},
		{"bottom_of_int", math.MinInt, math.MinInt + 2, 1, []int{math.MinInt, math.MinInt + 1, math.MinInt + 2}, false},
		{"full_int_span", math.MinInt, math.MaxInt, math.MaxInt, []int{math.MinInt, -1, math.MaxInt - 1}, false},
		{"full_int_span_too_many", math.MinInt, math.MaxInt, 1, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := GenerateIntRange(tc.low, tc.high, tc.step)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCartesian(t *testing.T) {
	testCases := []struct {
		name     string
		sizes    []int
		expected [][]int
	}{
		{"empty", nil, [][]int{{}}},
		{"single", []int{3}, [][]int{{0}, {1}, {2}}},
		{"last_varies_fastest", []int{2, 2}, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}},
		{"zero_dimension", []int{2, 0}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := cartesian(tc.sizes)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCartesian_Limit(t *testing.T) {
	_, err := cartesian([]int{101, 100})
	if err == nil {
		t.Fatal("Expected error for oversized product")
	}
}
