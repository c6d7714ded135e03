package grading

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func TestAggregateUniformWeights(t *testing.T) {
	cases := []struct {
		name    string
		entries []Entry
		want    float64
	}{
		{"two criteria", []Entry{{Score: 8, Max: 10, Weight: 1}, {Score: 14, Max: 20, Weight: 1}}, 14.67},
		{"perfect", []Entry{{Score: 10, Max: 10, Weight: 1}}, 20},
		{"zero score", []Entry{{Score: 0, Max: 10, Weight: 1}, {Score: 0, Max: 5, Weight: 1}}, 0},
		{"weight defaults to 1", []Entry{{Score: 8, Max: 10}, {Score: 14, Max: 20}}, 14.67},
		{"half", []Entry{{Score: 5, Max: 10, Weight: 1}}, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Aggregate(tc.entries); !almost(got, tc.want) {
				t.Errorf("Aggregate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAggregateWeighted(t *testing.T) {
	// ((0.5*2)+(0.9*1))/3*20 = 12.67
	entries := []Entry{
		{Score: 5, Max: 10, Weight: 2},
		{Score: 18, Max: 20, Weight: 1},
	}
	if got := Aggregate(entries); !almost(got, 12.67) {
		t.Errorf("Aggregate = %v, want 12.67", got)
	}
}

func TestAggregateWeightedSkipsZeroMax(t *testing.T) {
	entries := []Entry{
		{Score: 5, Max: 10, Weight: 2},
		{Score: 0, Max: 0, Weight: 3}, // text criterion, no points
	}
	if got := Aggregate(entries); !almost(got, 10) {
		t.Errorf("Aggregate = %v, want 10", got)
	}
}

func TestAggregateDegenerate(t *testing.T) {
	if got := Aggregate(nil); got != 0 {
		t.Errorf("Aggregate(nil) = %v, want 0", got)
	}
	if got := Aggregate([]Entry{{Score: 0, Max: 0, Weight: 1}}); got != 0 {
		t.Errorf("Aggregate(all zero max) = %v, want 0", got)
	}
}

func TestAggregatePrecomputedTotal(t *testing.T) {
	total := 13.5
	entries := []Entry{{Total: &total}, {Score: 0, Max: 20, Weight: 1}}
	if got := Aggregate(entries); got != 13.5 {
		t.Errorf("Aggregate = %v, want pass-through 13.5", got)
	}
}

func TestAggregateBoundedByScale(t *testing.T) {
	for _, entries := range [][]Entry{
		{{Score: 10, Max: 10, Weight: 5}, {Score: 3, Max: 3, Weight: 1}},
		{{Score: 1, Max: 7, Weight: 1}, {Score: 6, Max: 13, Weight: 1}},
	} {
		got := Aggregate(entries)
		if got < 0 || got > Scale {
			t.Errorf("Aggregate = %v, outside [0,%v]", got, Scale)
		}
	}
}

func TestValidate(t *testing.T) {
	ok, score := Validate([]Entry{{Score: 8, Max: 10, Weight: 1}, {Score: 7, Max: 10, Weight: 1}})
	if !ok || !almost(score, 15) {
		t.Errorf("Validate = (%v, %v), want (true, 15)", ok, score)
	}
	if ok, _ := Validate([]Entry{{Score: 11, Max: 10, Weight: 1}}); ok {
		t.Error("Validate accepted a score above max")
	}
	if ok, _ := Validate([]Entry{{Score: -1, Max: 10, Weight: 1}}); ok {
		t.Error("Validate accepted a negative score")
	}
	if ok, _ := Validate(nil); ok {
		t.Error("Validate accepted an empty entry set")
	}
	if ok, _ := Validate([]Entry{{Score: 0, Max: 0, Weight: 1}}); ok {
		t.Error("Validate accepted an all-zero-max set")
	}
}
