package vectorstore

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("CosineSimilarity() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWeightedAverage(t *testing.T) {
	single := []float32{3, 4}
	got, err := WeightedAverage([][]float32{single}, []int{7})
	if err != nil || got[0] != 3 || got[1] != 4 {
		t.Fatalf("single vector should pass through, got %v, %v", got, err)
	}

	// (1,0)*3 + (0,1)*1 over 4 = (0.75, 0.25), normalized
	got, err = WeightedAverage([][]float32{{1, 0}, {0, 1}}, []int{3, 1})
	if err != nil {
		t.Fatalf("WeightedAverage() error = %v", err)
	}
	norm := math.Sqrt(0.75*0.75 + 0.25*0.25)
	if math.Abs(float64(got[0])-0.75/norm) > 1e-6 || math.Abs(float64(got[1])-0.25/norm) > 1e-6 {
		t.Fatalf("unexpected average %v", got)
	}

	if _, err := WeightedAverage(nil, nil); err == nil {
		t.Fatalf("expected error for no vectors")
	}
	if _, err := WeightedAverage([][]float32{{1}, {1, 2}}, []int{1, 1}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
