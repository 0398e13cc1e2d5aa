package nn

import (
	"math"
	"testing"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Input: 0, Output: 2, Activation: Softmax}); err == nil {
		t.Fatal("expected error for zero input")
	}
	if _, err := New(Config{Input: 2, Output: 2, Activation: "sigmoid"}); err == nil {
		t.Fatal("expected error for unknown activation")
	}
	if _, err := New(Config{Input: 2, Output: 2, Activation: Softmax, Dropout: 1}); err == nil {
		t.Fatal("expected error for dropout of 1")
	}
}

func TestForwardShapeAndSoftmax(t *testing.T) {
	net, err := New(Config{Input: 4, Hidden: []int{8, 6}, Output: 3, Activation: Softmax, Seed: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if net.NumLayers() != 3 {
		t.Fatalf("expected 3 dense layers, got %d", net.NumLayers())
	}

	out, err := net.Forward([]float64{0.1, 0.5, 0.9, 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(out))
	}
	sum := 0.0
	for _, p := range out {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %v", sum)
	}
}

func TestForwardRejectsWrongDimension(t *testing.T) {
	net, err := New(Config{Input: 4, Output: 2, Activation: Softmax})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := net.Forward([]float64{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestForwardDeterministicWithSeed(t *testing.T) {
	a, _ := New(Config{Input: 3, Hidden: []int{4}, Output: 2, Activation: Softmax, Seed: 42})
	b, _ := New(Config{Input: 3, Hidden: []int{4}, Output: 2, Activation: Softmax, Seed: 42})

	x := []float64{0.3, 0.6, 0.9}
	outA, _ := a.Forward(x)
	outB, _ := b.Forward(x)
	for i := range outA {
		if outA[i] != outB[i] {
			t.Fatalf("seeded networks diverged at %d", i)
		}
	}
}

func TestTrainBatchReducesLoss(t *testing.T) {
	net, err := New(Config{
		Input: 2, Hidden: []int{8}, Output: 2,
		Activation: Softmax, LearningRate: 0.01, Seed: 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inputs := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	targets := [][]float64{{1, 0}, {1, 0}, {0, 1}, {0, 1}}

	before, err := net.Loss(inputs, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 200; i++ {
		if _, err := net.TrainBatch(inputs, targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	after, err := net.Loss(inputs, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after >= before {
		t.Fatalf("loss did not decrease: before=%v after=%v", before, after)
	}

	// The linearly separable split is learned to near certainty.
	out, _ := net.Forward([]float64{1, 0})
	if out[1] < 0.8 {
		t.Fatalf("expected second class, got %v", out)
	}
}

func TestTrainBatchLinearRegression(t *testing.T) {
	net, err := New(Config{
		Input: 1, Hidden: []int{8}, Output: 1,
		Activation: Linear, LearningRate: 0.01, Seed: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var inputs, targets [][]float64
	for i := 0; i <= 10; i++ {
		x := float64(i) / 10
		inputs = append(inputs, []float64{x})
		targets = append(targets, []float64{x})
	}
	for i := 0; i < 500; i++ {
		if _, err := net.TrainBatch(inputs, targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	out, _ := net.Forward([]float64{0.5})
	if math.Abs(out[0]-0.5) > 0.15 {
		t.Fatalf("expected roughly 0.5, got %v", out[0])
	}
}
