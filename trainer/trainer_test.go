package trainer

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"mllab/dataset"
)

// blob builds a two-class cluster dataset that a small network separates
// quickly.
func blob(n int) (features [][]float64, labels []int) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < n; i++ {
		cls := i % 2
		base := float64(cls)
		features = append(features, []float64{
			base + rng.Float64()*0.2,
			base + rng.Float64()*0.2,
		})
		labels = append(labels, cls)
	}
	return features, labels
}

func testOptions() Options {
	return Options{Epochs: 40, ValidationSplit: 0.15, Hidden: []int{8}, LearningRate: 0.01, Seed: 9}
}

func TestTrainClassifierInsufficientSamples(t *testing.T) {
	features, labels := blob(9)
	_, _, err := TrainClassifier(context.Background(), features, labels, []string{"a", "b"}, testOptions(), nil)
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestTrainClassifierInsufficientClasses(t *testing.T) {
	features, _ := blob(12)
	labels := make([]int, len(features))
	_, _, err := TrainClassifier(context.Background(), features, labels, []string{"only"}, testOptions(), nil)
	if !errors.Is(err, ErrInsufficientClasses) {
		t.Fatalf("expected ErrInsufficientClasses, got %v", err)
	}
}

func TestTrainClassifierRejectsBadOrdinals(t *testing.T) {
	features, labels := blob(12)
	labels[3] = 7
	_, _, err := TrainClassifier(context.Background(), features, labels, []string{"a", "b"}, testOptions(), nil)
	if err == nil {
		t.Fatal("expected error for out-of-range label ordinal")
	}
}

func TestTrainClassifierLearnsSeparableData(t *testing.T) {
	features, labels := blob(60)
	var progressCalls int
	model, stats, err := TrainClassifier(context.Background(), features, labels, []string{"low", "high"}, testOptions(), func(p Progress) {
		progressCalls++
		if p.Epochs != 40 {
			t.Fatalf("unexpected epoch total: %d", p.Epochs)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progressCalls != 40 {
		t.Fatalf("expected 40 progress callbacks, got %d", progressCalls)
	}
	if model.Task != dataset.TaskClassification || model.NumClasses != 2 {
		t.Fatalf("unexpected model: %+v", model)
	}
	if model.InputDim != 2 {
		t.Fatalf("unexpected input dim: %d", model.InputDim)
	}
	if stats.Samples != 60 || stats.Features != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ValAccuracy < 80 {
		t.Fatalf("expected high validation accuracy, got %v", stats.ValAccuracy)
	}

	out, err := model.Net.Forward([]float64{1.1, 1.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[1] <= out[0] {
		t.Fatalf("expected class high to win, got %v", out)
	}
}

func TestTrainRegressorLearnsIdentity(t *testing.T) {
	var features [][]float64
	var targets []float64
	for i := 0; i < 40; i++ {
		x := float64(i) / 39
		features = append(features, []float64{x})
		targets = append(targets, x)
	}
	opts := testOptions()
	opts.Epochs = 100
	model, stats, err := TrainRegressor(context.Background(), features, targets, opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Task != dataset.TaskRegression {
		t.Fatalf("unexpected task: %s", model.Task)
	}
	if stats.FinalLoss <= 0 {
		t.Fatalf("expected positive loss, got %v", stats.FinalLoss)
	}
	out, _ := model.Net.Forward([]float64{0.5})
	if out[0] < 0.2 || out[0] > 0.8 {
		t.Fatalf("expected midpoint output near 0.5, got %v", out[0])
	}
}

func TestTrainClassifierCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	features, labels := blob(60)
	_, _, err := TrainClassifier(ctx, features, labels, []string{"a", "b"}, testOptions(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBatchSizeBound(t *testing.T) {
	cases := []struct{ samples, want int }{
		{1, 1},
		{2, 1},
		{3, 1},
		{10, 5},
		{20, 10},
		{32, 16},
		{100, 16},
	}
	for _, c := range cases {
		if got := BatchSizeBound(c.samples); got != c.want {
			t.Fatalf("BatchSizeBound(%d) = %d, want %d", c.samples, got, c.want)
		}
	}
}

func TestDefaultOptionsPerMode(t *testing.T) {
	img := DefaultOptions(dataset.ModeImage)
	if img.Epochs != 30 || len(img.Hidden) != 2 {
		t.Fatalf("unexpected image options: %+v", img)
	}
	txt := DefaultOptions(dataset.ModeText)
	if txt.Epochs != 40 || len(txt.Hidden) != 3 {
		t.Fatalf("unexpected text options: %+v", txt)
	}
	tab := DefaultOptions(dataset.ModeTabular)
	if tab.Epochs != 50 || len(tab.Hidden) != 2 {
		t.Fatalf("unexpected tabular options: %+v", tab)
	}
}
