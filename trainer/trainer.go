// Package trainer runs the fixed training protocol: architecture selection
// per mode and task, shuffled mini-batches, a held-out validation split and
// precondition checks that reject degenerate data before any network is
// built.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/xh3b4sd/tracer"

	"mllab/dataset"
	"mllab/nn"
)

// MinSamples is the smallest training set the protocol accepts.
const MinSamples = 10

// MinClasses is the smallest usable class count for classification.
const MinClasses = 2

var (
	ErrInsufficientSamples = errors.New("insufficient samples")
	ErrInsufficientClasses = errors.New("insufficient classes")
	ErrTrainingFailed      = errors.New("training failed")
)

// Model is a trained network handle. It is valid only together with the
// codec whose Transform produced its training features; the session discards
// the two as a unit.
type Model struct {
	Net        *nn.Network
	Task       dataset.Task
	NumClasses int
	InputDim   int
	// Labels holds class names in first-seen ordinal order for
	// classification models.
	Labels []string
}

// Options is the per-run training protocol.
type Options struct {
	Epochs          int
	BatchSize       int // 0 selects the size bound from the sample count
	ValidationSplit float64
	Hidden          []int
	Dropout         float64
	LearningRate    float64
	Seed            int64
}

// DefaultOptions returns the protocol template for a mode. All modes share
// the shape (two or three shrinking dense layers, dropout, Adam); epochs and
// learning rate vary with the input size.
func DefaultOptions(mode dataset.Mode) Options {
	switch mode {
	case dataset.ModeImage:
		return Options{Epochs: 30, ValidationSplit: 0.15, Hidden: []int{128, 64}, Dropout: 0.25, LearningRate: 0.001}
	case dataset.ModeText:
		return Options{Epochs: 40, ValidationSplit: 0.15, Hidden: []int{64, 32, 16}, Dropout: 0.2, LearningRate: 0.005}
	default:
		return Options{Epochs: 50, ValidationSplit: 0.15, Hidden: []int{64, 32}, Dropout: 0.2, LearningRate: 0.005}
	}
}

// BatchSizeBound caps mini-batches at 16, or half the sample count for
// tiny sets.
func BatchSizeBound(sampleCount int) int {
	size := sampleCount / 2
	if size > 16 {
		size = 16
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Progress is one epoch's training feedback.
type Progress struct {
	Epoch       int     `json:"epoch"`
	Epochs      int     `json:"epochs"`
	Loss        float64 `json:"loss"`
	ValLoss     float64 `json:"val_loss"`
	// ValAccuracy is a percentage for classification runs, zero otherwise.
	ValAccuracy float64 `json:"val_accuracy"`
}

// Stats summarizes a finished run for explanations and the run log.
type Stats struct {
	Samples     int           `json:"samples"`
	Features    int           `json:"features"`
	FinalLoss   float64       `json:"final_loss"`
	ValLoss     float64       `json:"val_loss"`
	ValAccuracy float64       `json:"val_accuracy"`
	Duration    time.Duration `json:"duration"`
}

// TrainClassifier trains a softmax network over integer class ordinals.
// classNames must be in first-seen ordinal order and index every label.
func TrainClassifier(ctx context.Context, features [][]float64, labels []int, classNames []string, opts Options, onEpoch func(Progress)) (*Model, *Stats, error) {
	if len(features) < MinSamples {
		return nil, nil, ErrInsufficientSamples
	}
	if len(features) != len(labels) {
		return nil, nil, errors.New("features and labels size mismatch")
	}
	if len(classNames) < MinClasses {
		return nil, nil, ErrInsufficientClasses
	}
	for _, l := range labels {
		if l < 0 || l >= len(classNames) {
			return nil, nil, fmt.Errorf("label ordinal %d out of range", l)
		}
	}

	targets := make([][]float64, len(labels))
	for i, l := range labels {
		row := make([]float64, len(classNames))
		row[l] = 1
		targets[i] = row
	}

	net, stats, err := run(ctx, features, targets, len(classNames), nn.Softmax, opts, onEpoch)
	if err != nil {
		return nil, nil, err
	}
	return &Model{
		Net:        net,
		Task:       dataset.TaskClassification,
		NumClasses: len(classNames),
		InputDim:   len(features[0]),
		Labels:     append([]string(nil), classNames...),
	}, stats, nil
}

// TrainRegressor trains a single linear unit over [0,1]-normalized targets.
func TrainRegressor(ctx context.Context, features [][]float64, targets []float64, opts Options, onEpoch func(Progress)) (*Model, *Stats, error) {
	if len(features) < MinSamples {
		return nil, nil, ErrInsufficientSamples
	}
	if len(features) != len(targets) {
		return nil, nil, errors.New("features and targets size mismatch")
	}

	rows := make([][]float64, len(targets))
	for i, t := range targets {
		rows[i] = []float64{t}
	}

	net, stats, err := run(ctx, features, rows, 1, nn.Linear, opts, onEpoch)
	if err != nil {
		return nil, nil, err
	}
	return &Model{
		Net:      net,
		Task:     dataset.TaskRegression,
		InputDim: len(features[0]),
	}, stats, nil
}

// run executes the epoch loop. Any panic out of the numeric code is caught
// here and surfaced as ErrTrainingFailed so the session can fall back to
// collecting instead of wedging.
func run(ctx context.Context, features, targets [][]float64, outputs int, act nn.OutputActivation, opts Options, onEpoch func(Progress)) (net *nn.Network, stats *Stats, err error) {
	defer func() {
		if r := recover(); r != nil {
			net, stats = nil, nil
			err = fmt.Errorf("%w: %v", ErrTrainingFailed, r)
		}
	}()

	if opts.Epochs <= 0 {
		opts.Epochs = 30
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = BatchSizeBound(len(features))
	}
	if opts.ValidationSplit <= 0 || opts.ValidationSplit >= 0.5 {
		opts.ValidationSplit = 0.15
	}

	net, err = nn.New(nn.Config{
		Input:        len(features[0]),
		Hidden:       opts.Hidden,
		Output:       outputs,
		Activation:   act,
		Dropout:      opts.Dropout,
		LearningRate: opts.LearningRate,
		Seed:         opts.Seed,
	})
	if err != nil {
		return nil, nil, tracer.Mask(err)
	}

	rng := rand.New(rand.NewSource(opts.Seed + 1))
	trainX, trainY, valX, valY := split(features, targets, opts.ValidationSplit, rng)

	start := time.Now()
	var prog Progress
	order := make([]int, len(trainX))
	for i := range order {
		order[i] = i
	}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		epochLoss, batches := 0.0, 0
		for at := 0; at < len(order); at += opts.BatchSize {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}
			end := at + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			bx := make([][]float64, 0, end-at)
			by := make([][]float64, 0, end-at)
			for _, idx := range order[at:end] {
				bx = append(bx, trainX[idx])
				by = append(by, trainY[idx])
			}
			loss, err := net.TrainBatch(bx, by)
			if err != nil {
				return nil, nil, tracer.Mask(err)
			}
			epochLoss += loss
			batches++
		}

		prog = Progress{Epoch: epoch, Epochs: opts.Epochs, Loss: epochLoss / float64(batches)}
		if len(valX) > 0 {
			valLoss, err := net.Loss(valX, valY)
			if err != nil {
				return nil, nil, tracer.Mask(err)
			}
			prog.ValLoss = valLoss
			if act == nn.Softmax {
				prog.ValAccuracy = accuracy(net, valX, valY) * 100
			}
		}
		if onEpoch != nil {
			onEpoch(prog)
		}
	}

	return net, &Stats{
		Samples:     len(features),
		Features:    len(features[0]),
		FinalLoss:   prog.Loss,
		ValLoss:     prog.ValLoss,
		ValAccuracy: prog.ValAccuracy,
		Duration:    time.Since(start),
	}, nil
}

func split(features, targets [][]float64, ratio float64, rng *rand.Rand) (trainX, trainY, valX, valY [][]float64) {
	indices := rng.Perm(len(features))
	valCount := int(float64(len(features)) * ratio)
	for i, idx := range indices {
		if i < valCount {
			valX = append(valX, features[idx])
			valY = append(valY, targets[idx])
		} else {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		}
	}
	return trainX, trainY, valX, valY
}

func accuracy(net *nn.Network, inputs, targets [][]float64) float64 {
	correct := 0
	for i := range inputs {
		out, err := net.Forward(inputs[i])
		if err != nil {
			return 0
		}
		if argmax(out) == argmax(targets[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(inputs))
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
