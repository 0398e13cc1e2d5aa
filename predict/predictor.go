// Package predict applies a trained model and its codec to new samples and
// renders a human-readable rationale for the outcome.
package predict

import (
	"errors"
	"sort"

	"github.com/xh3b4sd/tracer"

	"mllab/codec"
	"mllab/dataset"
	"mllab/trainer"
)

// ClassScore is one ranked class with its confidence in percent.
type ClassScore struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence_percent"`
}

// Result is a single prediction. Classification fills Scores (ranked,
// summing to 100 up to rounding); regression fills Value with the observed
// training target range for context. Confidence is the 100 marker for the
// constant-target case.
type Result struct {
	Task       dataset.Task `json:"task"`
	Scores     []ClassScore `json:"scores,omitempty"`
	Value      float64      `json:"value,omitempty"`
	TargetMin  float64      `json:"target_min,omitempty"`
	TargetMax  float64      `json:"target_max,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
}

// Top returns the winning label for classification results.
func (r *Result) Top() (ClassScore, bool) {
	if len(r.Scores) == 0 {
		return ClassScore{}, false
	}
	return r.Scores[0], true
}

// Predict transforms the sample with the frozen codec, runs a forward pass
// and shapes the output per task. Unseen categorical values, out-of-
// vocabulary words and empty texts all degrade to zero contribution inside
// Transform rather than erroring.
func Predict(s dataset.Sample, c codec.Codec, m *trainer.Model) (*Result, error) {
	if c == nil || m == nil {
		return nil, errors.New("model not ready")
	}
	vec, err := c.Transform(s)
	if err != nil {
		return nil, tracer.Mask(err)
	}
	if len(vec) != m.InputDim {
		return nil, errors.New("codec and model disagree on input dimension")
	}

	switch m.Task {
	case dataset.TaskClassification:
		out, err := m.Net.Forward(vec)
		if err != nil {
			return nil, tracer.Mask(err)
		}
		return rankClasses(out, m.Labels), nil
	case dataset.TaskRegression:
		tab, ok := c.(*codec.TabularCodec)
		if !ok {
			return nil, errors.New("regression requires a tabular codec")
		}
		min, max := tab.TargetRange()
		if tab.ConstantTarget() {
			return &Result{Task: dataset.TaskRegression, Value: min, TargetMin: min, TargetMax: max, Confidence: 100}, nil
		}
		out, err := m.Net.Forward(vec)
		if err != nil {
			return nil, tracer.Mask(err)
		}
		return &Result{
			Task:      dataset.TaskRegression,
			Value:     tab.DenormalizeTarget(out[0]),
			TargetMin: min,
			TargetMax: max,
		}, nil
	default:
		return nil, errors.New("unknown task kind")
	}
}

// rankClasses converts probabilities to percentages and orders them by
// descending confidence. The stable sort breaks ties by the label's
// first-seen ordinal.
func rankClasses(probs []float64, labels []string) *Result {
	scores := make([]ClassScore, len(probs))
	for i, p := range probs {
		scores[i] = ClassScore{Label: labels[i], Confidence: p * 100}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})
	return &Result{Task: dataset.TaskClassification, Scores: scores}
}
