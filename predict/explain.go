package predict

import (
	"fmt"
	"strings"

	"mllab/dataset"
)

// SummaryStats carries the training-run numbers an explanation cites. They
// must describe the run that produced the active model, not static copy.
type SummaryStats struct {
	SampleCount    int            `json:"sample_count"`
	FeatureCount   int            `json:"feature_count"`
	ClassCounts    map[string]int `json:"class_counts,omitempty"`
	VocabularySize int            `json:"vocabulary_size,omitempty"`
	TargetMin      float64        `json:"target_min,omitempty"`
	TargetMax      float64        `json:"target_max,omitempty"`
	ValAccuracy    float64        `json:"val_accuracy,omitempty"`
}

// Explain renders templated prose for one prediction: what was looked at,
// what won and how it compares to the training data.
func Explain(mode dataset.Mode, res *Result, stats SummaryStats) string {
	var b strings.Builder

	switch mode {
	case dataset.ModeImage:
		fmt.Fprintf(&b, "Compared %d pixel values of this image against patterns learned from %d training images. ",
			stats.FeatureCount, stats.SampleCount)
	case dataset.ModeText:
		fmt.Fprintf(&b, "Checked this text against a vocabulary of %d words learned from %d training texts. ",
			stats.VocabularySize, stats.SampleCount)
	default:
		fmt.Fprintf(&b, "Looked at %d features of this row, learned from %d training rows. ",
			stats.FeatureCount, stats.SampleCount)
	}

	if res.Task == dataset.TaskRegression {
		fmt.Fprintf(&b, "Predicted value: %.2f.", res.Value)
		if res.TargetMax > res.TargetMin {
			fmt.Fprintf(&b, " The training data ranged from %.2f to %.2f.", res.TargetMin, res.TargetMax)
		} else {
			fmt.Fprintf(&b, " Every training example had the value %.2f, so the model can only answer that.", res.TargetMin)
		}
		return b.String()
	}

	top, ok := res.Top()
	if !ok {
		return b.String()
	}
	fmt.Fprintf(&b, "Best match: %q with %.1f%% confidence.", top.Label, top.Confidence)
	if n, ok := stats.ClassCounts[top.Label]; ok {
		fmt.Fprintf(&b, " %d of the %d training examples were labeled %q.", n, stats.SampleCount, top.Label)
	}
	if len(res.Scores) > 1 {
		runner := res.Scores[1]
		fmt.Fprintf(&b, " The closest alternative was %q at %.1f%%.", runner.Label, runner.Confidence)
	}
	return b.String()
}
