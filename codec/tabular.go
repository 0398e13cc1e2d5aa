package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mllab/dataset"
)

type scaler struct {
	Min float64
	Max float64
}

// span collapses to 1 when max==min so degenerate columns scale to zero
// instead of dividing by zero.
func (s scaler) span() float64 {
	if s.Max == s.Min {
		return 1
	}
	return s.Max - s.Min
}

func (s scaler) scale(v float64) float64 {
	return (v - s.Min) / s.span()
}

// TabularCodec freezes the feature layout of one training run: min/max
// scalers for numeric columns, first-seen one-hot maps for categorical
// columns, and the target encoding (label map or value range).
type TabularCodec struct {
	task dataset.Task

	numericCols     []string
	categoricalCols []string
	scalers         map[string]scaler
	oneHot          map[string]map[string]int
	oneHotSize      map[string]int

	target      string
	labelIndex  map[string]int
	labels      []string
	targetRange scaler
}

// FitTabular computes column infos for every non-target column, builds the
// scalers and one-hot maps from observed training values, and encodes the
// target for the given task.
func FitTabular(t *dataset.Table, target string, task dataset.Task) (*TabularCodec, error) {
	if !t.HasColumn(target) {
		return nil, errors.New("unknown target column: " + target)
	}
	if len(t.Rows) == 0 {
		return nil, errors.New("empty dataset")
	}

	c := &TabularCodec{
		task:       task,
		target:     target,
		scalers:    make(map[string]scaler),
		oneHot:     make(map[string]map[string]int),
		oneHotSize: make(map[string]int),
		labelIndex: make(map[string]int),
	}

	for _, info := range t.InferColumns() {
		if info.Name == target {
			continue
		}
		if info.Kind == dataset.ColumnNumeric {
			c.numericCols = append(c.numericCols, info.Name)
			c.scalers[info.Name] = scaler{Min: info.Min, Max: info.Max}
		} else {
			c.categoricalCols = append(c.categoricalCols, info.Name)
			c.oneHot[info.Name] = make(map[string]int)
		}
	}

	firstTarget := true
	for _, row := range t.Rows {
		for _, col := range c.categoricalCols {
			v := strings.TrimSpace(row.Values[col])
			if _, ok := c.oneHot[col][v]; !ok {
				c.oneHot[col][v] = len(c.oneHot[col])
			}
		}
		raw := strings.TrimSpace(row.Values[target])
		switch task {
		case dataset.TaskClassification:
			if _, ok := c.labelIndex[raw]; !ok {
				c.labelIndex[raw] = len(c.labels)
				c.labels = append(c.labels, raw)
			}
		case dataset.TaskRegression:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("target %q is not numeric: %q", target, raw)
			}
			if firstTarget {
				c.targetRange = scaler{Min: v, Max: v}
				firstTarget = false
			}
			if v < c.targetRange.Min {
				c.targetRange.Min = v
			}
			if v > c.targetRange.Max {
				c.targetRange.Max = v
			}
		default:
			return nil, fmt.Errorf("unknown task: %q", task)
		}
	}
	for col, values := range c.oneHot {
		c.oneHotSize[col] = len(values)
	}
	return c, nil
}

func (c *TabularCodec) Mode() dataset.Mode { return dataset.ModeTabular }

// Task returns the task the codec was fitted for.
func (c *TabularCodec) Task() dataset.Task { return c.task }

// Target returns the target column name.
func (c *TabularCodec) Target() string { return c.target }

func (c *TabularCodec) Dim() int {
	dim := len(c.numericCols)
	for _, col := range c.categoricalCols {
		dim += c.oneHotSize[col]
	}
	return dim
}

// FeatureCount returns the number of source columns feeding the vector.
func (c *TabularCodec) FeatureCount() int {
	return len(c.numericCols) + len(c.categoricalCols)
}

// Labels returns the class names in first-seen ordinal order.
func (c *TabularCodec) Labels() []string {
	return append([]string(nil), c.labels...)
}

// NumClasses returns the distinct label count for classification.
func (c *TabularCodec) NumClasses() int { return len(c.labels) }

// TargetRange returns the observed regression target range.
func (c *TabularCodec) TargetRange() (min, max float64) {
	return c.targetRange.Min, c.targetRange.Max
}

// Transform concatenates, in stable column order, every numeric feature
// scaled to [0,1] followed by the one-hot block of every categorical
// feature. Unseen categorical values map to an all-zero block.
func (c *TabularCodec) Transform(s dataset.Sample) ([]float64, error) {
	row, ok := s.(dataset.TabularRow)
	if !ok {
		return nil, ErrWrongSampleMode
	}
	vec := make([]float64, 0, c.Dim())
	for _, col := range c.numericCols {
		raw := strings.TrimSpace(row.Values[col])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// Missing or malformed numeric cells contribute nothing.
			vec = append(vec, 0)
			continue
		}
		vec = append(vec, c.scalers[col].scale(v))
	}
	for _, col := range c.categoricalCols {
		block := make([]float64, c.oneHotSize[col])
		if idx, ok := c.oneHot[col][strings.TrimSpace(row.Values[col])]; ok {
			block[idx] = 1
		}
		vec = append(vec, block...)
	}
	return vec, nil
}

// EncodeLabel returns the ordinal of a training label.
func (c *TabularCodec) EncodeLabel(raw string) (int, error) {
	idx, ok := c.labelIndex[strings.TrimSpace(raw)]
	if !ok {
		return 0, fmt.Errorf("label %q not seen during fit", raw)
	}
	return idx, nil
}

// NormalizeTarget maps a raw regression target into [0,1].
func (c *TabularCodec) NormalizeTarget(v float64) float64 {
	return c.targetRange.scale(v)
}

// DenormalizeTarget maps a [0,1] model output back to target units.
func (c *TabularCodec) DenormalizeTarget(v float64) float64 {
	return c.targetRange.Min + v*c.targetRange.span()
}

// ConstantTarget reports whether the training target never varied.
func (c *TabularCodec) ConstantTarget() bool {
	return c.targetRange.Max == c.targetRange.Min
}
