package session

import (
	"mllab/codec"
	"mllab/dataset"
	"mllab/trainer"
)

// Config carries the per-session policy knobs. Zero values fall back to the
// defaults below.
type Config struct {
	// ImageGridSize is the square resample edge for image features.
	ImageGridSize int
	// ImageClassCap bounds samples per image class to keep memory flat.
	ImageClassCap int
	// MinImageClasses / MaxImageClasses bound the user-defined class set.
	MinImageClasses int
	MaxImageClasses int
	// TaskPolicy controls classification-vs-regression auto-detection.
	TaskPolicy dataset.TaskPolicy
	// Options supplies the training protocol per mode.
	Options func(dataset.Mode) trainer.Options
	// Seed makes training runs reproducible when non-zero.
	Seed int64
}

// DefaultConfig returns the classroom defaults.
func DefaultConfig() Config {
	return Config{
		ImageGridSize:   codec.DefaultGridSize,
		ImageClassCap:   100,
		MinImageClasses: 2,
		MaxImageClasses: 5,
		TaskPolicy:      dataset.DefaultTaskPolicy(),
		Options:         trainer.DefaultOptions,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ImageGridSize <= 0 {
		c.ImageGridSize = d.ImageGridSize
	}
	if c.ImageClassCap <= 0 {
		c.ImageClassCap = d.ImageClassCap
	}
	if c.MinImageClasses <= 0 {
		c.MinImageClasses = d.MinImageClasses
	}
	if c.MaxImageClasses <= 0 {
		c.MaxImageClasses = d.MaxImageClasses
	}
	if c.TaskPolicy.MaxClassUniques <= 0 {
		c.TaskPolicy = d.TaskPolicy
	}
	if c.Options == nil {
		c.Options = d.Options
	}
	return c
}

// EventSink receives lifecycle events (training progress, predictions) for
// observers such as the websocket hub. Implementations must not block.
type EventSink interface {
	Publish(event string, payload interface{})
}

type nopSink struct{}

func (nopSink) Publish(string, interface{}) {}

// RunRecord is the persisted summary of one finished training run.
type RunRecord struct {
	RunID      string  `json:"run_id"`
	SessionID  string  `json:"session_id"`
	Mode       string  `json:"mode"`
	Task       string  `json:"task"`
	Samples    int     `json:"samples"`
	Features   int     `json:"features"`
	Classes    int     `json:"classes"`
	FinalLoss  float64 `json:"final_loss"`
	ValLoss    float64 `json:"val_loss"`
	ValAcc     float64 `json:"val_accuracy"`
	DurationMS int64   `json:"duration_ms"`
}

// PredictionRecord is the persisted summary of one served prediction.
type PredictionRecord struct {
	SessionID  string  `json:"session_id"`
	Mode       string  `json:"mode"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Value      float64 `json:"value,omitempty"`
}

// Recorder persists run and prediction summaries. A nil recorder disables
// the audit log.
type Recorder interface {
	RecordRun(run RunRecord) error
	RecordPrediction(p PredictionRecord) error
}
