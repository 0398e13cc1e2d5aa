// Package codec converts raw samples into fixed-length numeric vectors.
// Each codec is fitted once per training run; Transform then replays the
// frozen encoder state deterministically at inference time.
package codec

import (
	"errors"

	"mllab/dataset"
)

// Codec is the frozen fit result for one mode. Transform is deterministic
// and side-effect-free; a codec is only valid together with the model that
// was trained on its output and the two are discarded together.
type Codec interface {
	Mode() dataset.Mode
	Dim() int
	Transform(s dataset.Sample) ([]float64, error)
}

var (
	// ErrInsufficientVocabulary is returned when a text fit yields fewer
	// than MinVocabulary usable words.
	ErrInsufficientVocabulary = errors.New("insufficient vocabulary")

	// ErrWrongSampleMode is returned when a sample of another mode is
	// passed to Transform.
	ErrWrongSampleMode = errors.New("sample mode does not match codec")
)
