package codec

import (
	"errors"

	"mllab/dataset"
)

// DefaultGridSize is the square resample target for image features.
const DefaultGridSize = 64

// ImageCodec resamples every image to a fixed square grid and emits three
// normalized channel values per pixel, row-major and channel-interleaved.
// It carries no fitted state beyond the grid size.
type ImageCodec struct {
	grid int
}

// FitImage builds an image codec for the given grid size. Zero or negative
// picks the default.
func FitImage(grid int) *ImageCodec {
	if grid <= 0 {
		grid = DefaultGridSize
	}
	return &ImageCodec{grid: grid}
}

func (c *ImageCodec) Mode() dataset.Mode { return dataset.ModeImage }

func (c *ImageCodec) Dim() int { return c.grid * c.grid * 3 }

// GridSize returns the resample edge length.
func (c *ImageCodec) GridSize() int { return c.grid }

func (c *ImageCodec) Transform(s dataset.Sample) ([]float64, error) {
	img, ok := s.(dataset.ImageSample)
	if !ok {
		return nil, ErrWrongSampleMode
	}
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	if img.Ragged() {
		return nil, errors.New("ragged pixel grid")
	}

	h, w := img.Height(), img.Width()
	vec := make([]float64, c.Dim())
	i := 0
	// Nearest-neighbor resample onto the grid.
	for y := 0; y < c.grid; y++ {
		srcY := y * h / c.grid
		for x := 0; x < c.grid; x++ {
			srcX := x * w / c.grid
			px := img.Pixels[srcY][srcX]
			vec[i] = float64(px[0]) / 255.0
			vec[i+1] = float64(px[1]) / 255.0
			vec[i+2] = float64(px[2]) / 255.0
			i += 3
		}
	}
	return vec, nil
}
