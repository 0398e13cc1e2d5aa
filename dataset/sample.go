package dataset

// Mode identifies which kind of raw data a session collects.
type Mode string

const (
	ModeImage   Mode = "image"
	ModeText    Mode = "text"
	ModeTabular Mode = "tabular"
)

// Task is the learning task derived from the data shape.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

// Sample is a raw unit of training data. The three variants form a closed
// set; samples are immutable once captured.
type Sample interface {
	Mode() Mode
}

// RGB is one pixel as raw channel bytes.
type RGB [3]uint8

// ImageSample is a 2D grid of RGB pixels, row-major.
type ImageSample struct {
	Pixels [][]RGB
}

func (s ImageSample) Mode() Mode { return ModeImage }

func (s ImageSample) Height() int { return len(s.Pixels) }

func (s ImageSample) Width() int {
	if len(s.Pixels) == 0 {
		return 0
	}
	return len(s.Pixels[0])
}

// Empty reports whether the sample carries no pixel data.
func (s ImageSample) Empty() bool {
	return s.Height() == 0 || s.Width() == 0
}

// Ragged reports whether any row differs in length from the first. Ragged
// grids cannot be resampled and are rejected before encoding.
func (s ImageSample) Ragged() bool {
	w := s.Width()
	for _, row := range s.Pixels {
		if len(row) != w {
			return true
		}
	}
	return false
}

// TextSample is a short labeled text.
type TextSample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func (s TextSample) Mode() Mode { return ModeText }

// TabularRow maps column name to the raw cell value as delivered by the
// CSV collaborator. Numeric columns are parsed on demand.
type TabularRow struct {
	Values map[string]string `json:"values"`
}

func (s TabularRow) Mode() Mode { return ModeTabular }

// Get returns the raw cell for a column and whether it is present.
func (s TabularRow) Get(column string) (string, bool) {
	v, ok := s.Values[column]
	return v, ok
}
