// Package session orchestrates the collect, train, predict, reset lifecycle
// of one in-session pipeline: it owns the active codec and trained model and
// guards every transition of the mode controller state machine.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mllab/codec"
	"mllab/dataset"
	"mllab/predict"
	"mllab/trainer"
)

// State is the mode controller state.
type State string

const (
	StateSelectingMode State = "selecting_mode"
	StateCollecting    State = "collecting_samples"
	StateTraining      State = "training_in_progress"
	StateReady         State = "ready"
)

// Session owns one pipeline instance. No resource is shared across
// sessions; the codec and model are created and discarded together.
type Session struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time

	cfg      Config
	log      *zap.SugaredLogger
	events   EventSink
	recorder Recorder

	mode  dataset.Mode
	state State

	// Image mode: class names in first-seen order plus capped samples.
	classes      []string
	imageSamples map[string][]dataset.ImageSample

	// Text mode.
	textSamples []dataset.TextSample

	// Tabular mode.
	table        *dataset.Table
	targetColumn string

	// Train outcome, valid only in StateReady.
	codec codec.Codec
	model *trainer.Model
	task  dataset.Task
	stats predict.SummaryStats

	job  *Job
	loop *predictLoop

	// Most recent live sample fed to the recurring prediction loop.
	liveSample dataset.Sample
}

// New creates a session in SelectingMode.
func New(cfg Config, log *zap.SugaredLogger, events EventSink, recorder Recorder) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if events == nil {
		events = nopSink{}
	}
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now(),
		cfg:          cfg.withDefaults(),
		log:          log,
		events:       events,
		recorder:     recorder,
		state:        StateSelectingMode,
		imageSamples: make(map[string][]dataset.ImageSample),
	}
}

// SelectMode fixes the session's modality and moves to CollectingSamples.
func (s *Session) SelectMode(mode dataset.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelectingMode {
		return stateErr("mode already selected")
	}
	switch mode {
	case dataset.ModeImage, dataset.ModeText, dataset.ModeTabular:
	default:
		return inputErr("unknown mode: " + string(mode))
	}
	s.mode = mode
	s.state = StateCollecting
	s.log.Infow("mode selected", "session", s.ID, "mode", mode)
	return nil
}

// Mode returns the selected modality.
func (s *Session) Mode() dataset.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the current controller state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddClass registers an image class. Classes keep first-seen order; that
// order becomes the label ordinals at training time.
func (s *Session) AddClass(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collectableLocked(); err != nil {
		return err
	}
	if s.mode != dataset.ModeImage {
		return stateErr("classes apply to image mode only")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return inputErr(ReasonMissingLabel)
	}
	if s.classIndex(name) >= 0 {
		return nil
	}
	if len(s.classes) >= s.cfg.MaxImageClasses {
		return inputErr("class limit reached")
	}
	s.classes = append(s.classes, name)
	return nil
}

// RemoveClass drops an image class and its samples.
func (s *Session) RemoveClass(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collectableLocked(); err != nil {
		return err
	}
	if s.mode != dataset.ModeImage {
		return stateErr("classes apply to image mode only")
	}
	idx := s.classIndex(name)
	if idx < 0 {
		return inputErr("unknown class: " + name)
	}
	s.classes = append(s.classes[:idx], s.classes[idx+1:]...)
	delete(s.imageSamples, name)
	return nil
}

// Classes returns the image class names in ordinal order.
func (s *Session) Classes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.classes...)
}

// SubmitSample accepts one raw unit during collection. The label argument
// names the image class and is ignored for the other modes. Collection
// stays open defensively while training is in flight; the running job works
// on its own snapshot.
func (s *Session) SubmitSample(sample dataset.Sample, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collectableLocked(); err != nil {
		return err
	}
	if sample == nil {
		return inputErr(ReasonEmptyInput)
	}
	if sample.Mode() != s.mode {
		return inputErr("sample mode does not match session mode")
	}

	switch v := sample.(type) {
	case dataset.ImageSample:
		return s.submitImageLocked(v, label)
	case dataset.TextSample:
		if strings.TrimSpace(v.Label) == "" {
			return inputErr(ReasonMissingLabel)
		}
		if strings.TrimSpace(v.Text) == "" {
			return inputErr(ReasonEmptyInput)
		}
		s.textSamples = append(s.textSamples, v)
		return nil
	case dataset.TabularRow:
		return s.submitRowLocked(v)
	default:
		return inputErr("unknown sample kind")
	}
}

func (s *Session) submitImageLocked(img dataset.ImageSample, class string) error {
	if img.Empty() {
		return inputErr(ReasonEmptyInput)
	}
	if img.Ragged() {
		return inputErr(ReasonRaggedPixelGrid)
	}
	class = strings.TrimSpace(class)
	if class == "" {
		return inputErr(ReasonMissingLabel)
	}
	if s.classIndex(class) < 0 {
		if len(s.classes) >= s.cfg.MaxImageClasses {
			return inputErr("class limit reached")
		}
		s.classes = append(s.classes, class)
	}
	if len(s.imageSamples[class]) >= s.cfg.ImageClassCap {
		return inputErr(ReasonClassCapReached)
	}
	s.imageSamples[class] = append(s.imageSamples[class], img)
	return nil
}

func (s *Session) submitRowLocked(row dataset.TabularRow) error {
	if len(row.Values) == 0 {
		return inputErr(ReasonEmptyInput)
	}
	if s.table == nil {
		cols := make([]string, 0, len(row.Values))
		for c := range row.Values {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		s.table = &dataset.Table{Columns: cols}
	}
	if err := s.table.Append(row); err != nil {
		return inputErr(ReasonMismatchedColumnCount)
	}
	return nil
}

// IngestReport summarizes a bulk CSV load.
type IngestReport struct {
	RowsIngested int             `json:"rows_ingested"`
	RowsDropped  int             `json:"rows_dropped"`
	Schema       *dataset.Schema `json:"schema,omitempty"`
}

// IngestCSV bulk-loads parsed rows for text and tabular sessions. Rows with
// a mismatched cell count are dropped individually.
func (s *Session) IngestCSV(data []byte) (*IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collectableLocked(); err != nil {
		return nil, err
	}

	switch s.mode {
	case dataset.ModeText:
		table, stats, err := dataset.ParseCSV(data)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		samples, err := dataset.TextSamplesFromTable(table)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		s.textSamples = append(s.textSamples, samples...)
		return &IngestReport{RowsIngested: len(samples), RowsDropped: stats.RowsDropped + stats.RowsIngested - len(samples)}, nil

	case dataset.ModeTabular:
		table, stats, err := dataset.ParseCSV(data)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		if s.table != nil && columnsEqual(s.table.Columns, table.Columns) {
			s.table.Rows = append(s.table.Rows, table.Rows...)
		} else {
			s.table = table
		}
		schema := s.table.Schema()
		return &IngestReport{RowsIngested: stats.RowsIngested, RowsDropped: stats.RowsDropped, Schema: &schema}, nil

	default:
		return nil, stateErr("bulk ingestion applies to text and tabular modes")
	}
}

// SetTargetColumn chooses the tabular target ahead of training.
func (s *Session) SetTargetColumn(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != dataset.ModeTabular {
		return stateErr("target column applies to tabular mode only")
	}
	if s.table != nil && !s.table.HasColumn(name) {
		return inputErr("unknown column: " + name)
	}
	s.targetColumn = name
	return nil
}

// Schema returns the current tabular schema, recomputed from the live rows.
func (s *Session) Schema() (*dataset.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != dataset.ModeTabular || s.table == nil {
		return nil, stateErr("no tabular dataset loaded")
	}
	schema := s.table.Schema()
	return &schema, nil
}

// PreviewRows returns up to n rows of the tabular dataset.
func (s *Session) PreviewRows(n int) (*dataset.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != dataset.ModeTabular || s.table == nil {
		return nil, stateErr("no tabular dataset loaded")
	}
	p := s.table.Preview(n)
	return &p, nil
}

// SampleCount returns how many raw units are currently collected.
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleCountLocked()
}

func (s *Session) sampleCountLocked() int {
	switch s.mode {
	case dataset.ModeImage:
		n := 0
		for _, v := range s.imageSamples {
			n += len(v)
		}
		return n
	case dataset.ModeText:
		return len(s.textSamples)
	case dataset.ModeTabular:
		if s.table == nil {
			return 0
		}
		return s.table.NumRows()
	}
	return 0
}

// Reset discards the codec and model together and returns to collecting.
// With clearSamples the collected data goes too (mode switch); without it
// training can be re-run on the same samples.
func (s *Session) Reset(clearSamples bool) error {
	// The loop stops first; it only ever runs in Ready, so this is a no-op
	// whenever the checks below reject. Checking and transitioning in one
	// critical section keeps a concurrent StartTraining from being reset
	// underneath.
	s.stopLoop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTraining {
		return concurrencyErr(ReasonTrainingInProgress)
	}
	if s.state == StateSelectingMode {
		return stateErr("no mode selected")
	}

	// Codec and model are one unit.
	s.codec = nil
	s.model = nil
	s.stats = predict.SummaryStats{}
	s.liveSample = nil
	s.state = StateCollecting

	if clearSamples {
		s.classes = nil
		s.imageSamples = make(map[string][]dataset.ImageSample)
		s.textSamples = nil
		s.table = nil
		s.targetColumn = ""
	}
	s.log.Infow("session reset", "session", s.ID, "cleared", clearSamples)
	return nil
}

// Close stops background work and drops the model. Used on eviction.
func (s *Session) Close() {
	s.stopLoop()
	s.mu.Lock()
	if s.job != nil {
		s.job.Cancel()
	}
	s.codec = nil
	s.model = nil
	s.mu.Unlock()
}

// Status is a point-in-time snapshot for the API layer.
type Status struct {
	ID           string                `json:"id"`
	Mode         dataset.Mode          `json:"mode,omitempty"`
	State        State                 `json:"state"`
	SampleCount  int                   `json:"sample_count"`
	Classes      []string              `json:"classes,omitempty"`
	TargetColumn string                `json:"target_column,omitempty"`
	Task         dataset.Task          `json:"task,omitempty"`
	Schema       *dataset.Schema       `json:"schema,omitempty"`
	Stats        *predict.SummaryStats `json:"stats,omitempty"`
}

// Status reports the current lifecycle snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:           s.ID,
		Mode:         s.mode,
		State:        s.state,
		SampleCount:  s.sampleCountLocked(),
		Classes:      append([]string(nil), s.classes...),
		TargetColumn: s.targetColumn,
		Task:         s.task,
	}
	if s.mode == dataset.ModeTabular && s.table != nil {
		schema := s.table.Schema()
		st.Schema = &schema
	}
	if s.state == StateReady {
		stats := s.stats
		st.Stats = &stats
	}
	return st
}

func (s *Session) collectableLocked() error {
	switch s.state {
	case StateCollecting, StateTraining:
		return nil
	case StateSelectingMode:
		return stateErr("no mode selected")
	default:
		return stateErr("session is trained; reset before collecting")
	}
}

func (s *Session) classIndex(name string) int {
	for i, c := range s.classes {
		if c == name {
			return i
		}
	}
	return -1
}

func columnsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
