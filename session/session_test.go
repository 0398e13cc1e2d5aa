package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mllab/dataset"
	"mllab/trainer"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (c *captureSink) Publish(event string, payload interface{}) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureSink) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

func newTextSession(t *testing.T) *Session {
	t.Helper()
	s := New(DefaultConfig(), nil, nil, nil)
	if err := s.SelectMode(dataset.ModeText); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func newTabularSession(t *testing.T) *Session {
	t.Helper()
	s := New(DefaultConfig(), nil, nil, nil)
	if err := s.SelectMode(dataset.ModeTabular); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

// trainableCSV is a small linearly separable tabular dataset.
func trainableCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("size,weight,label\n")
	for i := 0; i < rows; i++ {
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d,%d,small\n", 10+i, 5+i)
		} else {
			fmt.Fprintf(&b, "%d,%d,big\n", 100+i, 80+i)
		}
	}
	return []byte(b.String())
}

func trainTabular(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.IngestCSV(trainableCSV(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := job.Wait(); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil)
	if s.State() != StateSelectingMode {
		t.Fatalf("expected selecting_mode, got %s", s.State())
	}
	if err := s.SelectMode("video"); KindOf(err) != InputError {
		t.Fatalf("expected input error for unknown mode, got %v", err)
	}
	if err := s.SelectMode(dataset.ModeText); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", s.State())
	}
	if err := s.SelectMode(dataset.ModeImage); KindOf(err) != StateError {
		t.Fatalf("expected state error for second mode select, got %v", err)
	}
}

func TestSubmitBeforeModeSelection(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil)
	err := s.SubmitSample(dataset.TextSample{Text: "hi there", Label: "greeting"}, "")
	if KindOf(err) != StateError {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestSubmitTextValidation(t *testing.T) {
	s := newTextSession(t)
	if err := s.SubmitSample(dataset.TextSample{Text: "no label"}, ""); ReasonOf(err) != ReasonMissingLabel {
		t.Fatalf("expected missing label, got %v", err)
	}
	if err := s.SubmitSample(dataset.TextSample{Label: "spam"}, ""); ReasonOf(err) != ReasonEmptyInput {
		t.Fatalf("expected empty input, got %v", err)
	}
	if err := s.SubmitSample(nil, ""); ReasonOf(err) != ReasonEmptyInput {
		t.Fatalf("expected empty input for nil sample, got %v", err)
	}
	if err := s.SubmitSample(dataset.TabularRow{Values: map[string]string{"a": "1"}}, ""); KindOf(err) != InputError {
		t.Fatalf("expected input error for mode mismatch, got %v", err)
	}
	if err := s.SubmitSample(dataset.TextSample{Text: "buy cheap pills", Label: "spam"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", s.SampleCount())
	}
}

func TestImageClassRegistrationAndCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImageClassCap = 2
	s := New(cfg, nil, nil, nil)
	if err := s.SelectMode(dataset.ModeImage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img := dataset.ImageSample{Pixels: [][]dataset.RGB{{{1, 2, 3}}}}

	// Submitting with a fresh label auto-registers the class.
	if err := s.SubmitSample(img, "cats"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Classes()) != 1 || s.Classes()[0] != "cats" {
		t.Fatalf("unexpected classes: %v", s.Classes())
	}

	if err := s.SubmitSample(img, "cats"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SubmitSample(img, "cats"); ReasonOf(err) != ReasonClassCapReached {
		t.Fatalf("expected class cap reached, got %v", err)
	}

	// The class count itself is bounded too.
	for _, name := range []string{"dogs", "birds", "fish", "mice"} {
		if err := s.AddClass(name); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.AddClass("one-too-many"); KindOf(err) != InputError {
		t.Fatalf("expected input error at class limit, got %v", err)
	}

	if err := s.RemoveClass("dogs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RemoveClass("dogs"); KindOf(err) != InputError {
		t.Fatalf("expected input error for unknown class, got %v", err)
	}
}

func TestSubmitTabularRowsDefineColumns(t *testing.T) {
	s := newTabularSession(t)
	if err := s.SubmitSample(dataset.TabularRow{Values: map[string]string{"age": "30", "city": "rome"}}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.SubmitSample(dataset.TabularRow{Values: map[string]string{"age": "31"}}, "")
	if ReasonOf(err) != ReasonMismatchedColumnCount {
		t.Fatalf("expected mismatched column count, got %v", err)
	}
	err = s.SubmitSample(dataset.TabularRow{Values: map[string]string{"age": "31", "town": "oslo"}}, "")
	if ReasonOf(err) != ReasonMismatchedColumnCount {
		t.Fatalf("expected mismatched column count for renamed column, got %v", err)
	}
	if s.SampleCount() != 1 {
		t.Fatalf("expected 1 row, got %d", s.SampleCount())
	}
}

func TestIngestCSVReplacesOnNewHeader(t *testing.T) {
	s := newTabularSession(t)
	if _, err := s.IngestCSV([]byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := s.IngestCSV([]byte("a,b\n3,4\n5,6\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RowsIngested != 2 || s.SampleCount() != 3 {
		t.Fatalf("expected appended rows, got report=%+v count=%d", report, s.SampleCount())
	}

	// A different header replaces the dataset instead of appending.
	if _, err := s.IngestCSV([]byte("x,y,z\n1,2,3\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SampleCount() != 1 {
		t.Fatalf("expected replaced dataset, got %d rows", s.SampleCount())
	}
	schema, err := s.Schema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema.NumCols != 3 {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

func TestStartTrainingPreconditions(t *testing.T) {
	s := newTextSession(t)
	for i := 0; i < 3; i++ {
		if err := s.SubmitSample(dataset.TextSample{Text: "some words here", Label: "a"}, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_, err := s.StartTraining(TrainRequest{})
	if KindOf(err) != PreconditionError || ReasonOf(err) != ReasonInsufficientSamples {
		t.Fatalf("expected insufficient samples, got %v", err)
	}
	// A rejected start leaves the session collecting.
	if s.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", s.State())
	}
}

func TestStartTrainingInsufficientVocabulary(t *testing.T) {
	s := newTextSession(t)
	for i := 0; i < 12; i++ {
		// Every text is unique so no word clears the document frequency bar.
		text := fmt.Sprintf("unique%dwords only%dhere nothing%dshared", i, i, i)
		label := "a"
		if i%2 == 0 {
			label = "b"
		}
		if err := s.SubmitSample(dataset.TextSample{Text: text, Label: label}, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_, err := s.StartTraining(TrainRequest{})
	if ReasonOf(err) != ReasonInsufficientVocabulary {
		t.Fatalf("expected insufficient vocabulary, got %v", err)
	}
}

func TestStartTrainingImageNeedsTwoClasses(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil)
	if err := s.SelectMode(dataset.ModeImage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img := dataset.ImageSample{Pixels: [][]dataset.RGB{{{9, 9, 9}}}}
	for i := 0; i < 12; i++ {
		if err := s.SubmitSample(img, "only-class"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_, err := s.StartTraining(TrainRequest{})
	if ReasonOf(err) != ReasonInsufficientClasses {
		t.Fatalf("expected insufficient classes, got %v", err)
	}
}

func TestRaggedImageRejectedEverywhere(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImageGridSize = 4
	s := New(cfg, nil, nil, nil)
	if err := s.SelectMode(dataset.ModeImage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ragged := dataset.ImageSample{Pixels: [][]dataset.RGB{
		{{1, 1, 1}, {2, 2, 2}},
		{{3, 3, 3}},
	}}
	dark := dataset.ImageSample{Pixels: [][]dataset.RGB{
		{{10, 10, 10}, {20, 20, 20}},
		{{30, 30, 30}, {40, 40, 40}},
	}}
	light := dataset.ImageSample{Pixels: [][]dataset.RGB{
		{{200, 200, 200}, {210, 210, 210}},
		{{220, 220, 220}, {230, 230, 230}},
	}}

	// Rejected before the class is registered.
	if err := s.SubmitSample(ragged, "cats"); ReasonOf(err) != ReasonRaggedPixelGrid {
		t.Fatalf("expected ragged pixel grid, got %v", err)
	}
	if len(s.Classes()) != 0 {
		t.Fatalf("expected no classes, got %v", s.Classes())
	}

	for i := 0; i < 5; i++ {
		if err := s.SubmitSample(dark, "cats"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.SubmitSample(light, "dogs"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// The session stays fully usable after the rejection.
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := job.Wait(); err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}

	if _, err := s.Predict(ragged); ReasonOf(err) != ReasonRaggedPixelGrid {
		t.Fatalf("expected ragged pixel grid on predict, got %v", err)
	}
}

func TestTrainingConcurrencyAndReset(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	orig := trainClassifier
	trainClassifier = func(ctx context.Context, features [][]float64, labels []int, classNames []string, opts trainer.Options, onEpoch func(trainer.Progress)) (*trainer.Model, *trainer.Stats, error) {
		close(started)
		<-release
		return orig(ctx, features, labels, classNames, opts, onEpoch)
	}
	defer func() { trainClassifier = orig }()

	s := newTabularSession(t)
	if _, err := s.IngestCSV(trainableCSV(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	if _, err := s.StartTraining(TrainRequest{}); KindOf(err) != ConcurrencyError {
		t.Fatalf("expected concurrency error, got %v", err)
	}
	if err := s.Reset(false); KindOf(err) != ConcurrencyError {
		t.Fatalf("expected concurrency error for reset during training, got %v", err)
	}
	// Collection stays open while the job runs on its snapshot.
	if err := s.SubmitSample(dataset.TabularRow{Values: map[string]string{
		"size": "55", "weight": "44", "label": "small",
	}}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	close(release)
	if err := job.Wait(); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
}

func TestTrainingCancellation(t *testing.T) {
	started := make(chan struct{})
	orig := trainClassifier
	trainClassifier = func(ctx context.Context, features [][]float64, labels []int, classNames []string, opts trainer.Options, onEpoch func(trainer.Progress)) (*trainer.Model, *trainer.Stats, error) {
		close(started)
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	defer func() { trainClassifier = orig }()

	s := newTabularSession(t)
	if _, err := s.IngestCSV(trainableCSV(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started
	job.Cancel()
	if err := job.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// A cancelled run falls back to collecting with the samples intact.
	if s.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", s.State())
	}
	if s.SampleCount() != 20 {
		t.Fatalf("expected samples preserved, got %d", s.SampleCount())
	}
}

func TestTrainingFailureReturnsToCollecting(t *testing.T) {
	events := &captureSink{}
	orig := trainClassifier
	trainClassifier = func(ctx context.Context, features [][]float64, labels []int, classNames []string, opts trainer.Options, onEpoch func(trainer.Progress)) (*trainer.Model, *trainer.Stats, error) {
		return nil, nil, fmt.Errorf("%w: NaN loss", trainer.ErrTrainingFailed)
	}
	defer func() { trainClassifier = orig }()

	s := New(DefaultConfig(), nil, events, nil)
	if err := s.SelectMode(dataset.ModeTabular); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.IngestCSV(trainableCSV(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = job.Wait()
	if KindOf(err) != PreconditionError || ReasonOf(err) != ReasonTrainingFailed {
		t.Fatalf("expected training failed, got %v", err)
	}
	if s.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", s.State())
	}
	if !events.has("training_failed") {
		t.Fatal("expected training_failed event")
	}
}

func TestTabularTrainPredictAndReset(t *testing.T) {
	s := newTabularSession(t)
	trainTabular(t, s)

	status := s.Status()
	if status.Task != dataset.TaskClassification || status.Stats == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.TargetColumn != "label" {
		t.Fatalf("expected last column as default target, got %q", status.TargetColumn)
	}

	pred, err := s.Predict(dataset.TabularRow{Values: map[string]string{"size": "110", "weight": "85"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	top, ok := pred.Result.Top()
	if !ok {
		t.Fatal("expected a ranked result")
	}
	if top.Label != "big" {
		t.Fatalf("expected big, got %+v", top)
	}
	if pred.Explanation == "" {
		t.Fatal("expected an explanation")
	}

	// Training again without reset is rejected.
	if _, err := s.StartTraining(TrainRequest{}); KindOf(err) != StateError {
		t.Fatalf("expected state error, got %v", err)
	}

	// Reset without clearing keeps the samples but drops the model.
	if err := s.Reset(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SampleCount() != 20 {
		t.Fatalf("expected samples preserved, got %d", s.SampleCount())
	}
	if _, err := s.Predict(dataset.TabularRow{Values: map[string]string{"size": "110", "weight": "85"}}); ReasonOf(err) != ReasonModelNotReady {
		t.Fatalf("expected model not ready, got %v", err)
	}

	// Retraining on the same samples works.
	trainTabular(t, s)

	// Reset with clearing drops everything.
	if err := s.Reset(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SampleCount() != 0 {
		t.Fatalf("expected no samples, got %d", s.SampleCount())
	}
}

func TestTabularRegressionAutoDetect(t *testing.T) {
	var b strings.Builder
	b.WriteString("size,price\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i, 100+i*7)
	}
	s := newTabularSession(t)
	if _, err := s.IngestCSV([]byte(b.String())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job, err := s.StartTraining(TrainRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := job.Wait(); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if s.Status().Task != dataset.TaskRegression {
		t.Fatalf("expected regression, got %s", s.Status().Task)
	}

	pred, err := s.Predict(dataset.TabularRow{Values: map[string]string{"size": "15"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Result.TargetMin != 100 || pred.Result.TargetMax != 100+29*7 {
		t.Fatalf("unexpected target range: [%v, %v]", pred.Result.TargetMin, pred.Result.TargetMax)
	}
}

func TestPredictEmptyInput(t *testing.T) {
	s := newTabularSession(t)
	trainTabular(t, s)

	if _, err := s.Predict(nil); ReasonOf(err) != ReasonEmptyInput {
		t.Fatalf("expected empty input, got %v", err)
	}
	if _, err := s.Predict(dataset.TabularRow{}); ReasonOf(err) != ReasonEmptyInput {
		t.Fatalf("expected empty input for empty row, got %v", err)
	}
}

func TestPredictLoop(t *testing.T) {
	events := &captureSink{}
	s := New(DefaultConfig(), nil, events, nil)
	if err := s.SelectMode(dataset.ModeTabular); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.StartPredictLoop(time.Millisecond); ReasonOf(err) != ReasonModelNotReady {
		t.Fatalf("expected model not ready, got %v", err)
	}

	trainTabular(t, s)

	s.SetLiveSample(dataset.TabularRow{Values: map[string]string{"size": "12", "weight": "6"}})
	if err := s.StartPredictLoop(5 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !events.has("prediction") {
		select {
		case <-deadline:
			t.Fatal("no prediction event before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.StopPredictLoop()

	// Stopping twice is harmless.
	s.StopPredictLoop()

	// Reset stops an active loop before the state transition.
	if err := s.StartPredictLoop(5 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Reset(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", s.State())
	}
}

func TestManagerLifecycle(t *testing.T) {
	m, err := NewManager(2, DefaultConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	a, err := m.Create(dataset.ModeText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State() != StateCollecting {
		t.Fatalf("expected collecting_samples, got %s", a.State())
	}
	if _, err := m.Get(a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Get("nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}

	// The registry is bounded; the oldest session is evicted.
	if _, err := m.Create(dataset.ModeTabular); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Create(dataset.ModeImage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 live sessions, got %d", m.Len())
	}
	if _, err := m.Get(a.ID); err == nil {
		t.Fatal("expected oldest session to be evicted")
	}

	m.Remove(a.ID)
}
