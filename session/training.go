package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"mllab/codec"
	"mllab/dataset"
	"mllab/predict"
	"mllab/trainer"
)

// Stubbed in tests.
var (
	trainClassifier = trainer.TrainClassifier
	trainRegressor  = trainer.TrainRegressor
)

// Job is one in-flight training run: cancellable, awaitable, at most one
// per session.
type Job struct {
	RunID string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the run finished, failed or was cancelled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err reports the outcome once Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes and returns its outcome.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Cancel aborts the run between batches. The session falls back to
// CollectingSamples; intermediate buffers are released with the job.
func (j *Job) Cancel() { j.cancel() }

// TrainRequest tunes one training run. Zero values auto-detect.
type TrainRequest struct {
	// TargetColumn overrides the tabular target (default: last column or a
	// previously set one).
	TargetColumn string
	// Task overrides auto-detection for tabular data.
	Task dataset.Task
}

// fitted is the synchronous outcome of feature engineering: everything the
// async epoch loop needs, snapshotted so later sample submissions cannot
// touch the running job.
type fitted struct {
	codec    codec.Codec
	task     dataset.Task
	features [][]float64
	labels   []int
	targets  []float64
	classes  []string
	stats    predict.SummaryStats
}

// CurrentJob returns the in-flight or most recent training job, if any.
func (s *Session) CurrentJob() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// StartTraining validates preconditions, fits the codec synchronously and
// launches the epoch loop in the background. Precondition violations are
// reported before any network exists; a second call while a job is in
// flight is rejected, not queued.
func (s *Session) StartTraining(req TrainRequest) (*Job, error) {
	// The deferred unlock keeps the mutex released even if fitting panics on
	// malformed input; a wedged session must never outlive a bad sample.
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTraining:
		return nil, concurrencyErr(ReasonTrainingInProgress)
	case StateCollecting:
	case StateSelectingMode:
		return nil, stateErr("no mode selected")
	default:
		return nil, stateErr("session is trained; reset before training again")
	}

	fit, err := s.fitLocked(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{RunID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	s.job = job
	s.state = StateTraining
	opts := s.cfg.Options(s.mode)
	opts.Seed = s.cfg.Seed

	s.log.Infow("training started",
		"session", s.ID, "run", job.RunID, "mode", s.mode,
		"task", fit.task, "samples", len(fit.features), "features", len(fit.features[0]))

	go s.runTraining(ctx, job, fit, opts)
	return job, nil
}

func (s *Session) runTraining(ctx context.Context, job *Job, fit *fitted, opts trainer.Options) {
	defer close(job.done)

	onEpoch := func(p trainer.Progress) {
		s.events.Publish("training_progress", map[string]interface{}{
			"session_id": s.ID,
			"run_id":     job.RunID,
			"progress":   p,
		})
	}

	var (
		model  *trainer.Model
		tstats *trainer.Stats
		err    error
	)
	if fit.task == dataset.TaskClassification {
		model, tstats, err = trainClassifier(ctx, fit.features, fit.labels, fit.classes, opts, onEpoch)
	} else {
		model, tstats, err = trainRegressor(ctx, fit.features, fit.targets, opts, onEpoch)
	}

	s.mu.Lock()
	s.job = nil
	if err != nil {
		s.state = StateCollecting
		job.err = classifyTrainError(err)
		s.mu.Unlock()
		s.log.Warnw("training failed", "session", s.ID, "run", job.RunID, "err", err)
		s.events.Publish("training_failed", map[string]interface{}{
			"session_id": s.ID,
			"run_id":     job.RunID,
			"reason":     ReasonOf(job.err),
		})
		return
	}

	fit.stats.ValAccuracy = tstats.ValAccuracy
	s.codec = fit.codec
	s.model = model
	s.task = fit.task
	s.stats = fit.stats
	s.state = StateReady
	s.mu.Unlock()

	s.log.Infow("training done",
		"session", s.ID, "run", job.RunID,
		"loss", tstats.FinalLoss, "val_acc", tstats.ValAccuracy, "duration", tstats.Duration)

	if s.recorder != nil {
		rec := RunRecord{
			RunID:      job.RunID,
			SessionID:  s.ID,
			Mode:       string(fit.codec.Mode()),
			Task:       string(fit.task),
			Samples:    tstats.Samples,
			Features:   tstats.Features,
			Classes:    len(fit.classes),
			FinalLoss:  tstats.FinalLoss,
			ValLoss:    tstats.ValLoss,
			ValAcc:     tstats.ValAccuracy,
			DurationMS: tstats.Duration.Milliseconds(),
		}
		if err := s.recorder.RecordRun(rec); err != nil {
			s.log.Warnw("run record failed", "run", job.RunID, "err", err)
		}
	}
	s.events.Publish("training_done", map[string]interface{}{
		"session_id": s.ID,
		"run_id":     job.RunID,
		"task":       fit.task,
	})
}

// classifyTrainError maps trainer failures onto the caller taxonomy. Any
// unexpected failure during training surfaces as a precondition-class
// "training failed" so the session never wedges.
func classifyTrainError(err error) error {
	switch {
	case errors.Is(err, trainer.ErrInsufficientSamples):
		return preconditionErr(ReasonInsufficientSamples)
	case errors.Is(err, trainer.ErrInsufficientClasses):
		return preconditionErr(ReasonInsufficientClasses)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return preconditionErr(ReasonTrainingFailed)
	}
}

func (s *Session) fitLocked(req TrainRequest) (*fitted, error) {
	switch s.mode {
	case dataset.ModeImage:
		return s.fitImageLocked()
	case dataset.ModeText:
		return s.fitTextLocked()
	case dataset.ModeTabular:
		return s.fitTabularLocked(req)
	default:
		return nil, stateErr("no mode selected")
	}
}

func (s *Session) fitImageLocked() (*fitted, error) {
	if len(s.classes) < s.cfg.MinImageClasses {
		return nil, preconditionErr(ReasonInsufficientClasses)
	}
	if s.sampleCountLocked() < trainer.MinSamples {
		return nil, preconditionErr(ReasonInsufficientSamples)
	}

	c := codec.FitImage(s.cfg.ImageGridSize)
	fit := &fitted{
		codec:   c,
		task:    dataset.TaskClassification,
		classes: append([]string(nil), s.classes...),
	}
	counts := make(map[string]int, len(s.classes))
	for ordinal, class := range s.classes {
		for _, img := range s.imageSamples[class] {
			vec, err := c.Transform(img)
			if err != nil {
				return nil, inputErr(err.Error())
			}
			fit.features = append(fit.features, vec)
			fit.labels = append(fit.labels, ordinal)
		}
		counts[class] = len(s.imageSamples[class])
	}
	fit.stats = predict.SummaryStats{
		SampleCount:  len(fit.features),
		FeatureCount: c.Dim(),
		ClassCounts:  counts,
	}
	return fit, nil
}

func (s *Session) fitTextLocked() (*fitted, error) {
	if len(s.textSamples) < trainer.MinSamples {
		return nil, preconditionErr(ReasonInsufficientSamples)
	}

	texts := make([]string, len(s.textSamples))
	for i, t := range s.textSamples {
		texts[i] = t.Text
	}
	c, err := codec.FitText(texts)
	if err != nil {
		if errors.Is(err, codec.ErrInsufficientVocabulary) {
			return nil, preconditionErr(ReasonInsufficientVocabulary)
		}
		return nil, preconditionErr(err.Error())
	}

	// Label ordinals follow first-seen order across the sample stream.
	labelIndex := make(map[string]int)
	var classes []string
	counts := make(map[string]int)
	fit := &fitted{codec: c, task: dataset.TaskClassification}
	for _, t := range s.textSamples {
		label := strings.TrimSpace(t.Label)
		if _, ok := labelIndex[label]; !ok {
			labelIndex[label] = len(classes)
			classes = append(classes, label)
		}
		vec, err := c.Transform(t)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		fit.features = append(fit.features, vec)
		fit.labels = append(fit.labels, labelIndex[label])
		counts[label]++
	}
	if len(classes) < trainer.MinClasses {
		return nil, preconditionErr(ReasonInsufficientClasses)
	}
	fit.classes = classes
	fit.stats = predict.SummaryStats{
		SampleCount:    len(fit.features),
		FeatureCount:   c.Dim(),
		ClassCounts:    counts,
		VocabularySize: c.VocabularySize(),
	}
	return fit, nil
}

func (s *Session) fitTabularLocked(req TrainRequest) (*fitted, error) {
	if s.table == nil || s.table.NumRows() < trainer.MinSamples {
		return nil, preconditionErr(ReasonInsufficientSamples)
	}

	target := strings.TrimSpace(req.TargetColumn)
	if target == "" {
		target = s.targetColumn
	}
	if target == "" {
		target = s.table.Columns[len(s.table.Columns)-1]
	}
	if !s.table.HasColumn(target) {
		return nil, inputErr("unknown target column: " + target)
	}
	s.targetColumn = target

	task := req.Task
	if task == "" {
		detected, err := s.table.DetectTask(target, s.cfg.TaskPolicy)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		task = detected
	}

	c, err := codec.FitTabular(s.table, target, task)
	if err != nil {
		return nil, preconditionErr(err.Error())
	}

	fit := &fitted{codec: c, task: task}
	counts := make(map[string]int)
	for _, row := range s.table.Rows {
		vec, err := c.Transform(row)
		if err != nil {
			return nil, inputErr(err.Error())
		}
		fit.features = append(fit.features, vec)
		raw, _ := row.Get(target)
		if task == dataset.TaskClassification {
			ordinal, err := c.EncodeLabel(raw)
			if err != nil {
				return nil, inputErr(err.Error())
			}
			fit.labels = append(fit.labels, ordinal)
			counts[strings.TrimSpace(raw)]++
		} else {
			v, err := parseTarget(raw)
			if err != nil {
				return nil, inputErr(err.Error())
			}
			fit.targets = append(fit.targets, c.NormalizeTarget(v))
		}
	}

	fit.stats = predict.SummaryStats{
		SampleCount:  len(fit.features),
		FeatureCount: c.FeatureCount(),
	}
	if task == dataset.TaskClassification {
		if c.NumClasses() < trainer.MinClasses {
			return nil, preconditionErr(ReasonInsufficientClasses)
		}
		fit.classes = c.Labels()
		fit.stats.ClassCounts = counts
	} else {
		fit.stats.TargetMin, fit.stats.TargetMax = c.TargetRange()
	}
	return fit, nil
}
