package session

import (
	"strconv"
	"strings"

	"mllab/dataset"
	"mllab/predict"
)

// Prediction bundles the result with its rendered explanation.
type Prediction struct {
	Result      *predict.Result `json:"result"`
	Explanation string          `json:"explanation"`
}

// Predict serves one inference against the frozen codec and model. Only a
// Ready session can predict; anything earlier is a state error.
func (s *Session) Predict(sample dataset.Sample) (*Prediction, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, stateErr(ReasonModelNotReady)
	}
	c, model, mode, stats := s.codec, s.model, s.mode, s.stats
	s.mu.Unlock()

	if sample == nil {
		return nil, inputErr(ReasonEmptyInput)
	}
	if img, ok := sample.(dataset.ImageSample); ok {
		if img.Empty() {
			return nil, inputErr(ReasonEmptyInput)
		}
		if img.Ragged() {
			return nil, inputErr(ReasonRaggedPixelGrid)
		}
	}
	if row, ok := sample.(dataset.TabularRow); ok && len(row.Values) == 0 {
		return nil, inputErr(ReasonEmptyInput)
	}

	res, err := predict.Predict(sample, c, model)
	if err != nil {
		return nil, inputErr(err.Error())
	}
	p := &Prediction{
		Result:      res,
		Explanation: predict.Explain(mode, res, stats),
	}

	if s.recorder != nil {
		rec := PredictionRecord{SessionID: s.ID, Mode: string(mode)}
		if top, ok := res.Top(); ok {
			rec.Label, rec.Confidence = top.Label, top.Confidence
		} else {
			rec.Value = res.Value
		}
		if err := s.recorder.RecordPrediction(rec); err != nil {
			s.log.Warnw("prediction record failed", "session", s.ID, "err", err)
		}
	}
	return p, nil
}

// SetLiveSample replaces the sample the recurring prediction loop reads,
// e.g. the newest camera frame.
func (s *Session) SetLiveSample(sample dataset.Sample) {
	s.mu.Lock()
	s.liveSample = sample
	s.mu.Unlock()
}

func parseTarget(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
