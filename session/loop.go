package session

import (
	"context"
	"time"
)

// predictLoop is the recurring live-inference task. One owner per session;
// stopping is synchronous and leaves no dangling timer.
type predictLoop struct {
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartPredictLoop begins periodic inference against the most recent live
// sample. Starting while a loop is active stops the prior one first, so at
// most one loop runs per session.
func (s *Session) StartPredictLoop(interval time.Duration) error {
	s.stopLoop()

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return stateErr(ReasonModelNotReady)
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	loop := &predictLoop{
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.loop = loop
	s.mu.Unlock()

	go s.runLoop(loop)
	s.log.Infow("prediction loop started", "session", s.ID, "interval", interval)
	return nil
}

// StopPredictLoop cancels the active loop and waits for it to exit.
func (s *Session) StopPredictLoop() {
	s.stopLoop()
}

func (s *Session) stopLoop() {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()
	if loop == nil {
		return
	}
	loop.cancel()
	<-loop.done
}

func (s *Session) runLoop(loop *predictLoop) {
	defer close(loop.done)
	ticker := time.NewTicker(loop.interval)
	defer ticker.Stop()

	for {
		select {
		case <-loop.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			sample := s.liveSample
			s.mu.Unlock()
			if sample == nil {
				continue
			}
			p, err := s.Predict(sample)
			if err != nil {
				// The model was reset underneath the loop; stop ticking.
				if KindOf(err) == StateError {
					return
				}
				continue
			}
			s.events.Publish("prediction", map[string]interface{}{
				"session_id":  s.ID,
				"result":      p.Result,
				"explanation": p.Explanation,
			})
		}
	}
}
