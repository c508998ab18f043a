package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/fsm"
	"github.com/rbright/voicebridge/internal/protocol"
)

// runPipeline transcribes and refines one turn off the read loop. The turn's
// cancel flag is checked before transcription, after transcription, and
// (under s.mu) after refinement; in-flight calls are never interrupted.
func (s *Session) runPipeline(t *turn, buf audio.Buffer) {
	defer s.workers.Done()

	started := time.Now()
	text, err := s.process(t, buf)
	s.deliver(t, text, err, time.Since(started))
}

func (s *Session) process(t *turn, buf audio.Buffer) (string, error) {
	if t.cancelled.Load() {
		return "", errTurnCancelled
	}

	transcript, err := s.transcriber.Transcribe(s.ctx, buf)
	if t.cancelled.Load() {
		if err != nil {
			return "", fmt.Errorf("transcribe: %w", err)
		}
		return "", errTurnCancelled
	}
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptySpeech
	}
	s.logger.Debug("transcribed", "turn", t.id, "transcript", transcript)

	refined, err := s.refiner.Refine(s.ctx, transcript)
	if err != nil {
		return "", err
	}
	return refined, nil
}

// deliver is the post-refine checkpoint: the outcome is sent only when the
// turn is still current and was not cancelled.
func (s *Session) deliver(t *turn, text string, err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.cancelled.Load() || s.closed || s.turn != t {
		if err != nil && !errors.Is(err, errTurnCancelled) {
			s.logger.Warn("pipeline error after cancel; not delivered", "turn", t.id, "error", err.Error())
		}
		s.logger.Info("turn result discarded", "turn", t.id, "elapsed", elapsed.String())
		return
	}

	switch {
	case err == nil:
		s.finishLocked(fsm.EventComplete)
		s.observer.TurnFinished(OutcomeFinalPrompt)
		s.logger.Info("turn complete", "turn", t.id, "elapsed", elapsed.String(), "chars", len(text))
		s.sendLocked(protocol.FinalPrompt(text))
	case errors.Is(err, ErrEmptySpeech):
		s.finishLocked(fsm.EventFail)
		s.observer.TurnFinished(OutcomeNoSpeech)
		s.logger.Info("no speech detected", "turn", t.id)
		s.sendLocked(protocol.Error(ClientMessage(err)))
	default:
		s.finishLocked(fsm.EventFail)
		s.observer.TurnFinished(OutcomeError)
		s.logger.Error("turn failed", "turn", t.id, "elapsed", elapsed.String(), "error", err.Error())
		s.sendLocked(protocol.Error(ClientMessage(err)))
	}
}
