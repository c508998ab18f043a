// Package session sequences one push-to-talk turn at a time for a client
// connection: capture, transcription, refinement, and cancellation.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/voicebridge/internal/fsm"
	"github.com/rbright/voicebridge/internal/protocol"
)

// DefaultMaxRecord bounds a turn's capture when Options.MaxRecord is unset.
const DefaultMaxRecord = 60 * time.Second

// Options wires a Session to its collaborators.
type Options struct {
	Logger      *slog.Logger
	MaxRecord   time.Duration
	Recorder    Recorder
	Transcriber Transcriber
	Refiner     Refiner
	Sender      Sender
	Observer    Observer
}

// Status is a point-in-time view of a Session.
type Status struct {
	State      fsm.State
	Turn       uint64
	TurnAge    time.Duration
	TurnsTotal uint64
}

// turn is one PTT_DOWN..outcome cycle. The cancel flag belongs to the turn so
// starting a new turn never clears the flag an orphaned worker is watching.
type turn struct {
	id        uint64
	startedAt time.Time
	timer     *time.Timer
	cancelled atomic.Bool
}

// Session is the per-connection turn state machine.
type Session struct {
	logger      *slog.Logger
	maxRecord   time.Duration
	recorder    Recorder
	transcriber Transcriber
	refiner     Refiner
	sender      Sender
	observer    Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   fsm.State
	turn    *turn
	turnSeq uint64
	closed  bool

	workers sync.WaitGroup
}

// New constructs an idle Session. Blocking work started by the session is
// bound to ctx and to Close.
func New(ctx context.Context, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxRecord <= 0 {
		opts.MaxRecord = DefaultMaxRecord
	}
	if opts.Recorder == nil {
		opts.Recorder = unavailableRecorder{}
	}
	if opts.Transcriber == nil {
		opts.Transcriber = unavailableTranscriber{}
	}
	if opts.Refiner == nil {
		opts.Refiner = unavailableRefiner{}
	}
	if opts.Sender == nil {
		opts.Sender = SenderFunc(func(protocol.Event) error { return nil })
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	return &Session{
		logger:      opts.Logger,
		maxRecord:   opts.MaxRecord,
		recorder:    opts.Recorder,
		transcriber: opts.Transcriber,
		refiner:     opts.Refiner,
		sender:      opts.Sender,
		observer:    opts.Observer,
		ctx:         sessionCtx,
		cancel:      cancel,
		state:       fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current state plus active turn details.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state, TurnsTotal: s.turnSeq}
	if s.turn != nil {
		status.Turn = s.turn.id
		status.TurnAge = time.Since(s.turn.startedAt)
	}
	return status
}

// Handle applies one client action. Actions are expected one at a time from
// the connection's read loop; the auto-stop timer and pipeline worker may
// run concurrently with it.
func (s *Session) Handle(action protocol.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch action {
	case protocol.ActionPTTDown:
		s.startLocked()
	case protocol.ActionPTTUp:
		if s.state != fsm.StateRecording {
			s.logger.Debug("PTT_UP ignored", "state", string(s.state))
			return
		}
		s.stopLocked(s.turn, "ptt_up")
	case protocol.ActionCancel:
		s.cancelLocked()
	default:
		s.logger.Warn("unrecognized action ignored", "action", string(action))
	}
}

// Close tears the session down: the active turn is cancelled, capture is
// released, and in-flight pipeline work is awaited. No events are sent after
// Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	if t := s.turn; t != nil {
		t.cancelled.Store(true)
		t.timer.Stop()
		if s.state == fsm.StateRecording {
			buf := s.recorder.Stop()
			s.logger.Info("recording discarded on disconnect", "turn", t.id, "samples", len(buf.Samples))
		}
		s.turn = nil
	}
	s.state = fsm.StateIdle
	s.mu.Unlock()

	s.cancel()
	s.workers.Wait()
}

func (s *Session) startLocked() {
	switch s.state {
	case fsm.StateRecording:
		s.logger.Debug("PTT_DOWN ignored; already recording", "turn", s.turn.id)
		return
	case fsm.StateProcessing:
		s.logger.Warn("PTT_DOWN ignored; previous turn still processing", "turn", s.turn.id)
		return
	}

	if err := s.recorder.Start(s.ctx); err != nil {
		deviceErr := &DeviceError{Err: err}
		s.logger.Error("capture start failed", "error", err.Error())
		s.observer.TurnFinished(OutcomeMicError)
		s.sendLocked(protocol.Error(ClientMessage(deviceErr)))
		return
	}

	next, err := fsm.Transition(s.state, fsm.EventStart)
	if err != nil {
		s.logger.Error("start transition rejected", "error", err.Error())
		s.recorder.Stop()
		return
	}

	s.turnSeq++
	t := &turn{id: s.turnSeq, startedAt: time.Now()}
	t.timer = time.AfterFunc(s.maxRecord, func() { s.autoStop(t) })
	s.turn = t
	s.state = next

	s.logger.Info("recording started", "turn", t.id, "max_record", s.maxRecord.String())
	s.sendLocked(protocol.Listening())
}

// autoStop runs on the timer goroutine. It loses cleanly to an explicit stop
// or cancel that already ended the turn.
func (s *Session) autoStop(t *turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.turn != t || s.state != fsm.StateRecording {
		return
	}
	s.logger.Info("max record duration reached; auto-stopping", "turn", t.id)
	s.observer.AutoStopped()
	s.stopLocked(t, "auto_stop")
}

// stopLocked is the only recording -> processing path. Callers hold s.mu and
// pass the turn they believe is current; a stale turn is a no-op.
func (s *Session) stopLocked(t *turn, reason string) {
	if t == nil || s.turn != t || s.state != fsm.StateRecording {
		return
	}

	next, err := fsm.Transition(s.state, fsm.EventStop)
	if err != nil {
		s.logger.Error("stop transition rejected", "turn", t.id, "error", err.Error())
		return
	}

	t.timer.Stop()
	buf := s.recorder.Stop()
	s.state = next
	s.observer.Recorded(buf.Duration())

	s.logger.Info("recording stopped",
		"turn", t.id,
		"reason", reason,
		"samples", len(buf.Samples),
		"audio", buf.Duration().String(),
	)

	if t.cancelled.Load() {
		s.finishLocked(fsm.EventCancel)
		s.observer.TurnFinished(OutcomeCancelled)
		return
	}

	s.sendLocked(protocol.Processing())

	s.workers.Add(1)
	go s.runPipeline(t, buf)
}

func (s *Session) cancelLocked() {
	t := s.turn
	switch s.state {
	case fsm.StateRecording:
		t.cancelled.Store(true)
		t.timer.Stop()
		buf := s.recorder.Stop()
		s.logger.Info("recording cancelled", "turn", t.id, "discarded_samples", len(buf.Samples))
	case fsm.StateProcessing:
		t.cancelled.Store(true)
		s.logger.Info("processing cancelled; result will be discarded", "turn", t.id)
	default:
		s.logger.Debug("CANCEL ignored", "state", string(s.state))
		return
	}

	s.finishLocked(fsm.EventCancel)
	s.observer.TurnFinished(OutcomeCancelled)
}

// finishLocked ends the current turn with event and returns to idle.
func (s *Session) finishLocked(event fsm.Event) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		s.logger.Error("finish transition rejected", "event", string(event), "error", err.Error())
		next = fsm.StateIdle
	}
	s.state = next
	s.turn = nil
}

func (s *Session) sendLocked(event protocol.Event) {
	if s.closed {
		return
	}
	if err := s.sender.Send(event); err != nil {
		s.logger.Warn("send event failed", "event", event.String(), "error", err.Error())
	}
}
