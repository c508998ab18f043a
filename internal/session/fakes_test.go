package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/fsm"
	"github.com/rbright/voicebridge/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	startErr error
	buf      audio.Buffer

	starts atomic.Int32
	stops  atomic.Int32
}

func (f *fakeRecorder) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts.Add(1)
	return nil
}

func (f *fakeRecorder) Stop() audio.Buffer {
	f.stops.Add(1)
	return f.buf
}

// gate lets a test hold a fake collaborator inside its blocking call.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) awaitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for blocked call")
	}
}

type fakeTranscriber struct {
	text string
	err  error
	gate *gate

	calls    atomic.Int32
	returned atomic.Int32

	mu   sync.Mutex
	last audio.Buffer
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	f.calls.Add(1)
	defer f.returned.Add(1)

	f.mu.Lock()
	f.last = buf
	f.mu.Unlock()

	if buf.Empty() {
		return "", nil
	}
	if err := f.gate.wait(ctx); err != nil {
		return "", err
	}
	return f.text, f.err
}

func (f *fakeTranscriber) lastBuffer() audio.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeRefiner struct {
	text string
	err  error
	gate *gate

	calls atomic.Int32

	mu     sync.Mutex
	inputs []string
}

func (f *fakeRefiner) Refine(ctx context.Context, text string) (string, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()

	if err := f.gate.wait(ctx); err != nil {
		return "", err
	}
	return f.text, f.err
}

type recordingSender struct {
	err error

	mu     sync.Mutex
	events []protocol.Event
}

func (r *recordingSender) Send(event protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSender) snapshot() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events...)
}

func (r *recordingSender) kinds() []protocol.EventKind {
	events := r.snapshot()
	kinds := make([]protocol.EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

type fakeObserver struct {
	autoStops atomic.Int32

	mu       sync.Mutex
	outcomes []Outcome
	recorded []time.Duration
}

func (f *fakeObserver) TurnFinished(outcome Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeObserver) AutoStopped() {
	f.autoStops.Add(1)
}

func (f *fakeObserver) Recorded(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, d)
}

func (f *fakeObserver) outcomeList() []Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Outcome(nil), f.outcomes...)
}

type harness struct {
	session     *Session
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
	refiner     *fakeRefiner
	sender      *recordingSender
	observer    *fakeObserver
}

func twoSecondsOfAudio() audio.Buffer {
	samples := make([]int16, 2*audio.DefaultSampleRate)
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	return audio.Buffer{Samples: samples, SampleRate: audio.DefaultSampleRate}
}

func newHarness(t *testing.T, maxRecord time.Duration) *harness {
	t.Helper()

	h := &harness{
		recorder:    &fakeRecorder{buf: twoSecondsOfAudio()},
		transcriber: &fakeTranscriber{text: "fix the the bug in auth"},
		refiner:     &fakeRefiner{text: "Fix the bug in authentication."},
		sender:      &recordingSender{},
		observer:    &fakeObserver{},
	}
	h.session = New(context.Background(), Options{
		MaxRecord:   maxRecord,
		Recorder:    h.recorder,
		Transcriber: h.transcriber,
		Refiner:     h.refiner,
		Sender:      h.sender,
		Observer:    h.observer,
	})
	t.Cleanup(h.session.Close)
	return h
}

func waitForState(t *testing.T, s *Session, desired fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == desired {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", desired, s.State())
}

func waitForEvents(t *testing.T, sender *recordingSender, n int) []protocol.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := sender.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events (got %v)", n, sender.kinds())
	return nil
}

// waitForWorkers blocks until every pipeline goroutine started so far has returned.
func waitForWorkers(t *testing.T, s *Session) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for pipeline workers")
	}
}

var errBoom = errors.New("boom")

func requireKinds(t *testing.T, sender *recordingSender, want ...protocol.EventKind) {
	t.Helper()
	require.Equal(t, want, sender.kinds())
}
