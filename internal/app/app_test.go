package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/notify"
)

// recordingSink collects sent states and fails while err is set.
type recordingSink struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (s *recordingSink) Send(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.states = append(s.states, n.Value.State)
	return nil
}

func (s *recordingSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.states...)
}

// quitAfter asks to quit once n frames were rendered.
type quitAfter struct {
	n, frames int
	closed    bool
}

func (r *quitAfter) Render(frame *gocv.Mat) bool {
	r.frames++
	return r.frames >= r.n
}

func (r *quitAfter) Close() error {
	r.closed = true
	return nil
}

// brokenCamera fails to open.
type brokenCamera struct{ capture.MockCamera }

func (c *brokenCamera) Open() error { return capture.ErrCameraNotOpen }

func newTestSession(t *testing.T, cam capture.Camera, det detector.Detector, sink notify.Sink, cfg Config) *Session {
	t.Helper()
	cfg.Camera = cam
	cfg.Detector = det
	cfg.Dispatcher = dispatch.New(sink,
		notify.Template{APIKey: "k", DeviceID: "d", Action: "setPowerState"},
		map[int]string{3: "Off", 4: "On"},
	)
	return New(cfg)
}

func hands(h ...detector.HandLandmarks) []detector.HandLandmarks {
	return h
}

func TestProcessFrame_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]detector.HandLandmarks
		want   []string
	}{
		{"three fingers sends off", [][]detector.HandLandmarks{hands(detector.ThreeFingersLandmarks())}, []string{"Off"}},
		{"four fingers sends on", [][]detector.HandLandmarks{hands(detector.FourFingersLandmarks())}, []string{"On"}},
		{
			"held gesture sends once",
			[][]detector.HandLandmarks{hands(detector.ThreeFingersLandmarks()), hands(detector.ThreeFingersLandmarks())},
			[]string{"Off"},
		},
		{
			"no hand between same gesture",
			[][]detector.HandLandmarks{hands(detector.FourFingersLandmarks()), nil, hands(detector.FourFingersLandmarks())},
			[]string{"On"},
		},
		{
			"toggle",
			[][]detector.HandLandmarks{hands(detector.ThreeFingersLandmarks()), hands(detector.FourFingersLandmarks()), hands(detector.ThreeFingersLandmarks())},
			[]string{"Off", "On", "Off"},
		},
		{"unbound counts", [][]detector.HandLandmarks{hands(detector.FistLandmarks()), hands(detector.OpenPalmLandmarks())}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := detector.NewMockDetector()
			det.SetSequence(tt.frames...)
			sink := &recordingSink{}
			s := newTestSession(t, capture.NewMockCamera(nil, false), det, sink, Config{})

			for range tt.frames {
				s.ProcessFrame(context.Background(), nil)
			}

			got := sink.sent()
			if len(got) != len(tt.want) {
				t.Fatalf("sent %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sent[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestProcessFrame_Observation(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.FourFingersLandmarks(), detector.ThumbsUpLandmarks()))
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, &recordingSink{}, Config{})

	obs := s.ProcessFrame(context.Background(), nil)

	if !obs.HasHands() || len(obs.Hands) != 2 {
		t.Fatalf("expected 2 hands, got %d", len(obs.Hands))
	}
	if obs.Count != 4 {
		t.Errorf("Count = %d, want 4 (first hand)", obs.Count)
	}
	if len(obs.Counts) != 2 || obs.Counts[0] != 4 || obs.Counts[1] != 1 {
		t.Errorf("Counts = %v, want [4 1]", obs.Counts)
	}
	if obs.Fingers.Count() != 4 {
		t.Errorf("Fingers = %v, want the first hand's digits", obs.Fingers)
	}
	if obs.Dispatch == nil || obs.Dispatch.Outcome != dispatch.Sent || obs.Dispatch.State != "On" {
		t.Errorf("Dispatch = %+v, want Sent On", obs.Dispatch)
	}
	if obs.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestProcessFrame_NoHands(t *testing.T) {
	det := detector.NewMockDetector()
	sink := &recordingSink{}
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, sink, Config{})

	obs := s.ProcessFrame(context.Background(), nil)

	if det.Calls() != 1 {
		t.Errorf("detector called %d times, want 1", det.Calls())
	}
	if obs.HasHands() || obs.Count != 0 || obs.Dispatch != nil {
		t.Errorf("unexpected observation %+v", obs)
	}
	if len(sink.sent()) != 0 {
		t.Error("nothing should be sent without a hand")
	}
	if _, ok := s.Dispatcher().Last(); ok {
		t.Error("dispatcher state changed without a hand")
	}
}

func TestProcessFrame_DetectorError(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThreeFingersLandmarks()))
	det.SetError(errors.New("mediapipe crashed"))
	sink := &recordingSink{}
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, sink, Config{})

	obs := s.ProcessFrame(context.Background(), nil)

	if obs.HasHands() || obs.Dispatch != nil {
		t.Errorf("expected a skipped frame, got %+v", obs)
	}
	if len(sink.sent()) != 0 {
		t.Error("nothing should be sent on detector error")
	}
}

func TestProcessFrame_SinkFailure(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThreeFingersLandmarks()))
	sink := &recordingSink{err: errors.New("connection refused")}
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, sink, Config{})

	obs := s.ProcessFrame(context.Background(), nil)
	if obs.Dispatch == nil || obs.Dispatch.Outcome != dispatch.Failed || obs.Dispatch.Err == nil {
		t.Fatalf("Dispatch = %+v, want Failed", obs.Dispatch)
	}

	// Held inside the retry window: not retried.
	obs = s.ProcessFrame(context.Background(), nil)
	if obs.Dispatch.Outcome != dispatch.Cooldown {
		t.Errorf("second Dispatch = %v, want Cooldown", obs.Dispatch.Outcome)
	}

	st := s.Status()
	if st.LastDispatch == nil || st.LastDispatch.Outcome != dispatch.Failed {
		t.Errorf("Status().LastDispatch = %+v, want the failed attempt", st.LastDispatch)
	}
}

func TestSession_SetEnabled(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.FourFingersLandmarks()))
	sink := &recordingSink{}
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, sink, Config{})

	if !s.IsEnabled() {
		t.Fatal("session should start enabled")
	}

	s.SetEnabled(false)
	obs := s.ProcessFrame(context.Background(), nil)
	if obs.Count != 4 {
		t.Errorf("Count = %d, want 4 while paused", obs.Count)
	}
	if obs.Dispatch != nil || len(sink.sent()) != 0 {
		t.Error("paused session must not dispatch")
	}

	s.SetEnabled(true)
	s.ProcessFrame(context.Background(), nil)
	if got := sink.sent(); len(got) != 1 || got[0] != "On" {
		t.Errorf("sent %v after resume, want [On]", got)
	}
}

func TestSession_StatusAndSubscribe(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThreeFingersLandmarks()))
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, &recordingSink{}, Config{})

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.ProcessFrame(context.Background(), nil)

	select {
	case obs := <-ch:
		if obs.Count != 3 {
			t.Errorf("observed count %d, want 3", obs.Count)
		}
	case <-time.After(time.Second):
		t.Fatal("no observation published")
	}

	st := s.Status()
	if st.Frames != 1 || st.Hands != 1 || st.Count != 3 || !st.Enabled || st.Running {
		t.Errorf("unexpected status %+v", st)
	}
	if st.LastDispatch == nil || st.LastDispatch.State != "Off" {
		t.Errorf("LastDispatch = %+v, want Off", st.LastDispatch)
	}
	if s.LatestFrame() != nil {
		t.Error("LatestFrame should be nil when frames are not encoded")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestRun_CaptureFailure(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	det := detector.NewMockDetector()
	renderer := display.NewHeadless()
	s := newTestSession(t, cam, det, &recordingSink{}, Config{
		Renderer:        renderer,
		MaxReadFailures: 5,
		ReadRetryDelay:  time.Millisecond,
	})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Run() error = %v, want ErrCaptureFailed", err)
	}
	if cam.Reads() != 5 {
		t.Errorf("camera read %d times, want 5", cam.Reads())
	}
	if cam.IsOpen() || cam.Closes() != 1 {
		t.Errorf("camera not released: open=%v closes=%d", cam.IsOpen(), cam.Closes())
	}
	if det.Calls() != 0 {
		t.Error("detector must not run without frames")
	}
	if s.Status().Running {
		t.Error("Status().Running still true after Run returned")
	}
}

func TestRun_Cancel(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	s := newTestSession(t, cam, detector.NewMockDetector(), &recordingSink{}, Config{
		MaxReadFailures: 0,
		ReadRetryDelay:  5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
	if cam.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.Closes())
	}
}

func TestRun_OpenFailure(t *testing.T) {
	s := newTestSession(t, &brokenCamera{}, detector.NewMockDetector(), &recordingSink{}, Config{})

	if err := s.Run(context.Background()); !errors.Is(err, capture.ErrCameraNotOpen) {
		t.Errorf("Run() error = %v, want ErrCameraNotOpen", err)
	}
}

// stuckRenderer fails to close.
type stuckRenderer struct{ closes int }

func (r *stuckRenderer) Render(frame *gocv.Mat) bool { return false }

func (r *stuckRenderer) Close() error {
	r.closes++
	return errors.New("window busy")
}

func TestRun_OpenFailure_LogsRendererClose(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	renderer := &stuckRenderer{}
	s := newTestSession(t, &brokenCamera{}, detector.NewMockDetector(), &recordingSink{},
		Config{Renderer: renderer, Logger: zap.New(core)})

	if err := s.Run(context.Background()); !errors.Is(err, capture.ErrCameraNotOpen) {
		t.Fatalf("Run() error = %v, want ErrCameraNotOpen", err)
	}
	if renderer.closes != 1 {
		t.Errorf("renderer closed %d times, want 1", renderer.closes)
	}

	entries := logs.FilterMessage("close renderer").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d close renderer warnings, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["error"]; got != "window busy" {
		t.Errorf("logged error = %v, want window busy", got)
	}
}

func TestRun_Frames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	det := detector.NewMockDetector()
	det.SetSequence(
		hands(detector.ThreeFingersLandmarks()),
		hands(detector.ThreeFingersLandmarks()),
		nil,
		hands(detector.FourFingersLandmarks()),
		hands(detector.FourFingersLandmarks()),
	)
	sink := &recordingSink{}
	renderer := &quitAfter{n: 6}
	s := newTestSession(t, cam, det, sink, Config{Renderer: renderer, EncodeFrames: true})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.sent(); len(got) != 2 || got[0] != "Off" || got[1] != "On" {
		t.Errorf("sent %v, want [Off On]", got)
	}
	if renderer.frames != 6 || !renderer.closed {
		t.Errorf("renderer frames=%d closed=%v", renderer.frames, renderer.closed)
	}
	if cam.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.Closes())
	}
	if st := s.Status(); st.Frames != 6 {
		t.Errorf("Status().Frames = %d, want 6", st.Frames)
	}

	jpeg := s.LatestFrame()
	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		t.Error("LatestFrame is not a JPEG")
	}
}

func TestProcessFrame_MotionGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	gate := capture.NewMotionGate(1.0, 0)
	defer gate.Close()

	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThreeFingersLandmarks()))
	s := newTestSession(t, capture.NewMockCamera(nil, false), det, &recordingSink{}, Config{Motion: gate})

	// ProcessFrame draws onto its frame, so the repeat is cloned up front.
	still := frame.Clone()
	defer still.Close()

	if obs := s.ProcessFrame(context.Background(), &frame); obs.Gated || obs.Count != 3 {
		t.Errorf("first frame = %+v, want it processed", obs)
	}
	if obs := s.ProcessFrame(context.Background(), &still); !obs.Gated {
		t.Error("still frame should be gated")
	}
	if det.Calls() != 1 {
		t.Errorf("detector called %d times, want 1", det.Calls())
	}
}
