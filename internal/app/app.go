// Package app runs the mudra frame loop: capture, landmark detection,
// finger counting, dispatch and display.
package app

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logger"
)

// ErrCaptureFailed is returned by Run when the camera keeps failing to
// deliver frames.
var ErrCaptureFailed = errors.New("capture failed")

// Loop defaults.
const (
	DefaultMaxReadFailures = 300
	DefaultReadRetryDelay  = 10 * time.Millisecond
)

// Config wires a Session. Camera, Detector and Dispatcher are required.
type Config struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Dispatcher *dispatch.Dispatcher

	// Renderer defaults to display.Headless.
	Renderer display.Renderer

	// Motion skips inference on still frames when set.
	Motion *capture.MotionGate

	// MaxReadFailures is the number of consecutive failed reads after which
	// Run gives up. 0 disables the limit.
	MaxReadFailures int
	ReadRetryDelay  time.Duration

	// EncodeFrames keeps a JPEG of the latest annotated frame for LatestFrame.
	EncodeFrames bool

	Logger *zap.Logger
}

// Observation is what one processed frame produced.
type Observation struct {
	Hands []detector.HandLandmarks
	// Counts holds the finger count of every hand, in detector order.
	Counts []int
	// Count and Fingers describe the first hand, which drives the dispatcher.
	Count    int
	Fingers  gesture.Fingers
	Dispatch *dispatch.Result
	// Gated is set when the motion gate skipped inference.
	Gated     bool
	Timestamp time.Time
}

// HasHands reports whether any hand was detected.
func (o Observation) HasHands() bool {
	return len(o.Hands) > 0
}

// Status is a snapshot of the session.
type Status struct {
	Running      bool
	Enabled      bool
	Frames       uint64
	Hands        int
	Count        int
	LastFrameAt  time.Time
	LastDispatch *dispatch.Result
}

// Session owns the frame loop.
type Session struct {
	camera     capture.Camera
	detector   detector.Detector
	dispatcher *dispatch.Dispatcher
	renderer   display.Renderer
	motion     *capture.MotionGate

	maxReadFailures int
	readRetryDelay  time.Duration
	encodeFrames    bool
	log             *zap.Logger

	mu           sync.RWMutex
	enabled      bool
	running      bool
	frames       uint64
	last         Observation
	lastDispatch *dispatch.Result
	jpeg         []byte

	observers *hub
}

// New creates a Session. Dispatch starts enabled.
func New(cfg Config) *Session {
	s := &Session{
		camera:          cfg.Camera,
		detector:        cfg.Detector,
		dispatcher:      cfg.Dispatcher,
		renderer:        cfg.Renderer,
		motion:          cfg.Motion,
		maxReadFailures: cfg.MaxReadFailures,
		readRetryDelay:  cfg.ReadRetryDelay,
		encodeFrames:    cfg.EncodeFrames,
		log:             cfg.Logger,
		enabled:         true,
		observers:       newHub(),
	}
	if s.renderer == nil {
		s.renderer = display.NewHeadless()
	}
	if s.readRetryDelay <= 0 {
		s.readRetryDelay = DefaultReadRetryDelay
	}
	if s.maxReadFailures < 0 {
		s.maxReadFailures = 0
	}
	if s.log == nil {
		s.log = logger.Log().Named("app")
	}
	return s
}

// SetEnabled pauses or resumes dispatching. Counting and display continue
// while paused.
func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	changed := s.enabled != enabled
	s.enabled = enabled
	s.mu.Unlock()

	if changed {
		s.log.Info("dispatch toggled", zap.Bool("enabled", enabled))
	}
}

// IsEnabled reports whether dispatching is active.
func (s *Session) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:     s.running,
		Enabled:     s.enabled,
		Frames:      s.frames,
		Hands:       len(s.last.Hands),
		Count:       s.last.Count,
		LastFrameAt: s.last.Timestamp,
	}
	if s.lastDispatch != nil {
		d := *s.lastDispatch
		st.LastDispatch = &d
	}
	return st
}

// LatestFrame returns the JPEG of the most recent annotated frame, or nil
// when frames are not encoded or none was processed yet.
func (s *Session) LatestFrame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jpeg
}

// Subscribe registers for observations. Slow subscribers miss observations
// instead of stalling the loop. Call the returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan Observation, func()) {
	return s.observers.subscribe()
}

// Dispatcher returns the session's dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

func (s *Session) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

func (s *Session) record(obs Observation, jpeg []byte) {
	s.mu.Lock()
	s.frames++
	s.last = obs
	if obs.Dispatch != nil && obs.Dispatch.Attempted() {
		d := *obs.Dispatch
		s.lastDispatch = &d
	}
	if jpeg != nil {
		s.jpeg = jpeg
	}
	s.mu.Unlock()

	s.observers.publish(obs)
}

// hub fans observations out to subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[chan Observation]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Observation]struct{})}
}

func (h *hub) subscribe() (<-chan Observation, func()) {
	ch := make(chan Observation, 8)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(obs Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- obs:
		default:
		}
	}
}
