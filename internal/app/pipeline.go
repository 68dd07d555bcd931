package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/gesture"
)

// Run opens the camera and processes frames until the renderer asks to quit,
// ctx is canceled or the camera fails MaxReadFailures times in a row. The
// camera and renderer are released on every exit path. Quit and
// cancellation return nil.
func (s *Session) Run(ctx context.Context) error {
	if err := s.camera.Open(); err != nil {
		if cerr := s.renderer.Close(); cerr != nil {
			s.log.Warn("close renderer", zap.Error(cerr))
		}
		return fmt.Errorf("open camera: %w", err)
	}
	s.setRunning(true)
	s.log.Info("frame loop started", zap.Int("max_read_failures", s.maxReadFailures))

	defer func() {
		s.setRunning(false)
		if err := s.camera.Close(); err != nil {
			s.log.Warn("close camera", zap.Error(err))
		}
		if err := s.renderer.Close(); err != nil {
			s.log.Warn("close renderer", zap.Error(err))
		}
		s.log.Info("frame loop stopped")
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.camera.ReadFrame()
		if err != nil {
			failures++
			s.log.Debug("read frame", zap.Int("failures", failures), zap.Error(err))
			if s.maxReadFailures > 0 && failures >= s.maxReadFailures {
				return fmt.Errorf("%w after %d consecutive reads: %w", ErrCaptureFailed, failures, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.readRetryDelay):
			}
			continue
		}
		failures = 0

		s.ProcessFrame(ctx, frame)
		quit := s.renderer.Render(frame)
		frame.Close()

		if quit {
			s.log.Info("quit requested")
			return nil
		}
	}
}

// ProcessFrame runs one loop iteration on frame: detect hands, count the
// fingers of each, dispatch the first hand's count and draw the overlay
// onto frame. It does not render or close frame.
func (s *Session) ProcessFrame(ctx context.Context, frame *gocv.Mat) Observation {
	obs := Observation{Timestamp: time.Now()}

	switch {
	case s.motion != nil && !s.motion.Allow(frame):
		obs.Gated = true
	default:
		s.detect(ctx, frame, &obs)
	}

	display.Annotate(frame, obs.Hands, obs.Count)

	var jpeg []byte
	if s.encodeFrames {
		jpeg = encodeJPEG(frame)
	}
	s.record(obs, jpeg)
	return obs
}

func (s *Session) detect(ctx context.Context, frame *gocv.Mat, obs *Observation) {
	hands, err := s.detector.Detect(frame)
	if err != nil {
		s.log.Warn("detect hands", zap.Error(err))
		return
	}
	if len(hands) == 0 {
		return
	}

	obs.Hands = hands
	obs.Counts = make([]int, len(hands))
	for i := range hands {
		f := gesture.Extended(&hands[i])
		obs.Counts[i] = f.Count()
		if i == 0 {
			obs.Fingers = f
		}
	}
	obs.Count = obs.Counts[0]

	s.log.Debug("hands counted", zap.Ints("counts", obs.Counts))

	if !s.IsEnabled() {
		return
	}
	res := s.dispatcher.Dispatch(ctx, obs.Count)
	obs.Dispatch = &res
}

func encodeJPEG(frame *gocv.Mat) []byte {
	if frame == nil || frame.Empty() {
		return nil
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
