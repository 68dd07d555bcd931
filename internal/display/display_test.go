package display

import (
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "Fingers: 0"},
		{3, "Fingers: 3"},
		{5, "Fingers: 5"},
	}
	for _, tt := range tests {
		if got := Label(tt.count); got != tt.want {
			t.Errorf("Label(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestToPixel(t *testing.T) {
	tests := []struct {
		name   string
		p      detector.Point3D
		want   image.Point
		wantOK bool
	}{
		{"origin", detector.Point3D{X: 0, Y: 0}, image.Pt(0, 0), true},
		{"center", detector.Point3D{X: 0.5, Y: 0.5}, image.Pt(320, 240), true},
		{"far edge clamps", detector.Point3D{X: 1, Y: 1}, image.Pt(639, 479), true},
		{"left of frame", detector.Point3D{X: -0.1, Y: 0.5}, image.Point{}, false},
		{"below frame", detector.Point3D{X: 0.5, Y: 1.2}, image.Point{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToPixel(tt.p, 640, 480)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ToPixel() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsQuitKey(t *testing.T) {
	tests := []struct {
		key  int
		want bool
	}{
		{-1, false},
		{'q', true},
		{'q' | 0x100000, true},
		{'Q', false},
		{27, false},
	}
	for _, tt := range tests {
		if got := IsQuitKey(tt.key); got != tt.want {
			t.Errorf("IsQuitKey(%d) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

// hasGreen reports whether any pixel in r is pure overlay green.
func hasGreen(m *gocv.Mat, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := m.GetVecbAt(y, x)
			if v[0] == 0 && v[1] == 255 && v[2] == 0 {
				return true
			}
		}
	}
	return false
}

func TestAnnotate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	textArea := image.Rect(10, 5, 200, 40)

	t.Run("draws count and skeleton", func(t *testing.T) {
		frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer frame.Close()

		hand := detector.OpenPalmLandmarks()
		Annotate(&frame, []detector.HandLandmarks{hand}, 5)

		if !hasGreen(&frame, textArea) {
			t.Error("expected green count text near the top-left corner")
		}

		wrist, _ := ToPixel(hand.Points[detector.Wrist], 640, 480)
		if v := frame.GetVecbAt(wrist.Y, wrist.X); v[0] == 0 && v[1] == 0 && v[2] == 0 {
			t.Error("expected the wrist joint to be drawn")
		}
	})

	t.Run("no hands leaves frame untouched", func(t *testing.T) {
		frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer frame.Close()

		Annotate(&frame, nil, 0)

		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

		if n := gocv.CountNonZero(gray); n != 0 {
			t.Errorf("expected a blank frame, %d pixels changed", n)
		}
	})

	t.Run("nil frame", func(t *testing.T) {
		Annotate(nil, []detector.HandLandmarks{detector.FistLandmarks()}, 0)
	})
}

func TestHeadless(t *testing.T) {
	h := NewHeadless()

	for i := 0; i < 3; i++ {
		if h.Render(nil) {
			t.Fatal("headless renderer must never ask to quit")
		}
	}
	if h.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", h.Frames())
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

var (
	_ Renderer = (*Window)(nil)
	_ Renderer = (*Headless)(nil)
)
