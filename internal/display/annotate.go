// Package display draws detection results onto frames and shows them.
package display

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// Overlay styling.
var (
	TextOrigin = image.Pt(10, 30)
	TextColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	TextScale  = 1.0
	TextWeight = 2

	JointColor  = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	JointRadius = 2
	BoneColor   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	BoneWeight  = 2
)

// Label returns the overlay text for a finger count.
func Label(count int) string {
	return fmt.Sprintf("Fingers: %d", count)
}

// Annotate draws every hand's skeleton onto frame and, when at least one hand
// is present, the finger count of the first hand.
func Annotate(frame *gocv.Mat, hands []detector.HandLandmarks, count int) {
	if frame == nil || frame.Empty() {
		return
	}

	for i := range hands {
		DrawHand(frame, &hands[i])
	}

	if len(hands) > 0 {
		gocv.PutText(frame, Label(count), TextOrigin, gocv.FontHersheySimplex, TextScale, TextColor, TextWeight)
	}
}

// DrawHand draws the bones and joints of one hand. Landmarks outside the
// frame are skipped, along with the bones that touch them.
func DrawHand(frame *gocv.Mat, hand *detector.HandLandmarks) {
	w, h := frame.Cols(), frame.Rows()

	var pts [detector.NumLandmarks]image.Point
	var visible [detector.NumLandmarks]bool
	for i, p := range hand.Points {
		pts[i], visible[i] = ToPixel(p, w, h)
	}

	for _, c := range detector.HandConnections {
		if visible[c[0]] && visible[c[1]] {
			gocv.Line(frame, pts[c[0]], pts[c[1]], BoneColor, BoneWeight)
		}
	}
	for i := range pts {
		if visible[i] {
			gocv.Circle(frame, pts[i], JointRadius, JointColor, -1)
		}
	}
}

// ToPixel maps a normalized landmark to pixel coordinates in a w by h frame.
// ok is false when the landmark lies outside the frame.
func ToPixel(p detector.Point3D, w, h int) (pt image.Point, ok bool) {
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return image.Point{}, false
	}
	x := int(p.X * float64(w))
	y := int(p.Y * float64(h))
	if x >= w {
		x = w - 1
	}
	if y >= h {
		y = h - 1
	}
	return image.Pt(x, y), true
}
