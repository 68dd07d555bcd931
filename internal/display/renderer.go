package display

import (
	"gocv.io/x/gocv"
)

// WindowTitle is the title of the preview window.
const WindowTitle = "Hand Finger Detection"

// QuitKey stops the program when pressed in the preview window.
const QuitKey = 'q'

// Renderer shows annotated frames.
type Renderer interface {
	// Render shows frame and reports whether the user asked to quit.
	Render(frame *gocv.Mat) (quit bool)
	Close() error
}

// Window renders into a native OpenCV window. It must be created and used
// on the main OS thread on platforms that require it.
type Window struct {
	win *gocv.Window
}

// NewWindow opens the preview window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Render shows frame and polls the keyboard for one millisecond.
func (w *Window) Render(frame *gocv.Mat) bool {
	if frame != nil && !frame.Empty() {
		w.win.IMShow(*frame)
	}
	return IsQuitKey(w.win.WaitKey(1))
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}

// IsQuitKey reports whether a WaitKey result is the quit key.
func IsQuitKey(key int) bool {
	return key >= 0 && key&0xFF == QuitKey
}

// Headless discards frames. It never asks to quit.
type Headless struct {
	frames int
}

// NewHeadless returns a renderer without a window.
func NewHeadless() *Headless {
	return &Headless{}
}

// Render counts the frame.
func (h *Headless) Render(frame *gocv.Mat) bool {
	h.frames++
	return false
}

// Frames returns the number of frames rendered.
func (h *Headless) Frames() int {
	return h.frames
}

// Close is a no-op.
func (h *Headless) Close() error {
	return nil
}
