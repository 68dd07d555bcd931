package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// DefaultStreamFPS is the MJPEG frame rate when ?fps is not given.
const DefaultStreamFPS = 15

// FrameSource supplies the latest encoded frame.
type FrameSource interface {
	LatestFrame() []byte
}

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	frames FrameSource
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames to connected clients. Only frames that
// changed since the last write are sent.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fps := parseIntDefault(r.URL.Query().Get("fps"), DefaultStreamFPS)
	if fps < 1 || fps > 60 {
		fps = DefaultStreamFPS
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		buf := h.frames.LatestFrame()
		if len(buf) == 0 || bytes.Equal(buf, last) {
			continue
		}
		last = buf

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
