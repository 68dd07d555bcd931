package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/detector"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Observer is the subscription half of app.Session.
type Observer interface {
	Subscribe() (<-chan app.Observation, func())
}

// ObservationHandler streams frame observations over WebSocket.
type ObservationHandler struct {
	source Observer
	log    *zap.Logger
}

// NewObservationHandler creates a new ObservationHandler fed by source.
func NewObservationHandler(source Observer, log *zap.Logger) *ObservationHandler {
	return &ObservationHandler{source: source, log: log}
}

type observationMessage struct {
	Hands     []detector.HandLandmarks `json:"hands"`
	Counts    []int                    `json:"counts"`
	Count     int                      `json:"count"`
	Fingers   [5]bool                  `json:"fingers"`
	Dispatch  *dispatchResponse        `json:"dispatch,omitempty"`
	Gated     bool                     `json:"gated,omitempty"`
	Timestamp int64                    `json:"timestamp"`
}

func toMessage(obs app.Observation) observationMessage {
	msg := observationMessage{
		Hands:     obs.Hands,
		Counts:    obs.Counts,
		Count:     obs.Count,
		Fingers:   obs.Fingers,
		Dispatch:  toDispatchResponse(obs.Dispatch),
		Gated:     obs.Gated,
		Timestamp: obs.Timestamp.UnixMilli(),
	}
	if msg.Hands == nil {
		msg.Hands = []detector.HandLandmarks{}
	}
	if msg.Counts == nil {
		msg.Counts = []int{}
	}
	return msg
}

// ServeHTTP upgrades the request and writes one JSON message per observation
// until the client goes away.
func (h *ObservationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	observations, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends anything useful; reading detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case obs, ok := <-observations:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toMessage(obs)); err != nil {
				h.log.Debug("websocket write", zap.Error(err))
				return
			}
		}
	}
}
