// Package notify delivers power-state notifications to a smart-home endpoint.
package notify

import (
	"context"
)

// Value carries the requested device state.
type Value struct {
	State string `json:"state"`
}

// Notification is the JSON body posted to the automation endpoint.
type Notification struct {
	APIKey   string `json:"api_key"`
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Value    Value  `json:"value"`

	// Count is the finger count that produced the notification. It is not
	// part of the wire payload.
	Count int `json:"-"`
}

// Template holds the fields shared by every notification of a device.
type Template struct {
	APIKey   string
	DeviceID string
	Action   string
}

// For returns the notification asking for state, produced by count fingers.
func (t Template) For(count int, state string) Notification {
	return Notification{
		APIKey:   t.APIKey,
		DeviceID: t.DeviceID,
		Action:   t.Action,
		Value:    Value{State: state},
		Count:    count,
	}
}

// Sink delivers a notification. Implementations must honor ctx cancellation.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

// Send calls f(ctx, n).
func (f SinkFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
