// Package dispatch decides when a finger count becomes a notification.
//
// A Dispatcher remembers the last count it successfully dispatched and sends
// a notification only when a bound count differs from it. The memory lives as
// long as the Dispatcher, so holding a gesture steady sends exactly once.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/logger"
	"github.com/ayusman/mudra/internal/notify"
)

// Outcome classifies what Dispatch did with a count.
type Outcome int

const (
	// Unbound means no state is bound to the count.
	Unbound Outcome = iota
	// Suppressed means the count equals the last dispatched count.
	Suppressed
	// Sent means the sink accepted the notification.
	Sent
	// Failed means the sink returned an error.
	Failed
	// Cooldown means the count failed recently and is not retried yet.
	Cooldown
)

var outcomeNames = map[Outcome]string{
	Unbound:    "unbound",
	Suppressed: "suppressed",
	Sent:       "sent",
	Failed:     "failed",
	Cooldown:   "cooldown",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for k, name := range outcomeNames {
		if name == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Result describes one Dispatch call.
type Result struct {
	Count   int
	State   string
	Outcome Outcome
	Err     error
	At      time.Time
}

// Attempted reports whether the sink was called.
func (r Result) Attempted() bool {
	return r.Outcome == Sent || r.Outcome == Failed
}

// Recorder keeps a log of attempted notifications.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

const (
	DefaultTimeout    = 5 * time.Second
	DefaultRetryAfter = 2 * time.Second
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each Sink.Send call.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithRetryAfter sets how long a failed count waits before it is tried again.
func WithRetryAfter(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.retryAfter = d }
}

// WithRecorder sets the recorder that receives Sent and Failed results.
func WithRecorder(r Recorder) Option {
	return func(disp *Dispatcher) { disp.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(disp *Dispatcher) { disp.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(disp *Dispatcher) { disp.log = l }
}

// Dispatcher maps finger counts to notifications.
type Dispatcher struct {
	sink       notify.Sink
	template   notify.Template
	bindings   map[int]string
	timeout    time.Duration
	retryAfter time.Duration
	recorder   Recorder
	now        func() time.Time
	log        *zap.Logger

	mu         sync.Mutex
	last       int
	dispatched bool
	failed     int
	failedAt   time.Time
	hasFailed  bool
}

// New creates a Dispatcher sending through sink. bindings maps a finger
// count to the state it requests; it is copied.
func New(sink notify.Sink, template notify.Template, bindings map[int]string, opts ...Option) *Dispatcher {
	b := make(map[int]string, len(bindings))
	for count, state := range bindings {
		b[count] = state
	}

	d := &Dispatcher{
		sink:       sink,
		template:   template,
		bindings:   b,
		timeout:    DefaultTimeout,
		retryAfter: DefaultRetryAfter,
		now:        time.Now,
		log:        logger.Log().Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one observed finger count.
//
// A notification is sent when the count is bound and differs from the last
// dispatched count. Send errors never escape: they come back in Result.Err
// with Outcome Failed, and the last dispatched count stays unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, count int) Result {
	now := d.now()
	result := Result{Count: count, At: now}

	state, ok := d.bindings[count]
	if !ok {
		result.Outcome = Unbound
		return result
	}
	result.State = state

	d.mu.Lock()
	if d.dispatched && d.last == count {
		d.mu.Unlock()
		result.Outcome = Suppressed
		return result
	}
	if d.hasFailed && d.failed == count && now.Sub(d.failedAt) < d.retryAfter {
		d.mu.Unlock()
		result.Outcome = Cooldown
		return result
	}
	d.mu.Unlock()

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := d.sink.Send(sendCtx, d.template.For(count, state))

	d.mu.Lock()
	if err != nil {
		d.failed = count
		d.failedAt = now
		d.hasFailed = true
		result.Outcome = Failed
		result.Err = err
	} else {
		d.last = count
		d.dispatched = true
		d.hasFailed = false
		result.Outcome = Sent
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Warn("notification failed",
			zap.Int("count", count),
			zap.String("state", state),
			zap.Error(err))
	} else {
		d.log.Info("notification sent",
			zap.Int("count", count),
			zap.String("state", state))
	}

	if d.recorder != nil {
		if rerr := d.recorder.Record(ctx, result); rerr != nil {
			d.log.Warn("record dispatch", zap.Error(rerr))
		}
	}

	return result
}

// Last returns the last dispatched count. ok is false before the first
// successful dispatch and after Reset.
func (d *Dispatcher) Last() (count int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.dispatched
}

// Reset forgets the last dispatched count and any pending failure.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = 0
	d.dispatched = false
	d.hasFailed = false
}

// Bindings returns a copy of the count to state bindings.
func (d *Dispatcher) Bindings() map[int]string {
	b := make(map[int]string, len(d.bindings))
	for count, state := range d.bindings {
		b[count] = state
	}
	return b
}
