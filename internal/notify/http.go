package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/logger"
)

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned %s", e.Status)
	}
	return fmt.Sprintf("endpoint returned %s: %s", e.Status, e.Body)
}

// HTTPSink posts notifications as JSON to a URL.
type HTTPSink struct {
	url    string
	client *resty.Client
	log    *zap.Logger
}

// NewHTTPSink creates a sink posting to url. timeout bounds each request.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: resty.New().SetTimeout(timeout),
		log:    logger.Log().Named("notify"),
	}
}

// URL returns the endpoint notifications are posted to.
func (s *HTTPSink) URL() string {
	return s.url
}

// Send posts n to the endpoint. Transport failures and non-2xx responses are
// returned as errors.
func (s *HTTPSink) Send(ctx context.Context, n Notification) error {
	start := time.Now()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.url, err)
	}

	s.log.Debug("notification posted",
		zap.String("state", n.Value.State),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)))

	if resp.IsError() {
		return &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.String(),
		}
	}
	return nil
}
