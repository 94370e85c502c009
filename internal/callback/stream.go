package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/herdbook/herdbook/internal/backoff"
)

// Stream subscribes to the assessment service's websocket status feed and
// applies each frame through the Receiver, as the push alternative to the
// HTTP callback. Frames carry the same StatusUpdate wire format.
type Stream struct {
	url      string
	secret   string
	receiver *Receiver
	policy   *backoff.Policy
	logger   *slog.Logger

	// dialFunc and sleepFunc are injectable for testing.
	dialFunc  func(ctx context.Context, url string, opts *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewStream creates a Stream for the given feed URL. The shared secret is
// presented as a bearer token at dial time.
func NewStream(url, secret string, receiver *Receiver, policy *backoff.Policy, logger *slog.Logger) *Stream {
	return &Stream{
		url:       url,
		secret:    secret,
		receiver:  receiver,
		policy:    policy,
		logger:    logger,
		dialFunc:  websocket.Dial,
		sleepFunc: sleepStream,
	}
}

// Run maintains the subscription until ctx is canceled, reconnecting on the
// backoff curve. Losing the stream never loses updates for good: the
// timeout monitor backstops jobs whose notices went missing, and the HTTP
// callback stays available.
func (s *Stream) Run(ctx context.Context) error {
	attempt := 0

	for {
		connected, err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that got as far as a healthy connection resets the
		// curve; only consecutive failed dials escalate the delay.
		if connected {
			attempt = 0
		}

		delay := s.policy.NextDelay(attempt)
		attempt++

		s.logger.Warn("status stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("reconnect_in", delay),
		)

		if err := s.sleepFunc(ctx, delay); err != nil {
			return err
		}
	}
}

// consume dials the feed and applies frames until the connection drops. The
// returned bool reports whether the dial succeeded; the error is never nil
// because a healthy session only ends when the connection breaks.
func (s *Stream) consume(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.secret)

	conn, _, err := s.dialFunc(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.logger.Info("status stream connected", slog.String("url", s.url))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}

		var update StatusUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			s.logger.Warn("malformed stream frame", slog.String("error", err.Error()))
			continue
		}

		s.receiver.Handle(ctx, update)
	}
}

// sleepStream sleeps for d or until ctx is canceled.
func sleepStream(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
