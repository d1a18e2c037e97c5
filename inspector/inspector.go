package inspector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/session"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions bounds the connect sequence. Zero ConnectTimeout means no timeout.
type InspectOptions struct {
	ConnectTimeout time.Duration
}

// SessionCallback processes a connected session and produces output of type R
type SessionCallback[R any] func(*session.Session, *session.ConnectReport) (R, error)

// WithSession connects a new session, runs callback and always closes the session.
// Partial discovery failures are logged but do not stop the callback.
func WithSession[R any](ctx context.Context, central device.Central, sessOpts session.Options, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback SessionCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	sess := session.New(central, sessOpts, logger)
	defer func() {
		if err := sess.Close(); err != nil {
			logger.WithError(err).Error("failed to close session")
		}
	}()

	progressCallback("Connecting")

	connectCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	report, err := sess.Connect(connectCtx)
	if err != nil {
		progressCallback("Failed")
		return zero, err
	}
	if partial := report.Err(); partial != nil {
		logger.WithError(partial).Warn("Connected with discovery failures")
	}

	progressCallback("Connected")
	progressCallback("Processing results")

	return callback(sess, report)
}
