// Package trigger turns user activations into session connects. Device selection is
// only allowed in response to a user gesture, so nothing connects until Activate runs.
package trigger

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/session"
)

// Connector is the part of a session the trigger drives
type Connector interface {
	Connect(ctx context.Context) (*session.ConnectReport, error)
}

type Trigger struct {
	connector Connector
	logger    *logrus.Logger
}

func New(connector Connector, logger *logrus.Logger) *Trigger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Trigger{connector: connector, logger: logger}
}

// Activate connects and logs the outcome. Errors are not returned; the log is the result.
func (t *Trigger) Activate(ctx context.Context) {
	t.logger.Info("new activation, connect")

	report, err := t.connector.Connect(ctx)
	if err != nil {
		t.logger.WithField("error", err).Error("connect error!")
		return
	}

	entry := t.logger.WithFields(logrus.Fields{
		"device":  report.Device,
		"address": report.Address,
	})
	if partial := report.Err(); partial != nil {
		var pe *session.PartialError
		if errors.As(partial, &pe) {
			entry = entry.WithField("failed", len(pe.Failures))
		}
		entry.WithField("error", partial).Warn("connected")
		return
	}
	entry.Info("connected")
}

// Listen calls Activate for every event until events is closed or ctx is done
func (t *Trigger) Listen(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			t.Activate(ctx)
		}
	}
}
