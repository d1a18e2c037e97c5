package devicefactory

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
	goble "github.com/srg/envsense/internal/device/go-ble"
)

// Central selects peripherals for sessions and can also report raw advertisements
type Central interface {
	device.Central
	Scan(ctx context.Context, opts device.RequestOptions, handler func(device.Advertisement)) error
}

// NewCentral creates the platform central used by commands.
// This is a variable so that it can be overridden in tests.
var NewCentral = func(logger *logrus.Logger) Central {
	return goble.NewCentral(logger)
}
