package main

import (
	"errors"
	"fmt"

	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/session"
)

// FormatUserError turns internal error chains into one line a user can act on
func FormatUserError(err error) string {
	var (
		lookupErr   *device.LookupError
		notFoundErr *device.NotFoundError
		decodeErr   *device.DecodeError
		partialErr  *session.PartialError
	)

	switch {
	case device.IsConnectionState(err, device.BluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrCancelled):
		return "device selection was cancelled"
	case errors.Is(err, device.ErrNoDevice):
		return "no matching device found; is the sensor powered and advertising?"
	case device.IsConnectionState(err, device.SessionUsed):
		return "session already used; start a new one"
	case device.IsConnectionState(err, device.NotConnected):
		return "device is not connected"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("operation not supported: %v", err)
	case errors.As(err, &lookupErr):
		return fmt.Sprintf("characteristic %s was not discovered; check characteristic_uuids in the config", lookupErr.UUID)
	case errors.As(err, &notFoundErr):
		return notFoundErr.Error() + " on the device"
	case errors.As(err, &decodeErr):
		return decodeErr.Error()
	case errors.As(err, &partialErr):
		return partialErr.Error()
	default:
		return err.Error()
	}
}
