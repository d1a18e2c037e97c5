package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents a discovery failure: a named service or characteristic
// does not exist on the peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// LookupError is returned when an operation targets a characteristic that was never
// registered by the connect sequence
type LookupError struct {
	UUID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("characteristic %q is not registered", e.UUID)
}

// DecodeError reports a value buffer that cannot be interpreted as requested
type DecodeError struct {
	Kind string // "uint32", "float32"
	Want int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: need %d bytes, got %d", e.Kind, e.Want, e.Got)
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
	SessionUsed      ConnectionState = "session_used"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
	// ErrSessionUsed is returned by Connect on a session that already left the idle state.
	// A failed or closed session is terminal; build a new one.
	ErrSessionUsed = &ConnectionError{State: SessionUsed}
)

// Selection errors
var (
	ErrNoDevice    = errors.New("no device matches the request")
	ErrCancelled   = errors.New("device selection cancelled")
	ErrUnsupported = errors.New("unsupported")
)

// SelectionError wraps the end of a device request that produced no device.
// Context cancellation maps to ErrCancelled, everything else to ErrNoDevice.
func SelectionError(err error) error {
	if err == nil {
		return ErrNoDevice
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %v", ErrNoDevice, err)
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IsLookup reports whether err is (or wraps) a LookupError
func IsLookup(err error) bool {
	var lerr *LookupError
	return errors.As(err, &lerr)
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps well-known platform error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"), containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}
