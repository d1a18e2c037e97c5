package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
	assert.Equal(t, `service "180f" not found`, (&NotFoundError{Resource: "service", UUIDs: []string{"180f"}}).Error())
	assert.Equal(t,
		`characteristic "2a19" not found in service "180f"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"180f", "2a19"}}).Error())
}

func TestLookupError(t *testing.T) {
	err := fmt.Errorf("read failed: %w", &LookupError{UUID: "2a19"})

	assert.True(t, IsLookup(err))
	assert.False(t, IsLookup(errors.New("other")))
	assert.Contains(t, err.Error(), `"2a19" is not registered`)
}

func TestDecodeError(t *testing.T) {
	err := &DecodeError{Kind: "uint32", Want: 4, Got: 2}
	assert.Equal(t, "cannot decode uint32: need 4 bytes, got 2", err.Error())
}

func TestConnectionError_Is(t *testing.T) {
	wrapped := fmt.Errorf("%w: extra", &ConnectionError{State: NotConnected, Msg: "link lost"})

	assert.ErrorIs(t, wrapped, ErrNotConnected)
	assert.NotErrorIs(t, wrapped, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(wrapped, NotConnected))
	assert.False(t, IsConnectionState(errors.New("plain"), NotConnected))

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.False(t, nilErr.Is(ErrNotConnected))
}

func TestSelectionError(t *testing.T) {
	assert.ErrorIs(t, SelectionError(nil), ErrNoDevice)
	assert.ErrorIs(t, SelectionError(context.Canceled), ErrCancelled)
	assert.ErrorIs(t, SelectionError(context.DeadlineExceeded), ErrNoDevice)
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"bluetooth off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), ErrBluetoothOff},
		{"not connected", errors.New("device not connected"), ErrNotConnected},
		{"disconnected", errors.New("peripheral Disconnected"), ErrNotConnected},
		{"already connected", errors.New("Device already connected"), ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NormalizeError(tt.in), tt.want)
		})
	}

	t.Run("passes unknown errors through", func(t *testing.T) {
		in := errors.New("att: read not permitted")
		assert.Same(t, in, NormalizeError(in))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}
