package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
)

// await runs a blocking go-ble call and returns early when ctx ends.
// The call itself cannot be interrupted; its result is dropped in that case.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		val, err := fn()
		resultCh <- result{val: val, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GATTServer wraps a connected ble.Client.
// Only services in the allowed set are visible, the same way a browser hides services
// that were neither filtered on nor listed as optional.
type GATTServer struct {
	client  ble.Client
	allowed map[string]struct{}
	logger  *logrus.Logger
}

func (s *GATTServer) isAllowed(uuid string) bool {
	_, ok := s.allowed[device.NormalizeUUID(uuid)]
	return ok
}

// PrimaryService discovers one service by UUID
func (s *GATTServer) PrimaryService(ctx context.Context, uuid string) (device.Service, error) {
	if !s.isAllowed(uuid) {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}

	filter, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	svcs, err := await(ctx, func() ([]*ble.Service, error) {
		return s.client.DiscoverServices([]ble.UUID{filter})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover service %s: %w", uuid, NormalizeError(err))
	}

	want := device.NormalizeUUID(uuid)
	for _, svc := range svcs {
		if device.NormalizeUUID(svc.UUID.String()) == want {
			s.logger.WithField("service_uuid", want).Debug("Found service UUID")
			return &Service{svc: svc, client: s.client, logger: s.logger}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// PrimaryServices discovers every allowed service, in the order the peripheral reports them
func (s *GATTServer) PrimaryServices(ctx context.Context) ([]device.Service, error) {
	svcs, err := await(ctx, func() ([]*ble.Service, error) {
		return s.client.DiscoverServices(nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	result := make([]device.Service, 0, len(svcs))
	for _, svc := range svcs {
		uuid := device.NormalizeUUID(svc.UUID.String())
		if !s.isAllowed(uuid) {
			s.logger.WithField("service_uuid", uuid).Debug("Skipping service outside the allowed set")
			continue
		}
		result = append(result, &Service{svc: svc, client: s.client, logger: s.logger})
	}

	if len(result) == 0 {
		return nil, &device.NotFoundError{Resource: "service"}
	}
	return result, nil
}

// Disconnect cancels the underlying connection
func (s *GATTServer) Disconnect() error {
	if err := s.client.CancelConnection(); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Service wraps a discovered ble.Service
type Service struct {
	svc    *ble.Service
	client ble.Client
	logger *logrus.Logger
}

func (s *Service) UUID() string {
	return device.NormalizeUUID(s.svc.UUID.String())
}

// Characteristic discovers one characteristic of the service by UUID
func (s *Service) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	filter, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", uuid, err)
	}

	chars, err := await(ctx, func() ([]*ble.Characteristic, error) {
		return s.client.DiscoverCharacteristics([]ble.UUID{filter}, s.svc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristic %s: %w", uuid, NormalizeError(err))
	}

	want := device.NormalizeUUID(uuid)
	for _, c := range chars {
		if device.NormalizeUUID(c.UUID.String()) == want {
			return &Characteristic{char: c, client: s.client, logger: s.logger}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.UUID(), uuid}}
}

// Characteristics discovers all characteristics of the service
func (s *Service) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	chars, err := await(ctx, func() ([]*ble.Characteristic, error) {
		return s.client.DiscoverCharacteristics(nil, s.svc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", s.UUID(), NormalizeError(err))
	}

	result := make([]device.Characteristic, 0, len(chars))
	for _, c := range chars {
		s.logger.WithFields(logrus.Fields{
			"service_uuid": s.UUID(),
			"char_uuid":    c.UUID.String(),
		}).Debug("Found characteristic UUID")
		result = append(result, &Characteristic{char: c, client: s.client, logger: s.logger})
	}
	return result, nil
}

// Characteristic wraps a discovered ble.Characteristic
type Characteristic struct {
	char   *ble.Characteristic
	client ble.Client
	logger *logrus.Logger
}

func (c *Characteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

// ReadValue reads the current value from the peripheral
func (c *Characteristic) ReadValue(ctx context.Context) ([]byte, error) {
	data, err := await(ctx, func() ([]byte, error) {
		return c.client.ReadCharacteristic(c.char)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.UUID(), NormalizeError(err))
	}
	return data, nil
}

// WriteValue writes data with response
func (c *Characteristic) WriteValue(ctx context.Context, data []byte) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, c.client.WriteCharacteristic(c.char, data, false)
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.UUID(), NormalizeError(err))
	}
	return nil
}

// StartNotifications enables notify (or indicate, when that is all the characteristic
// supports) and forwards every value to handler
func (c *Characteristic) StartNotifications(ctx context.Context, handler device.NotificationHandler) error {
	props := c.char.Property
	if props&ble.CharNotify == 0 && props&ble.CharIndicate == 0 {
		return fmt.Errorf("characteristic %s does not support notifications: %w", c.UUID(), device.ErrUnsupported)
	}
	indicate := props&ble.CharNotify == 0

	if c.char.CCCD == nil {
		if _, err := await(ctx, func() ([]*ble.Descriptor, error) {
			return c.client.DiscoverDescriptors(nil, c.char)
		}); err != nil {
			return fmt.Errorf("failed to discover descriptors of %s: %w", c.UUID(), NormalizeError(err))
		}
	}

	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, c.client.Subscribe(c.char, indicate, func(data []byte) {
			handler(data)
		})
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"char_uuid": c.UUID(),
			"error":     err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("failed to subscribe to %s: %w", c.UUID(), NormalizeError(err))
	}

	c.logger.WithField("char_uuid", c.UUID()).Info("Successfully subscribed to characteristic notifications")
	return nil
}
