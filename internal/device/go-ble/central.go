package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
)

// Central implements device.Central on top of a go-ble host device.
// The host device is created lazily through DeviceFactory and reused for every request.
type Central struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewCentral creates a go-ble backed central
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

func (c *Central) hostDevice() (ble.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return c.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	c.dev = dev
	return dev, nil
}

// Scan reports every advertisement matching opts until ctx ends.
// Cancellation and deadline are the normal way to stop a scan and are not returned as errors.
func (c *Central) Scan(ctx context.Context, opts device.RequestOptions, handler func(device.Advertisement)) error {
	dev, err := c.hostDevice()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, true, func(a ble.Advertisement) {
		adv := NewBLEAdvertisement(a)
		if opts.Matches(adv) {
			handler(adv)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", NormalizeError(err))
	}
	return nil
}

// RequestDevice scans until the first advertisement that satisfies opts and returns it
// as an unconnected peripheral. This is the chooser: no match before ctx ends is a
// selection error.
func (c *Central) RequestDevice(ctx context.Context, opts device.RequestOptions) (device.Peripheral, error) {
	dev, err := c.hostDevice()
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"filters":    opts.Filters,
		"accept_all": opts.AcceptAll,
		"name":       opts.Name,
	}).Info("Requesting device...")

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		chosenMu sync.Mutex
		chosen   *BLEAdvertisement
	)
	scanErr := dev.Scan(scanCtx, false, func(a ble.Advertisement) {
		adv := NewBLEAdvertisement(a)
		if !opts.Matches(adv) {
			return
		}
		chosenMu.Lock()
		defer chosenMu.Unlock()
		if chosen == nil {
			chosen = adv
			cancel()
		}
	})

	chosenMu.Lock()
	adv := chosen
	chosenMu.Unlock()

	if adv == nil {
		if ctx.Err() != nil {
			return nil, device.SelectionError(ctx.Err())
		}
		if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
			return nil, fmt.Errorf("scan failed: %w", NormalizeError(scanErr))
		}
		return nil, device.ErrNoDevice
	}

	c.logger.WithFields(logrus.Fields{
		"address": adv.Addr(),
		"name":    adv.LocalName(),
	}).Info("Device selected")

	return &Peripheral{
		dev:     dev,
		adv:     adv,
		allowed: opts.AllowedServices(),
		logger:  c.logger,
	}, nil
}

// Peripheral is a selected device that has not been dialed yet
type Peripheral struct {
	dev     ble.Device
	adv     *BLEAdvertisement
	allowed map[string]struct{}
	logger  *logrus.Logger
}

func (p *Peripheral) Name() string {
	if name := p.adv.LocalName(); name != "" {
		return name
	}
	return p.adv.Addr()
}

func (p *Peripheral) Address() string {
	return p.adv.Addr()
}

// Connect dials the peripheral and returns its GATT server
func (p *Peripheral) Connect(ctx context.Context) (device.GATTServer, error) {
	p.logger.WithField("address", p.Address()).Debug("Dialing BLE device...")

	client, err := p.dev.Dial(ctx, p.adv.Unwrap().Addr())
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": p.Address(),
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", p.Address(), NormalizeError(err))
	}

	return &GATTServer{
		client:  client,
		allowed: p.allowed,
		logger:  p.logger,
	}, nil
}
