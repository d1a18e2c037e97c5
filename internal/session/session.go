// Package session implements the device session: one connection to one peripheral,
// a registry of discovered characteristics, and read, write and notify operations
// keyed by characteristic UUID.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/groutine"
)

// State is the lifecycle position of a Session
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateConnecting
	StateDiscovering
	StateConnected  // filtered strategy finished
	StateSubscribed // open strategy finished
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Notification is a changed value of a subscribed characteristic
type Notification struct {
	UUID  string
	Value Value
}

// Session is single use: Connect runs once, and a failed or closed session stays so.
type Session struct {
	central device.Central
	opts    Options
	logger  *logrus.Logger

	mu         sync.Mutex
	state      State
	peripheral device.Peripheral
	server     device.GATTServer

	registry *hashmap.Map[string, device.Characteristic]

	notifications *notifyQueue
	dispatchDone  <-chan struct{}
}

func New(central device.Central, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		central:  central,
		opts:     opts.withDefaults(),
		logger:   logger,
		registry: hashmap.New[string, device.Characteristic](),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the selected peripheral's name, or the configured device name before selection
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peripheral != nil {
		return s.peripheral.Name()
	}
	return s.opts.DeviceName
}

// Characteristics returns the registered characteristic UUIDs in normalized form, sorted
func (s *Session) Characteristics() []string {
	keys := make([]string, 0, s.registry.Len())
	s.registry.Range(func(k string, _ device.Characteristic) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Has reports whether uuid is registered
func (s *Session) Has(uuid string) bool {
	_, ok := s.registry.Get(device.NormalizeUUID(uuid))
	return ok
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	s.logger.WithField("state", state).Debug("Session state changed")
}

func (s *Session) fail(report *ConnectReport, err error) (*ConnectReport, error) {
	s.setState(StateFailed)
	return report, err
}

// Connect selects a device, connects to its GATT server and runs discovery according to
// the configured strategy.
//
// Selection, connection and service lookup failures are returned as errors and leave the
// session failed. With StrategyOpen, failures inside a single service are recorded in the
// report and discovery moves on; check ConnectReport.Err for them. The report is returned
// alongside an error as far as it got.
func (s *Session) Connect(ctx context.Context) (*ConnectReport, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot connect a session in state %s: %w", state, device.ErrSessionUsed)
	}
	s.state = StateSelecting
	s.mu.Unlock()

	report := &ConnectReport{Strategy: s.opts.Strategy.String()}

	peripheral, err := s.central.RequestDevice(ctx, s.opts.requestOptions())
	if err != nil {
		return s.fail(report, fmt.Errorf("device selection failed: %w", err))
	}
	report.Device = peripheral.Name()
	report.Address = peripheral.Address()

	s.mu.Lock()
	s.peripheral = peripheral
	s.mu.Unlock()
	s.setState(StateConnecting)

	server, err := peripheral.Connect(ctx)
	if err != nil {
		return s.fail(report, fmt.Errorf("GATT connect failed: %w", err))
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if derr := server.Disconnect(); derr != nil {
			s.logger.WithError(derr).Warn("Failed to disconnect after Close")
		}
		return report, fmt.Errorf("GATT connect: session closed: %w", device.ErrNotConnected)
	}
	s.server = server
	s.mu.Unlock()
	s.setState(StateDiscovering)

	s.logger.WithFields(logrus.Fields{
		"device":   report.Device,
		"address":  report.Address,
		"strategy": report.Strategy,
	}).Info("Connected to GATT server")

	switch s.opts.Strategy {
	case StrategyOpen:
		err = s.discoverAll(ctx, server, report)
	default:
		err = s.discoverConfigured(ctx, server, report)
	}
	if err != nil {
		return s.fail(report, err)
	}

	if s.opts.Strategy == StrategyOpen {
		s.setState(StateSubscribed)
	} else {
		s.setState(StateConnected)
	}
	return report, nil
}

// discoverConfigured caches the configured characteristics of the one configured service
func (s *Session) discoverConfigured(ctx context.Context, server device.GATTServer, report *ConnectReport) error {
	svc, err := server.PrimaryService(ctx, s.opts.ServiceUUID)
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	for _, uuid := range s.opts.CharacteristicUUIDs {
		char, err := svc.Characteristic(ctx, uuid)
		if err != nil {
			return fmt.Errorf("characteristic discovery failed: %w", err)
		}
		s.register(char)
		report.record(Outcome{Service: svc.UUID(), Characteristic: char.UUID(), Step: StepCache})
	}
	return nil
}

// discoverAll walks the allowed services strictly in order. A service's characteristic
// discovery and all of its subscriptions finish before the next service is touched.
func (s *Session) discoverAll(ctx context.Context, server device.GATTServer, report *ConnectReport) error {
	services, err := server.PrimaryServices(ctx)
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	notifications, err := s.startDispatcher()
	if err != nil {
		return err
	}

	for _, svc := range services {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.State() == StateClosed {
			return fmt.Errorf("service discovery: session closed: %w", device.ErrNotConnected)
		}

		chars, err := svc.Characteristics(ctx)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID(),
				"error":        err,
			}).Warn("Characteristic discovery failed, skipping service")
			report.record(Outcome{Service: svc.UUID(), Step: StepDiscover, err: err})
			continue
		}

		for _, char := range chars {
			s.register(char)
			uuid := char.UUID()
			err := char.StartNotifications(ctx, func(data []byte) {
				notifications.Push(Notification{UUID: uuid, Value: append(Value(nil), data...)})
			})
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"service_uuid": svc.UUID(),
					"char_uuid":    uuid,
					"error":        err,
				}).Warn("Failed to start notifications")
			}
			report.record(Outcome{Service: svc.UUID(), Characteristic: uuid, Step: StepSubscribe, err: err})
		}
	}
	return nil
}

func (s *Session) register(char device.Characteristic) {
	s.registry.Set(device.NormalizeUUID(char.UUID()), char)
	s.logger.WithField("char_uuid", char.UUID()).Debug("Characteristic registered")
}

func (s *Session) lookup(uuid string) (device.Characteristic, error) {
	char, ok := s.registry.Get(device.NormalizeUUID(uuid))
	if !ok {
		return nil, &device.LookupError{UUID: uuid}
	}
	if s.State() == StateClosed {
		return nil, fmt.Errorf("characteristic %s: %w", uuid, device.ErrNotConnected)
	}
	return char, nil
}

// ReadCharacteristic reads a registered characteristic and returns the bytes as delivered
func (s *Session) ReadCharacteristic(ctx context.Context, uuid string) (Value, error) {
	char, err := s.lookup(uuid)
	if err != nil {
		return nil, err
	}
	data, err := char.ReadValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uuid, err)
	}
	return Value(data), nil
}

// WriteCharacteristic writes value to a registered characteristic with response
func (s *Session) WriteCharacteristic(ctx context.Context, uuid string, value []byte) error {
	char, err := s.lookup(uuid)
	if err != nil {
		return err
	}
	if err := char.WriteValue(ctx, value); err != nil {
		return fmt.Errorf("write %s: %w", uuid, err)
	}
	return nil
}

// OnCharacteristicChange renders a changed value into the display element named by the
// characteristic's element key
func (s *Session) OnCharacteristicChange(n Notification) error {
	key := ElementKey(n.UUID)
	text, err := FormatValue(key, n.Value, s.opts.IntegerKeys)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"char_uuid": n.UUID,
			"element":   key,
			"error":     err,
		}).Warn("Cannot decode notification")
		return fmt.Errorf("characteristic %s: %w", n.UUID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"element": key,
		"value":   text,
	}).Info("Characteristic changed")

	if s.opts.Display == nil {
		return nil
	}
	if err := s.opts.Display.SetText(key, text); err != nil {
		return fmt.Errorf("display element %q: %w", key, err)
	}
	return nil
}

// startDispatcher starts the goroutine rendering notifications. A closed session gets
// no dispatcher.
func (s *Session) startDispatcher() (*notifyQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, fmt.Errorf("notifications: session closed: %w", device.ErrNotConnected)
	}
	if s.notifications != nil {
		return s.notifications, nil
	}
	queue := newNotifyQueue()
	s.notifications = queue
	s.dispatchDone = groutine.Go(context.Background(), "notify-dispatch", func(ctx context.Context) {
		queue.run(func(n Notification) {
			// failures are logged by OnCharacteristicChange
			_ = s.OnCharacteristicChange(n)
		})
	})
	return queue, nil
}

// Close stops notification dispatch and disconnects. Registered characteristics stay
// registered but every later read or write fails with device.ErrNotConnected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	server := s.server
	notifications := s.notifications
	done := s.dispatchDone
	s.mu.Unlock()

	if notifications != nil {
		notifications.Close()
		<-done
		if replaced := notifications.Replaced(); replaced > 0 {
			s.logger.WithField("replaced", replaced).Debug("Notifications superseded before dispatch")
		}
	}

	if server == nil {
		return nil
	}
	if err := server.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	s.logger.WithField("device", s.Device()).Info("Disconnected")
	return nil
}
