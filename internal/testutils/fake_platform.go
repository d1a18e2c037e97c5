package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/envsense/internal/device"
)

// FakeCentral is an in-memory device.Central serving a single peripheral.
// Every platform call is appended to Calls, so tests can check ordering of the
// discovery chain. Errors can be injected per step.
type FakeCentral struct {
	Name    string
	Address string

	// Services in declaration order; characteristic values keyed by normalized UUID
	Services []FakeService

	SelectErr          error
	ConnectErr         error
	ServicesErr        error
	ServiceErr         map[string]error // PrimaryService by service UUID
	CharacteristicsErr map[string]error // by service UUID
	SubscribeErr       map[string]error // by characteristic UUID
	ReadErr            map[string]error
	WriteErr           map[string]error

	// OnConnect runs inside Peripheral.Connect, before the server is handed out
	OnConnect func()

	mu       sync.Mutex
	calls    []string
	request  *device.RequestOptions
	values   map[string][]byte
	writes   map[string][][]byte
	handlers map[string]device.NotificationHandler
	closed   bool
}

// FakeService describes one service of the fake peripheral
type FakeService struct {
	UUID            string
	Characteristics []FakeCharacteristic
}

// FakeCharacteristic describes one characteristic of the fake peripheral
type FakeCharacteristic struct {
	UUID  string
	Value []byte
}

// NewFakeCentral creates a fake serving the given services
func NewFakeCentral(services ...FakeService) *FakeCentral {
	f := &FakeCentral{
		Name:     "env_sensor",
		Address:  "AA:BB:CC:DD:EE:FF",
		Services: services,
		values:   make(map[string][]byte),
		writes:   make(map[string][][]byte),
		handlers: make(map[string]device.NotificationHandler),
	}
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			f.values[device.NormalizeUUID(c.UUID)] = c.Value
		}
	}
	return f
}

func (f *FakeCentral) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded call log
func (f *FakeCentral) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Request returns the options of the last RequestDevice call
func (f *FakeCentral) Request() *device.RequestOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.request
}

// Writes returns everything written to a characteristic
func (f *FakeCentral) Writes(uuid string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[device.NormalizeUUID(uuid)]
}

// SetValue changes the remote value returned by subsequent reads
func (f *FakeCentral) SetValue(uuid string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[device.NormalizeUUID(uuid)] = value
}

// Notify pushes a value through the subscription of uuid.
// Returns false when nothing subscribed.
func (f *FakeCentral) Notify(uuid string, data []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[device.NormalizeUUID(uuid)]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// Disconnected reports whether the GATT server was disconnected
func (f *FakeCentral) Disconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCentral) RequestDevice(ctx context.Context, opts device.RequestOptions) (device.Peripheral, error) {
	f.mu.Lock()
	f.request = &opts
	f.mu.Unlock()
	f.record("request")

	if err := ctx.Err(); err != nil {
		return nil, device.SelectionError(err)
	}
	if f.SelectErr != nil {
		return nil, f.SelectErr
	}
	return &fakePeripheral{central: f, allowed: opts.AllowedServices()}, nil
}

type fakePeripheral struct {
	central *FakeCentral
	allowed map[string]struct{}
}

func (p *fakePeripheral) Name() string    { return p.central.Name }
func (p *fakePeripheral) Address() string { return p.central.Address }

func (p *fakePeripheral) Connect(ctx context.Context) (device.GATTServer, error) {
	p.central.record("connect")
	if p.central.OnConnect != nil {
		p.central.OnConnect()
	}
	if p.central.ConnectErr != nil {
		return nil, p.central.ConnectErr
	}
	return &fakeServer{central: p.central, allowed: p.allowed}, nil
}

type fakeServer struct {
	central *FakeCentral
	allowed map[string]struct{}
}

func (s *fakeServer) PrimaryService(ctx context.Context, uuid string) (device.Service, error) {
	want := device.NormalizeUUID(uuid)
	s.central.record("service:%s", want)
	if err := s.central.ServiceErr[want]; err != nil {
		return nil, err
	}
	if _, ok := s.allowed[want]; ok {
		for i := range s.central.Services {
			if device.NormalizeUUID(s.central.Services[i].UUID) == want {
				return &fakeService{central: s.central, def: &s.central.Services[i]}, nil
			}
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (s *fakeServer) PrimaryServices(ctx context.Context) ([]device.Service, error) {
	s.central.record("services")
	if s.central.ServicesErr != nil {
		return nil, s.central.ServicesErr
	}
	var result []device.Service
	for i := range s.central.Services {
		if _, ok := s.allowed[device.NormalizeUUID(s.central.Services[i].UUID)]; ok {
			result = append(result, &fakeService{central: s.central, def: &s.central.Services[i]})
		}
	}
	if len(result) == 0 {
		return nil, &device.NotFoundError{Resource: "service"}
	}
	return result, nil
}

func (s *fakeServer) Disconnect() error {
	s.central.record("disconnect")
	s.central.mu.Lock()
	s.central.closed = true
	s.central.mu.Unlock()
	return nil
}

type fakeService struct {
	central *FakeCentral
	def     *FakeService
}

func (s *fakeService) UUID() string { return device.NormalizeUUID(s.def.UUID) }

func (s *fakeService) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	want := device.NormalizeUUID(uuid)
	s.central.record("characteristic:%s", want)
	for _, c := range s.def.Characteristics {
		if device.NormalizeUUID(c.UUID) == want {
			return &fakeCharacteristic{central: s.central, uuid: want}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.UUID(), uuid}}
}

func (s *fakeService) Characteristics(ctx context.Context) ([]device.Characteristic, error) {
	s.central.record("characteristics:%s", s.UUID())
	if err := s.central.CharacteristicsErr[s.UUID()]; err != nil {
		return nil, err
	}
	result := make([]device.Characteristic, 0, len(s.def.Characteristics))
	for _, c := range s.def.Characteristics {
		result = append(result, &fakeCharacteristic{central: s.central, uuid: device.NormalizeUUID(c.UUID)})
	}
	return result, nil
}

type fakeCharacteristic struct {
	central *FakeCentral
	uuid    string
}

func (c *fakeCharacteristic) UUID() string { return c.uuid }

func (c *fakeCharacteristic) ReadValue(ctx context.Context) ([]byte, error) {
	c.central.record("read:%s", c.uuid)
	if err := c.central.ReadErr[c.uuid]; err != nil {
		return nil, err
	}
	c.central.mu.Lock()
	defer c.central.mu.Unlock()
	return append([]byte(nil), c.central.values[c.uuid]...), nil
}

func (c *fakeCharacteristic) WriteValue(ctx context.Context, data []byte) error {
	c.central.record("write:%s", c.uuid)
	if err := c.central.WriteErr[c.uuid]; err != nil {
		return err
	}
	c.central.mu.Lock()
	defer c.central.mu.Unlock()
	c.central.writes[c.uuid] = append(c.central.writes[c.uuid], append([]byte(nil), data...))
	c.central.values[c.uuid] = append([]byte(nil), data...)
	return nil
}

func (c *fakeCharacteristic) StartNotifications(ctx context.Context, handler device.NotificationHandler) error {
	c.central.record("subscribe:%s", c.uuid)
	if err := c.central.SubscribeErr[c.uuid]; err != nil {
		return err
	}
	c.central.mu.Lock()
	defer c.central.mu.Unlock()
	c.central.handlers[c.uuid] = handler
	return nil
}
