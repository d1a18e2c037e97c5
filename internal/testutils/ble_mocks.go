package testutils

import (
	"context"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockBLEDevice mocks the host-side ble.Device. Only Scan and Dial are implemented;
// the embedded interface is nil, so any other call panics, which is what a test wants.
type MockBLEDevice struct {
	blelib.Device
	mock.Mock

	// Advertisements delivered to the scan handler, in order, on every Scan call
	Advertisements []blelib.Advertisement
}

func (m *MockBLEDevice) Scan(ctx context.Context, allowDup bool, h blelib.AdvHandler) error {
	args := m.Called(ctx, allowDup)
	for _, adv := range m.Advertisements {
		if ctx.Err() != nil {
			break
		}
		h(adv)
	}
	return args.Error(0)
}

func (m *MockBLEDevice) Dial(ctx context.Context, a blelib.Addr) (blelib.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(blelib.Client)
	return client, args.Error(1)
}

// MockBLEClient mocks a connected ble.Client
type MockBLEClient struct {
	blelib.Client
	mock.Mock
}

func (m *MockBLEClient) DiscoverServices(filter []blelib.UUID) ([]*blelib.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*blelib.Service)
	return svcs, args.Error(1)
}

func (m *MockBLEClient) DiscoverCharacteristics(filter []blelib.UUID, s *blelib.Service) ([]*blelib.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*blelib.Characteristic)
	return chars, args.Error(1)
}

func (m *MockBLEClient) DiscoverDescriptors(filter []blelib.UUID, c *blelib.Characteristic) ([]*blelib.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*blelib.Descriptor)
	return descs, args.Error(1)
}

func (m *MockBLEClient) ReadCharacteristic(c *blelib.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockBLEClient) WriteCharacteristic(c *blelib.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockBLEClient) Subscribe(c *blelib.Characteristic, ind bool, h blelib.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockBLEClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

// MockAdvertisement is a static ble.Advertisement
type MockAdvertisement struct {
	blelib.Advertisement

	Name          string
	Address       string
	Signal        int
	IsConnectable bool
	ServiceUUIDs  []blelib.UUID
}

func (a *MockAdvertisement) LocalName() string       { return a.Name }
func (a *MockAdvertisement) Addr() blelib.Addr       { return blelib.NewAddr(a.Address) }
func (a *MockAdvertisement) RSSI() int               { return a.Signal }
func (a *MockAdvertisement) Connectable() bool       { return a.IsConnectable }
func (a *MockAdvertisement) Services() []blelib.UUID { return a.ServiceUUIDs }
