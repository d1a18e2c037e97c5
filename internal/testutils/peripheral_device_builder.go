package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/srg/envsense/internal/device"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Name     string          `json:"name,omitempty"`
	Address  string          `json:"address"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocked go-ble host device that advertises one
// peripheral and serves its GATT profile once dialed
type PeripheralDeviceBuilder struct {
	profile    DeviceProfileConfig
	advertised []string

	mu       sync.Mutex
	handlers map[string]blelib.NotificationHandler
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Address:  "AA:BB:CC:DD:EE:FF",
			Services: []ServiceConfig{},
		},
		handlers: make(map[string]blelib.NotificationHandler),
	}
}

// WithName sets the advertised local name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithAddress sets the advertised address
func (b *PeripheralDeviceBuilder) WithAddress(addr string) *PeripheralDeviceBuilder {
	b.profile.Address = addr
	return b
}

// WithAdvertisedServices sets the service UUIDs carried in the advertisement.
// When never called, every configured service is advertised.
func (b *PeripheralDeviceBuilder) WithAdvertisedServices(uuids ...string) *PeripheralDeviceBuilder {
	b.advertised = append([]string{}, uuids...)
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.Address == "" {
		config.Address = b.profile.Address
	}

	b.profile = config
	return b
}

// parseCharacteristicProperties converts a comma-separated property string to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharRead | blelib.CharWrite | blelib.CharNotify
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// Notify delivers data to the subscription handler registered for uuid.
// Returns false when nothing subscribed to that characteristic.
func (b *PeripheralDeviceBuilder) Notify(uuid string, data []byte) bool {
	b.mu.Lock()
	h, ok := b.handlers[device.NormalizeUUID(uuid)]
	b.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// Build creates a mocked ble.Device with the configured profile, plus the client it dials to
func (b *PeripheralDeviceBuilder) Build() (*MockBLEDevice, *MockBLEClient) {
	mockDevice := &MockBLEDevice{}
	mockClient := &MockBLEClient{}

	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}

		for _, charConfig := range svcConfig.Characteristics {
			bleChar := &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			}
			if bleChar.Property&(blelib.CharNotify|blelib.CharIndicate) != 0 {
				bleChar.CCCD = &blelib.Descriptor{UUID: blelib.UUID16(0x2902)}
			}
			bleService.Characteristics = append(bleService.Characteristics, bleChar)
		}
		bleServices = append(bleServices, bleService)
	}

	advertised := b.advertised
	if advertised == nil {
		for _, svc := range b.profile.Services {
			advertised = append(advertised, svc.UUID)
		}
	}
	var advUUIDs []blelib.UUID
	for _, u := range advertised {
		advUUIDs = append(advUUIDs, blelib.MustParse(u))
	}

	mockDevice.Advertisements = []blelib.Advertisement{&MockAdvertisement{
		Name:          b.profile.Name,
		Address:       b.profile.Address,
		Signal:        -50,
		IsConnectable: true,
		ServiceUUIDs:  advUUIDs,
	}}

	mockDevice.On("Scan", mock.Anything, mock.Anything).Return(nil)
	mockDevice.On("Dial", mock.Anything, mock.Anything).Return(mockClient, nil)

	mockClient.On("DiscoverServices", mock.Anything).Return(bleServices, nil)
	mockClient.On("CancelConnection").Return(nil)

	for _, svc := range bleServices {
		mockClient.On("DiscoverCharacteristics", mock.Anything, svc).Return(svc.Characteristics, nil)

		for _, char := range svc.Characteristics {
			if char.Property&blelib.CharRead != 0 {
				mockClient.On("ReadCharacteristic", char).Return(char.Value, nil)
			} else {
				mockClient.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic does not support read"))
			}
			mockClient.On("WriteCharacteristic", char, mock.Anything, false).Return(nil)

			charUUID := device.NormalizeUUID(char.UUID.String())
			mockClient.On("Subscribe", char, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					h := args.Get(2).(blelib.NotificationHandler)
					b.mu.Lock()
					b.handlers[charUUID] = h
					b.mu.Unlock()
				}).
				Return(nil)
		}
	}

	return mockDevice, mockClient
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}
