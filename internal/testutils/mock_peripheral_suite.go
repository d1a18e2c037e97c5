package testutils

import (
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/envsense/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite swaps goble.DeviceFactory for a mocked host device around every
// test. Configure the peripheral in SetupTest before calling the parent:
//
//	func (s *ReadSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read,notify", []byte{50})
//
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
//
// Without configuration the peripheral serves EnvSensorProfile.
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (blelib.Device, error)
	TestTimeout           time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder

	// Populated by SetupTest from PeripheralBuilder
	Device *MockBLEDevice
	Client *MockBLEClient
}

func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.TestTimeout = 5 * time.Second
	s.OriginalDeviceFactory = goble.DeviceFactory

	s.T().Cleanup(func() {
		goble.DeviceFactory = s.OriginalDeviceFactory
	})
}

func (s *MockBLEPeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder().FromJSON(EnvSensorProfile)
	}

	s.Device, s.Client = s.PeripheralBuilder.Build()
	dev := s.Device
	goble.DeviceFactory = func() (blelib.Device, error) {
		return dev, nil
	}
	s.Logger.Debug("Mock peripheral installed")
}

func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.OriginalDeviceFactory
	s.PeripheralBuilder = nil
	s.Device = nil
	s.Client = nil
}

// WithPeripheral returns the builder used by the next SetupTest
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}
