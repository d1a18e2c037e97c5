package goble_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/envsense/internal/device"
	goble "github.com/srg/envsense/internal/device/go-ble"
	"github.com/srg/envsense/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	envService = "19B10040-E8F2-537E-4F6C-D104768A1214"
	envChar    = "19B10041-E8F2-537E-4F6C-D104768A1215"
)

type CentralTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (s *CentralTestSuite) central() *goble.Central {
	return goble.NewCentral(s.Logger)
}

func (s *CentralTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *CentralTestSuite) TestRequestDeviceMatchesFilter() {
	p, err := s.central().RequestDevice(s.ctx(), device.RequestOptions{
		Filters: []string{envService},
		Name:    "env_sensor",
	})
	s.Require().NoError(err)
	s.Equal("env_sensor", p.Name())
	s.Equal("aa:bb:cc:dd:ee:ff", p.Address())
	s.Device.AssertCalled(s.T(), "Scan", mock.Anything, false)
}

func (s *CentralTestSuite) TestRequestDeviceNoMatch() {
	_, err := s.central().RequestDevice(s.ctx(), device.RequestOptions{
		Filters: []string{"180D"},
	})
	s.Require().Error(err)
	s.ErrorIs(err, device.ErrNoDevice)
	s.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *CentralTestSuite) TestRequestDeviceWrongName() {
	_, err := s.central().RequestDevice(s.ctx(), device.RequestOptions{
		Filters: []string{envService},
		Name:    "other",
	})
	s.ErrorIs(err, device.ErrNoDevice)
}

func (s *CentralTestSuite) TestRequestDeviceCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.central().RequestDevice(ctx, device.RequestOptions{AcceptAll: true})
	s.ErrorIs(err, device.ErrCancelled)
}

func (s *CentralTestSuite) TestDeviceFactoryFailure() {
	goble.DeviceFactory = func() (blelib.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}

	_, err := s.central().RequestDevice(s.ctx(), device.RequestOptions{AcceptAll: true})
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *CentralTestSuite) TestAllowedServicesRestrictDiscovery() {
	ctx := s.ctx()
	p, err := s.central().RequestDevice(ctx, device.RequestOptions{Filters: []string{envService}})
	s.Require().NoError(err)

	server, err := p.Connect(ctx)
	s.Require().NoError(err)

	svcs, err := server.PrimaryServices(ctx)
	s.Require().NoError(err)
	s.Require().Len(svcs, 1, "181A is neither a filter nor optional")
	s.Equal(device.NormalizeUUID(envService), svcs[0].UUID())

	_, err = server.PrimaryService(ctx, "181A")
	var nf *device.NotFoundError
	s.ErrorAs(err, &nf)
}

func (s *CentralTestSuite) TestOptionalServicesVisible() {
	ctx := s.ctx()
	p, err := s.central().RequestDevice(ctx, device.RequestOptions{
		AcceptAll:        true,
		OptionalServices: []string{envService, "0000181a-0000-1000-8000-00805f9b34fb"},
	})
	s.Require().NoError(err)

	server, err := p.Connect(ctx)
	s.Require().NoError(err)

	svcs, err := server.PrimaryServices(ctx)
	s.Require().NoError(err)
	s.Require().Len(svcs, 2)
	s.Equal("181a", svcs[1].UUID())

	chars, err := svcs[1].Characteristics(ctx)
	s.Require().NoError(err)
	s.Require().Len(chars, 2)
	s.Equal("19b10042e8f2537e4f6cd104768a1216", chars[0].UUID())
	s.Equal("19b10043e8f2537e4f6cd104768a12fe", chars[1].UUID())
}

func (s *CentralTestSuite) TestReadWriteAndNotify() {
	ctx := s.ctx()
	p, err := s.central().RequestDevice(ctx, device.RequestOptions{Filters: []string{envService}})
	s.Require().NoError(err)
	server, err := p.Connect(ctx)
	s.Require().NoError(err)

	svc, err := server.PrimaryService(ctx, envService)
	s.Require().NoError(err)
	char, err := svc.Characteristic(ctx, envChar)
	s.Require().NoError(err)

	value, err := char.ReadValue(ctx)
	s.Require().NoError(err)
	s.Equal([]byte{0, 0, 0, 0}, value)

	s.Require().NoError(char.WriteValue(ctx, []byte{1, 2}))
	s.Client.AssertCalled(s.T(), "WriteCharacteristic", mock.Anything, []byte{1, 2}, false)

	var (
		mu  sync.Mutex
		got []byte
	)
	s.Require().NoError(char.StartNotifications(ctx, func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = data
	}))
	s.Client.AssertCalled(s.T(), "Subscribe", mock.Anything, false, mock.Anything)

	s.True(s.PeripheralBuilder.Notify(envChar, []byte{9, 9, 9, 9}))
	mu.Lock()
	s.Equal([]byte{9, 9, 9, 9}, got)
	mu.Unlock()

	s.Require().NoError(server.Disconnect())
	s.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *CentralTestSuite) TestMissingCharacteristic() {
	ctx := s.ctx()
	p, err := s.central().RequestDevice(ctx, device.RequestOptions{Filters: []string{envService}})
	s.Require().NoError(err)
	server, err := p.Connect(ctx)
	s.Require().NoError(err)
	svc, err := server.PrimaryService(ctx, envService)
	s.Require().NoError(err)

	s.Client.ExpectedCalls = nil
	s.Client.On("DiscoverCharacteristics", mock.Anything, mock.Anything).Return([]*blelib.Characteristic{}, nil)

	_, err = svc.Characteristic(ctx, "2A19")
	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("characteristic", nf.Resource)
}

func (s *CentralTestSuite) TestDialFailure() {
	s.Device.ExpectedCalls = nil
	s.Device.On("Scan", mock.Anything, mock.Anything).Return(nil)
	s.Device.On("Dial", mock.Anything, mock.Anything).Return(nil, errors.New("device not connected"))

	ctx := s.ctx()
	p, err := s.central().RequestDevice(ctx, device.RequestOptions{AcceptAll: true})
	s.Require().NoError(err)

	_, err = p.Connect(ctx)
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *CentralTestSuite) TestScanReportsMatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var names []string
	err := s.central().Scan(ctx, device.RequestOptions{AcceptAll: true}, func(adv device.Advertisement) {
		names = append(names, adv.LocalName())
	})
	s.Require().NoError(err)
	s.Equal([]string{"env_sensor"}, names)
	s.Device.AssertCalled(s.T(), "Scan", mock.Anything, true)
}

func TestCentralTestSuite(t *testing.T) {
	suite.Run(t, new(CentralTestSuite))
}
