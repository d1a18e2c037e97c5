package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/display"
	"github.com/srg/envsense/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	serviceUUID = "19B10040-E8F2-537E-4F6C-D104768A1214"
	charUUID    = "19B10041-E8F2-537E-4F6C-D104768A1215"
	tempUUID    = "19B10042-E8F2-537E-4F6C-D104768A1216"
	counterUUID = "19B10043-E8F2-537E-4F6C-D104768A12FE"
)

var (
	normService = device.NormalizeUUID(serviceUUID)
	normChar    = device.NormalizeUUID(charUUID)
	normTemp    = device.NormalizeUUID(tempUUID)
	normCounter = device.NormalizeUUID(counterUUID)
)

type SessionTestSuite struct {
	suite.Suite
	helper  *testutils.TestHelper
	central *testutils.FakeCentral
	board   *display.Board
}

func (s *SessionTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.board = display.NewBoard()
	s.central = testutils.NewFakeCentral(
		testutils.FakeService{
			UUID: serviceUUID,
			Characteristics: []testutils.FakeCharacteristic{
				{UUID: charUUID, Value: float32Bytes(21.5)},
			},
		},
		testutils.FakeService{
			UUID: "181A",
			Characteristics: []testutils.FakeCharacteristic{
				{UUID: tempUUID, Value: float32Bytes(23.456)},
				{UUID: counterUUID, Value: uint32Bytes(500)},
			},
		},
	)
}

func (s *SessionTestSuite) newSession(strategy Strategy) *Session {
	sess := New(s.central, Options{
		DeviceName:          "env_sensor",
		Strategy:            strategy,
		ServiceUUID:         serviceUUID,
		CharacteristicUUIDs: []string{charUUID},
		Display:             s.board,
	}, s.helper.Logger)
	s.T().Cleanup(func() { _ = sess.Close() })
	return sess
}

func (s *SessionTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *SessionTestSuite) boardText(id string) func() bool {
	return func() bool { _, ok := s.board.Text(id); return ok }
}

func (s *SessionTestSuite) TestLookupErrorForUnregistered() {
	sess := s.newSession(StrategyFiltered)
	var lookupErr *device.LookupError

	_, err := sess.ReadCharacteristic(s.ctx(), charUUID)
	s.ErrorAs(err, &lookupErr, "nothing registered before connect")

	_, err = sess.Connect(s.ctx())
	s.Require().NoError(err)

	_, err = sess.ReadCharacteristic(s.ctx(), tempUUID)
	s.Require().ErrorAs(err, &lookupErr)
	s.Equal(tempUUID, lookupErr.UUID)

	err = sess.WriteCharacteristic(s.ctx(), "2A19", []byte{1})
	s.ErrorAs(err, &lookupErr)
	s.Empty(s.central.Writes("2A19"))
}

func (s *SessionTestSuite) TestFilteredRegistersExactlyOne() {
	sess := s.newSession(StrategyFiltered)

	report, err := sess.Connect(s.ctx())
	s.Require().NoError(err)
	s.True(report.Complete())
	s.Equal(StateConnected, sess.State())
	s.Equal([]string{normChar}, sess.Characteristics())
	s.True(sess.Has(charUUID))
	s.Equal("env_sensor", sess.Device())

	req := s.central.Request()
	s.Require().NotNil(req)
	s.Equal([]string{serviceUUID}, req.Filters)
	s.False(req.AcceptAll)
	s.Empty(req.Name, "selection is by advertised service only")

	s.Equal([]string{
		"request",
		"connect",
		"service:" + normService,
		"characteristic:" + normChar,
	}, s.central.Calls())

	testutils.NewJSONAsserter(s.T()).AssertValue(report, `{
		"device": "env_sensor",
		"address": "AA:BB:CC:DD:EE:FF",
		"strategy": "filtered",
		"outcomes": [
			{"service": "`+normService+`", "characteristic": "`+normChar+`", "step": "cache"}
		]
	}`)
}

func (s *SessionTestSuite) TestFilteredSelectionRejected() {
	s.central.SelectErr = device.SelectionError(context.Canceled)
	sess := s.newSession(StrategyFiltered)

	_, err := sess.Connect(s.ctx())
	s.Require().Error(err)
	s.ErrorIs(err, device.ErrCancelled)
	s.Equal(StateFailed, sess.State())
	s.Empty(sess.Characteristics())
}

func (s *SessionTestSuite) TestFilteredConnectFailure() {
	s.central.ConnectErr = errors.New("gatt refused")
	sess := s.newSession(StrategyFiltered)

	_, err := sess.Connect(s.ctx())
	s.ErrorContains(err, "gatt refused")
	s.Equal(StateFailed, sess.State())
	s.Equal([]string{"request", "connect"}, s.central.Calls())
}

func (s *SessionTestSuite) TestFilteredMissingCharacteristic() {
	sess := New(s.central, Options{
		Strategy:            StrategyFiltered,
		ServiceUUID:         serviceUUID,
		CharacteristicUUIDs: []string{"2A19"},
	}, s.helper.Logger)

	_, err := sess.Connect(s.ctx())
	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("characteristic", nf.Resource)
	s.Equal(StateFailed, sess.State())
}

func (s *SessionTestSuite) TestOpenRegistersUnionInServiceOrder() {
	sess := s.newSession(StrategyOpen)

	report, err := sess.Connect(s.ctx())
	s.Require().NoError(err)
	s.True(report.Complete())
	s.NoError(report.Err())
	s.Equal(StateSubscribed, sess.State())

	s.ElementsMatch([]string{normChar, normTemp, normCounter}, sess.Characteristics())

	s.Equal([]string{
		"request",
		"connect",
		"services",
		"characteristics:" + normService,
		"subscribe:" + normChar,
		"characteristics:181a",
		"subscribe:" + normTemp,
		"subscribe:" + normCounter,
	}, s.central.Calls())

	req := s.central.Request()
	s.True(req.AcceptAll)
	s.Empty(req.Filters)
	s.Empty(req.Name)
	s.Equal([]string{serviceUUID, EnvironmentalSensingService}, req.OptionalServices)

	var order []string
	for _, o := range report.Outcomes {
		order = append(order, o.Characteristic)
	}
	s.Equal([]string{normChar, normTemp, normCounter}, order)
}

func (s *SessionTestSuite) TestOpenContinuesPastServiceFailure() {
	injected := errors.New("discovery timed out")
	s.central.CharacteristicsErr = map[string]error{normService: injected}
	sess := s.newSession(StrategyOpen)

	report, err := sess.Connect(s.ctx())
	s.Require().NoError(err)
	s.False(report.Complete())

	failures := report.Failures()
	s.Require().Len(failures, 1)
	s.Equal(StepDiscover, failures[0].Step)
	s.Equal(normService, failures[0].Service)

	var partial *PartialError
	s.Require().ErrorAs(report.Err(), &partial)
	s.ErrorIs(report.Err(), injected)
	s.Equal(3, partial.Total)

	s.ElementsMatch([]string{normTemp, normCounter}, sess.Characteristics())
	s.True(s.central.Notify(counterUUID, uint32Bytes(1)))
}

func (s *SessionTestSuite) TestOpenRecordsSubscribeFailure() {
	s.central.SubscribeErr = map[string]error{normTemp: device.ErrUnsupported}
	sess := s.newSession(StrategyOpen)

	report, err := sess.Connect(s.ctx())
	s.Require().NoError(err)
	s.ErrorIs(report.Err(), device.ErrUnsupported)
	s.True(sess.Has(tempUUID), "a characteristic stays registered when its subscription fails")

	s.Contains(s.central.Calls(), "subscribe:"+normCounter)
}

func (s *SessionTestSuite) TestOpenServiceEnumerationFailure() {
	s.central.ServicesErr = errors.New("gatt busy")
	sess := s.newSession(StrategyOpen)

	_, err := sess.Connect(s.ctx())
	s.ErrorContains(err, "gatt busy")
	s.Equal(StateFailed, sess.State())
}

func (s *SessionTestSuite) TestNotificationRendersInteger() {
	central := testutils.NewFakeCentral(testutils.FakeService{
		UUID:            "181A",
		Characteristics: []testutils.FakeCharacteristic{{UUID: counterUUID}},
	})
	sess := New(central, Options{Strategy: StrategyOpen, Display: s.board}, s.helper.Logger)
	defer sess.Close()

	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	s.Require().True(central.Notify(counterUUID, uint32Bytes(500)))
	s.Eventually(s.boardText("fe"), time.Second, 5*time.Millisecond)

	text, _ := s.board.Text("fe")
	s.Equal("500", text)
}

func (s *SessionTestSuite) TestNotificationRendersFloat() {
	sess := s.newSession(StrategyOpen)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	s.Require().True(s.central.Notify(tempUUID, float32Bytes(23.456)))
	s.Eventually(s.boardText("16"), time.Second, 5*time.Millisecond)

	text, _ := s.board.Text("16")
	s.Equal("23.46", text)
	s.True(s.helper.HasMessage("Characteristic changed"))
}

func (s *SessionTestSuite) TestOnCharacteristicChangeDecodeError() {
	sess := s.newSession(StrategyOpen)

	err := sess.OnCharacteristicChange(Notification{UUID: counterUUID, Value: Value{1, 2}})
	var decErr *device.DecodeError
	s.ErrorAs(err, &decErr)
	_, ok := s.board.Text("fe")
	s.False(ok)
}

func (s *SessionTestSuite) TestOnCharacteristicChangeStrictDisplay() {
	sess := New(s.central, Options{Display: display.NewBoard(display.Strict())}, s.helper.Logger)

	err := sess.OnCharacteristicChange(Notification{UUID: counterUUID, Value: uint32Bytes(5)})
	s.ErrorIs(err, display.ErrNoElement)
}

func (s *SessionTestSuite) TestReadIsIdempotent() {
	sess := s.newSession(StrategyFiltered)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	first, err := sess.ReadCharacteristic(s.ctx(), charUUID)
	s.Require().NoError(err)
	second, err := sess.ReadCharacteristic(s.ctx(), charUUID)
	s.Require().NoError(err)
	s.Equal(first, second)

	a, _ := FormatValue(ElementKey(charUUID), first, DefaultIntegerKeys)
	b, _ := FormatValue(ElementKey(charUUID), second, DefaultIntegerKeys)
	s.Equal("21.50", a)
	s.Equal(a, b)
}

func (s *SessionTestSuite) TestReadAcceptsAnyUUIDForm() {
	sess := s.newSession(StrategyFiltered)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	_, err = sess.ReadCharacteristic(s.ctx(), normChar)
	s.NoError(err)
}

func (s *SessionTestSuite) TestWriteThenRead() {
	sess := s.newSession(StrategyFiltered)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	s.Require().NoError(sess.WriteCharacteristic(s.ctx(), charUUID, []byte{1, 2, 3, 4}))
	s.Equal([][]byte{{1, 2, 3, 4}}, s.central.Writes(charUUID))

	v, err := sess.ReadCharacteristic(s.ctx(), charUUID)
	s.Require().NoError(err)
	s.Equal(Value{1, 2, 3, 4}, v)
}

func (s *SessionTestSuite) TestReadPlatformError() {
	s.central.ReadErr = map[string]error{normChar: errors.New("att error")}
	sess := s.newSession(StrategyFiltered)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	_, err = sess.ReadCharacteristic(s.ctx(), charUUID)
	s.ErrorContains(err, "att error")
}

func (s *SessionTestSuite) TestConnectIsSingleUse() {
	sess := s.newSession(StrategyFiltered)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	_, err = sess.Connect(s.ctx())
	s.ErrorIs(err, device.ErrSessionUsed)

	failed := New(s.central, Options{Strategy: StrategyFiltered, ServiceUUID: "180D"}, s.helper.Logger)
	_, err = failed.Connect(s.ctx())
	s.Require().Error(err)
	_, err = failed.Connect(s.ctx())
	s.ErrorIs(err, device.ErrSessionUsed)
}

func (s *SessionTestSuite) TestCloseKeepsRegistryButDisconnects() {
	sess := s.newSession(StrategyOpen)
	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	s.Require().NoError(sess.Close())
	s.NoError(sess.Close())
	s.Equal(StateClosed, sess.State())
	s.True(s.central.Disconnected())
	s.True(sess.Has(charUUID))

	_, err = sess.ReadCharacteristic(s.ctx(), charUUID)
	s.ErrorIs(err, device.ErrNotConnected)

	// late notifications after close are dropped
	s.True(s.central.Notify(counterUUID, uint32Bytes(9)))
	_, ok := s.board.Text("fe")
	s.False(ok)
}

func (s *SessionTestSuite) TestCloseBeforeConnect() {
	sess := s.newSession(StrategyOpen)
	s.NoError(sess.Close())
	s.False(s.central.Disconnected())

	_, err := sess.Connect(s.ctx())
	s.ErrorIs(err, device.ErrSessionUsed)
}

// gatedDisplay blocks its first SetText until release is closed
type gatedDisplay struct {
	mu      sync.Mutex
	texts   map[string]string
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedDisplay() *gatedDisplay {
	return &gatedDisplay{
		texts:   make(map[string]string),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *gatedDisplay) SetText(id, text string) error {
	d.mu.Lock()
	first := !d.gated
	d.gated = true
	d.mu.Unlock()
	if first {
		close(d.entered)
		<-d.release
	}
	d.mu.Lock()
	d.texts[id] = text
	d.mu.Unlock()
	return nil
}

func (d *gatedDisplay) snapshot() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.texts))
	for k, v := range d.texts {
		out[k] = v
	}
	return out
}

func (s *SessionTestSuite) TestLatestValueOfEveryCharacteristicRendered() {
	const (
		uuidA1 = "19B10050-E8F2-537E-4F6C-D104768A12A1"
		uuidB2 = "19B10051-E8F2-537E-4F6C-D104768A12B2"
		uuidC3 = "19B10052-E8F2-537E-4F6C-D104768A12C3"
	)
	central := testutils.NewFakeCentral(testutils.FakeService{
		UUID: serviceUUID,
		Characteristics: []testutils.FakeCharacteristic{
			{UUID: uuidA1}, {UUID: uuidB2}, {UUID: uuidC3},
		},
	})
	disp := newGatedDisplay()
	sess := New(central, Options{
		Strategy:    StrategyOpen,
		ServiceUUID: serviceUUID,
		Display:     disp,
	}, s.helper.Logger)
	defer sess.Close()

	_, err := sess.Connect(s.ctx())
	s.Require().NoError(err)

	s.Require().True(central.Notify(uuidA1, float32Bytes(1)))
	select {
	case <-disp.entered:
	case <-time.After(5 * time.Second):
		s.FailNow("display never received the first value")
	}

	// the display is busy with a1 while the others change
	s.Require().True(central.Notify(uuidB2, float32Bytes(41)))
	s.Require().True(central.Notify(uuidB2, float32Bytes(42)))
	s.Require().True(central.Notify(uuidC3, float32Bytes(7)))
	close(disp.release)

	want := map[string]string{"a1": "1.00", "b2": "42.00", "c3": "7.00"}
	s.Eventually(func() bool {
		got := disp.snapshot()
		return len(got) == len(want) && got["a1"] == want["a1"] && got["b2"] == want["b2"] && got["c3"] == want["c3"]
	}, 5*time.Second, 5*time.Millisecond, "rendered: %v", disp.snapshot())
}

func (s *SessionTestSuite) TestCloseDuringConnectDisconnects() {
	sess := s.newSession(StrategyOpen)
	s.central.OnConnect = func() { _ = sess.Close() }

	_, err := sess.Connect(s.ctx())
	s.Require().ErrorIs(err, device.ErrNotConnected)
	s.Equal(StateClosed, sess.State())
	s.True(s.central.Disconnected(), "a server obtained after Close must be disconnected")
	s.Equal([]string{"request", "connect", "disconnect"}, s.central.Calls())
	s.Empty(sess.Characteristics())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
