package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a helper whose logger records entries instead of printing them.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // keep debug entries so tests can assert on the flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Messages returns the messages logged so far at level or above
func (h *TestHelper) Messages(level logrus.Level) []string {
	var out []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level <= level {
			out = append(out, e.Message)
		}
	}
	return out
}

// HasMessage reports whether any entry contains substr
func (h *TestHelper) HasMessage(substr string) bool {
	for _, e := range h.Hook.AllEntries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// EnvSensorProfile is the default peripheral used across tests: the environmental sensing
// service with a float temperature (element "16") and an integer counter (element "fe").
const EnvSensorProfile = `{
	"name": "env_sensor",
	"services": [
		{
			"uuid": "19B10040-E8F2-537E-4F6C-D104768A1214",
			"characteristics": [
				{ "uuid": "19B10041-E8F2-537E-4F6C-D104768A1215", "properties": "read,write,notify", "value": [0, 0, 0, 0] }
			]
		},
		{
			"uuid": "181A",
			"characteristics": [
				{ "uuid": "19B10042-E8F2-537E-4F6C-D104768A1216", "properties": "read,notify", "value": [227, 165, 187, 65] },
				{ "uuid": "19B10043-E8F2-537E-4F6C-D104768A12FE", "properties": "read,notify", "value": [244, 1, 0, 0] }
			]
		}
	]
}`
