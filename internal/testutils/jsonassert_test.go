package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_IgnoresExtraKeysByDefault(t *testing.T) {
	rec := &recordingT{}
	ok := NewJSONAsserter(rec).Assert(
		`{"service":"180f","characteristics":["2a19"],"extra":1}`,
		`{"service":"180f","characteristics":["2a19"]}`,
	)
	assert.True(t, ok)
	assert.Empty(t, rec.failures)
}

func TestJSONAsserter_StrictKeys(t *testing.T) {
	diff := NewJSONAsserter(t, WithStrictKeys()).Diff(`{"a":1,"b":2}`, `{"a":1}`)
	assert.NotEmpty(t, diff)
}

func TestJSONAsserter_ReportsValueMismatch(t *testing.T) {
	rec := &recordingT{}
	ok := NewJSONAsserter(rec).Assert(`{"value":"23.46"}`, `{"value":"1000"}`)

	assert.False(t, ok)
	if assert.Len(t, rec.failures, 1) {
		assert.Contains(t, rec.failures[0], "23.46")
	}
}

func TestJSONAsserter_PresencePlaceholder(t *testing.T) {
	diff := NewJSONAsserter(t).Diff(
		`{"address":"AA:BB:CC:DD:EE:FF","name":"env_sensor"}`,
		`{"address":"<<PRESENCE>>","name":"env_sensor"}`,
	)
	assert.Empty(t, diff)

	diff = NewJSONAsserter(t).Diff(`{"name":"env_sensor"}`, `{"address":"<<PRESENCE>>"}`)
	assert.NotEmpty(t, diff, "placeholder requires the key to exist")
}

func TestJSONAsserter_IgnoredFields(t *testing.T) {
	diff := NewJSONAsserter(t, WithStrictKeys(), WithIgnoredFields("ts")).Diff(
		`[{"uuid":"2a19","ts":1},{"uuid":"2a6e","ts":2}]`,
		`[{"uuid":"2a19","ts":7},{"uuid":"2a6e"}]`,
	)
	assert.Empty(t, diff)
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	assert.Contains(t, NewJSONAsserter(t).Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, NewJSONAsserter(t).Diff(`{}`, `[`), "invalid expected JSON")
}
