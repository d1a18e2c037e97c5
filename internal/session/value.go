package session

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/srg/envsense/internal/device"
)

// Value is a raw characteristic value as delivered by the peripheral
type Value []byte

// Uint32 decodes the first four bytes as a little-endian unsigned integer
func (v Value) Uint32() (uint32, error) {
	if len(v) < 4 {
		return 0, &device.DecodeError{Kind: "uint32", Want: 4, Got: len(v)}
	}
	return binary.LittleEndian.Uint32(v), nil
}

// Float32 decodes the first four bytes as a little-endian IEEE-754 float
func (v Value) Float32() (float32, error) {
	if len(v) < 4 {
		return 0, &device.DecodeError{Kind: "float32", Want: 4, Got: len(v)}
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v)), nil
}

// ElementKey returns the display element a characteristic renders into: the last two
// characters of its 128-bit UUID, lowercased.
func ElementKey(uuid string) string {
	s := device.CanonicalUUID(uuid)
	if s == "" {
		s = strings.ToLower(strings.TrimSpace(uuid))
	}
	if len(s) < 2 {
		return s
	}
	return s[len(s)-2:]
}

// FormatValue renders v for element key. Keys listed in intKeys render as integers,
// everything else as a float with two decimals.
func FormatValue(key string, v Value, intKeys []string) (string, error) {
	for _, k := range intKeys {
		if strings.EqualFold(k, key) {
			n, err := v.Uint32()
			if err != nil {
				return "", err
			}
			return strconv.FormatUint(uint64(n), 10), nil
		}
	}

	f, err := v.Float32()
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(float64(f), 'f', 2, 64), nil
}
