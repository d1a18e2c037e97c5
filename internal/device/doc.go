// Package device defines the platform seam of envsense: a Web Bluetooth shaped set of
// interfaces (Central, Peripheral, GATTServer, Service, Characteristic) and the typed
// errors shared by every layer above it.
//
// The package covers:
//   - Device selection by advertised service filter or accept-all with optional services
//   - GATT service and characteristic discovery
//   - Characteristic read/write/notify operations
//   - UUID normalization (lowercase, no dashes, SIG base collapsed to 16 bits)
//
// Concrete implementations live in subpackages (see go-ble).
package device
