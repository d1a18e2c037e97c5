package device

import (
	"context"
)

// RequestOptions selects which peripheral a Central hands out.
//
// Exactly one of Filters or AcceptAll should be set. With Filters, a device must
// advertise at least one of the listed service UUIDs. With AcceptAll every connectable
// device is eligible, but only OptionalServices may be discovered after connecting.
type RequestOptions struct {
	Filters          []string
	AcceptAll        bool
	OptionalServices []string
	Name             string // optional exact local-name match
}

// AllowedServices returns the normalized set of services a connection made with these
// options may discover
func (o RequestOptions) AllowedServices() map[string]struct{} {
	allowed := make(map[string]struct{}, len(o.Filters)+len(o.OptionalServices))
	for _, u := range o.Filters {
		allowed[NormalizeUUID(u)] = struct{}{}
	}
	for _, u := range o.OptionalServices {
		allowed[NormalizeUUID(u)] = struct{}{}
	}
	return allowed
}

// Central is the device chooser: it finds one peripheral matching the request
type Central interface {
	RequestDevice(ctx context.Context, opts RequestOptions) (Peripheral, error)
}

// Peripheral is a selected but not yet connected device
type Peripheral interface {
	Name() string
	Address() string
	Connect(ctx context.Context) (GATTServer, error)
}

// GATTServer is a live GATT connection to a peripheral
type GATTServer interface {
	PrimaryService(ctx context.Context, uuid string) (Service, error)
	PrimaryServices(ctx context.Context) ([]Service, error)
	Disconnect() error
}

// Service represents a discovered GATT service
type Service interface {
	UUID() string
	Characteristic(ctx context.Context, uuid string) (Characteristic, error)
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// NotificationHandler receives the raw bytes of a changed characteristic value
type NotificationHandler func(data []byte)

// Characteristic is a live characteristic handle
type Characteristic interface {
	UUID() string
	ReadValue(ctx context.Context) ([]byte, error)
	WriteValue(ctx context.Context, data []byte) error
	StartNotifications(ctx context.Context, handler NotificationHandler) error
}

// Advertisement is the subset of advertising data the chooser looks at
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// Matches reports whether an advertisement satisfies the request
func (o RequestOptions) Matches(adv Advertisement) bool {
	if !adv.Connectable() {
		return false
	}
	if o.Name != "" && adv.LocalName() != o.Name {
		return false
	}
	if o.AcceptAll {
		return true
	}
	for _, want := range o.Filters {
		w := NormalizeUUID(want)
		for _, got := range adv.Services() {
			if NormalizeUUID(got) == w {
				return true
			}
		}
	}
	return false
}
