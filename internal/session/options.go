package session

import (
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/display"
)

// Strategy selects how Connect discovers characteristics
type Strategy int

const (
	// StrategyFiltered requests a device advertising ServiceUUID and caches the
	// configured characteristics of that one service. No subscriptions are made.
	StrategyFiltered Strategy = iota
	// StrategyOpen accepts any device, walks every allowed service and subscribes
	// to every characteristic, one service at a time.
	StrategyOpen
)

func (s Strategy) String() string {
	switch s {
	case StrategyFiltered:
		return "filtered"
	case StrategyOpen:
		return "open"
	default:
		return "unknown"
	}
}

// EnvironmentalSensingService is the SIG-assigned environmental sensing service
const EnvironmentalSensingService = "0000181a-0000-1000-8000-00805f9b34fb"

// DefaultIntegerKeys are the element keys rendered as unsigned integers
var DefaultIntegerKeys = []string{"fe", "ff"}

// Options configures a Session
type Options struct {
	DeviceName string
	// NameFilter additionally requires the filtered strategy's device to advertise DeviceName
	NameFilter bool
	Strategy   Strategy

	ServiceUUID string
	// CharacteristicUUIDs are cached by the filtered strategy
	CharacteristicUUIDs []string
	// OptionalServices may be discovered by the open strategy.
	// Empty means ServiceUUID plus the environmental sensing service.
	OptionalServices []string

	// IntegerKeys are element keys decoded as uint32; nil means DefaultIntegerKeys
	IntegerKeys []string

	// Display receives rendered notification values; may be nil
	Display display.Display
}

func (o Options) withDefaults() Options {
	if o.IntegerKeys == nil {
		o.IntegerKeys = DefaultIntegerKeys
	}
	if o.Strategy == StrategyOpen && len(o.OptionalServices) == 0 {
		if o.ServiceUUID != "" {
			o.OptionalServices = append(o.OptionalServices, o.ServiceUUID)
		}
		o.OptionalServices = append(o.OptionalServices, EnvironmentalSensingService)
	}
	return o
}

func (o Options) requestOptions() device.RequestOptions {
	if o.Strategy == StrategyOpen {
		return device.RequestOptions{
			AcceptAll:        true,
			OptionalServices: o.OptionalServices,
		}
	}
	opts := device.RequestOptions{Filters: []string{o.ServiceUUID}}
	if o.NameFilter {
		opts.Name = o.DeviceName
	}
	return opts
}
