package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Source delivers advertisements matching opts until ctx ends
type Source interface {
	Scan(ctx context.Context, opts device.RequestOptions, handler func(device.Advertisement)) error
}

// EventType marks if the device was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

type Event struct {
	Type  EventType
	Entry Entry
}

// Entry is what the scanner knows about one advertising device
type Entry struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services,omitempty"`
	Seen        int       `json:"seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Scanner collects candidate devices for a session
type Scanner struct {
	source  Source
	devices *hashmap.Map[string, *Entry]
	events  *ringchan.RingChannel[Event]
	logger  *logrus.Logger
	now     func() time.Time
}

func NewScanner(source Source, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		source: source,
		events: ringchan.New[Event](100),
		logger: logger,
		now:    time.Now,
	}
}

// Scan runs until ctx ends and returns the devices seen, strongest signal first.
// Filters and Name in opts restrict the result the same way a session request would.
func (s *Scanner) Scan(ctx context.Context, opts device.RequestOptions, progressCallback ProgressCallback) ([]Entry, error) {
	s.devices = hashmap.New[string, *Entry]()
	if progressCallback == nil {
		progressCallback = func(string) {}
	}
	if len(opts.Filters) == 0 {
		opts.AcceptAll = true
	}

	s.logger.WithFields(logrus.Fields{
		"filters": opts.Filters,
		"name":    opts.Name,
	}).Info("Starting BLE scan...")
	progressCallback("Scanning")

	if err := s.source.Scan(ctx, opts, s.handleAdvertisement); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"device_count":   s.devices.Len(),
		"events_dropped": s.events.Metrics().Overwritten,
	}).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.Entries(), nil
}

func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	addr := adv.Addr()
	fresh := &Entry{Address: addr}
	entry, existing := s.devices.GetOrInsert(addr, fresh)

	// advertisements for one address arrive on one scan goroutine
	entry.Seen++
	entry.RSSI = adv.RSSI()
	entry.Connectable = adv.Connectable()
	entry.LastSeen = s.now()
	if name := adv.LocalName(); name != "" {
		entry.Name = name
	}
	if svcs := adv.Services(); len(svcs) > 0 {
		entry.Services = svcs
	}

	event := Event{Type: EventUpdated, Entry: *entry}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  entry.Name,
			"address": entry.Address,
			"rssi":    entry.RSSI,
		}).Info("Discovered new device")
	}
	s.events.Send(event)
}

// Entries returns a snapshot of the devices seen so far, strongest signal first
func (s *Scanner) Entries() []Entry {
	if s.devices == nil {
		return nil
	}
	out := make([]Entry, 0, s.devices.Len())
	s.devices.Range(func(_ string, e *Entry) bool {
		out = append(out, *e)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return strings.Compare(out[i].Address, out[j].Address) < 0
	})
	return out
}

// Events returns discovery events; old events are dropped when nobody reads
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}
