// Package devices tracks cast-capable playback devices discovered on the
// network and publishes their appearance on the event bus.
package devices

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/events"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// Registry is the authoritative set of known devices. Identity is the mDNS
// service fullname; re-announcements for a known id are ignored. Entries are
// never removed on disappearance, only marked disconnected.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]models.Device
	order   []string // insertion order, for stable listings
	bus     *events.Bus
	logger  *logrus.Logger
}

// NewRegistry creates a registry publishing onto bus (may be nil in tests).
func NewRegistry(bus *events.Bus, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		devices: make(map[string]models.Device),
		bus:     bus,
		logger:  logger,
	}
}

// Insert adds a newly discovered device. A device with a known id leaves the
// registry unchanged and publishes nothing.
func (r *Registry) Insert(d models.Device) bool {
	r.mu.Lock()
	if _, exists := r.devices[d.ID]; exists {
		r.mu.Unlock()
		return false
	}
	r.devices[d.ID] = d
	r.order = append(r.order, d.ID)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"device": d.Name,
		"ip":     d.IP,
		"port":   d.Port,
	}).Info("Discovered device")

	if r.bus != nil {
		r.bus.Publish(events.Device, d)
	}
	return true
}

// MarkOffline flags a vanished device as disconnected without removing it.
func (r *Registry) MarkOffline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.IsConnected = false
		r.devices[id] = d
	}
}

// Find returns a device by id.
func (r *Registry) Find(id string) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return models.Device{}, errs.New(errs.NotFound, "device %s not found", id)
	}
	return d, nil
}

// All returns a snapshot of every device in insertion order.
func (r *Registry) All() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Size returns the number of registered devices.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SetConnected updates the connection flag of a device.
func (r *Registry) SetConnected(id string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return errs.New(errs.NotFound, "device %s not found", id)
	}
	d.IsConnected = connected
	r.devices[id] = d
	return nil
}

// SetCurrent marks id as the active cast target, clearing the flag
// everywhere else. An empty id clears the current device entirely.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		if _, ok := r.devices[id]; !ok {
			return errs.New(errs.NotFound, "device %s not found", id)
		}
	}
	for key, d := range r.devices {
		d.IsCurrentDevice = key == id
		r.devices[key] = d
	}
	return nil
}

// Current returns the device marked current, if any.
func (r *Registry) Current() (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if d := r.devices[id]; d.IsCurrentDevice {
			return d, true
		}
	}
	return models.Device{}, false
}
