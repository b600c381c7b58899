// Package discovery tracks which scanners are attached and which one is
// selected for the next scan.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rxscan/rxscan/pkg/bus"
	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

var log = logging.Logger("rxscan/discovery")

const DefaultPollInterval = 2 * time.Second

var ErrAlreadyStarted = errors.New("discovery already started")

type Option func(*Watcher)

func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithPreferred selects the device with the given ID whenever it appears,
// even if another device is already selected.
func WithPreferred(id string) Option {
	return func(w *Watcher) {
		w.preferred = id
	}
}

func WithPublisher(p bus.Publisher) Option {
	return func(w *Watcher) {
		w.publisher = p
	}
}

// WithBackOff overrides the retry policy for a single enumeration.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(w *Watcher) {
		w.newBackOff = newBackOff
	}
}

// Watcher polls a scanner backend and keeps a registry of attached devices.
type Watcher struct {
	backend    scanner.Backend
	publisher  bus.Publisher
	interval   time.Duration
	preferred  string
	newBackOff func() backoff.BackOff

	mu       sync.RWMutex
	devices  []scanner.Device
	selected string

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(backend scanner.Backend, opts ...Option) *Watcher {
	w := &Watcher{
		backend:   backend,
		publisher: &bus.NoopBus{},
		interval:  DefaultPollInterval,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start performs an initial enumeration and then keeps polling in the
// background until Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	if err := w.Refresh(ctx); err != nil {
		log.Warnw("Initial scanner enumeration failed", "err", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
	return nil
}

// Stop ends watching and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warnw("Polling scanners failed", "err", err)
			}
		}
	}
}

// Refresh enumerates devices once and applies any additions or removals.
func (w *Watcher) Refresh(ctx context.Context) error {
	current, err := backoff.Retry(ctx, func() ([]scanner.Device, error) {
		return w.backend.Devices(ctx)
	}, backoff.WithBackOff(w.newBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("enumerating scanners: %w", err)
	}

	w.mu.Lock()
	var pending []events.DeviceEvent
	for _, d := range slices.Clone(w.devices) {
		if !slices.ContainsFunc(current, sameID(d.ID)) {
			pending = append(pending, w.removed(d, current)...)
		}
	}
	for _, d := range current {
		if !slices.ContainsFunc(w.devices, sameID(d.ID)) {
			pending = append(pending, w.added(d)...)
		}
	}
	w.mu.Unlock()

	w.publish(pending)
	return nil
}

// added registers d and returns the events it caused. Callers hold w.mu.
func (w *Watcher) added(d scanner.Device) []events.DeviceEvent {
	w.devices = append(w.devices, d)
	log.Infow("Scanner added", "id", d.ID, "name", d.Name)
	evts := []events.DeviceEvent{{Kind: events.DeviceAdded, Device: d, Selected: w.selected}}
	if !d.Available {
		return evts
	}
	if w.selected == "" || (w.preferred != "" && d.ID == w.preferred && w.selected != d.ID) {
		w.selected = d.ID
		evts = append(evts, events.DeviceEvent{Kind: events.DeviceSelected, Device: d, Selected: d.ID})
	}
	return evts
}

// removed unregisters d and returns the events it caused. A replacement
// selection is only taken from devices still present in current. Callers
// hold w.mu.
func (w *Watcher) removed(d scanner.Device, current []scanner.Device) []events.DeviceEvent {
	w.devices = slices.DeleteFunc(w.devices, sameID(d.ID))
	log.Infow("Scanner removed", "id", d.ID, "name", d.Name)
	if w.selected != d.ID {
		return []events.DeviceEvent{{Kind: events.DeviceRemoved, Device: d, Selected: w.selected}}
	}

	w.selected = ""
	i := slices.IndexFunc(w.devices, func(d scanner.Device) bool {
		return d.Available && slices.ContainsFunc(current, sameID(d.ID))
	})
	if i < 0 {
		log.Infow("No scanner selected")
		return []events.DeviceEvent{{Kind: events.DeviceRemoved, Device: d}}
	}
	next := w.devices[i]
	w.selected = next.ID
	return []events.DeviceEvent{
		{Kind: events.DeviceRemoved, Device: d, Selected: next.ID},
		{Kind: events.DeviceSelected, Device: next, Selected: next.ID},
	}
}

func (w *Watcher) publish(evts []events.DeviceEvent) {
	for _, evt := range evts {
		w.publisher.Publish(events.TopicDevices, evt)
	}
}

// Select makes the device with the given ID current.
func (w *Watcher) Select(id string) error {
	if id == "" {
		return types.ErrInvalidDevice
	}
	w.mu.Lock()
	i := slices.IndexFunc(w.devices, sameID(id))
	if i < 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: unknown scanner %q", types.ErrInvalidDevice, id)
	}
	d := w.devices[i]
	changed := w.selected != id
	w.selected = id
	w.mu.Unlock()

	if changed {
		log.Infow("Scanner selected", "id", id)
		w.publish([]events.DeviceEvent{{Kind: events.DeviceSelected, Device: d, Selected: id}})
	}
	return nil
}

// CurrentDeviceID returns the selected device ID, if any.
func (w *Watcher) CurrentDeviceID() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.selected, w.selected != ""
}

// Current returns the selected device, or types.ErrNoScannerAvailable.
func (w *Watcher) Current() (scanner.Device, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i := slices.IndexFunc(w.devices, sameID(w.selected))
	if w.selected == "" || i < 0 {
		return scanner.Device{}, types.ErrNoScannerAvailable
	}
	return w.devices[i], nil
}

// Devices returns the known devices in registration order.
func (w *Watcher) Devices() []scanner.Device {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.devices)
}

func sameID(id string) func(scanner.Device) bool {
	return func(d scanner.Device) bool {
		return d.ID == id
	}
}
