package bus

import (
	eventbus "github.com/asaskevich/EventBus"

	"github.com/rxscan/rxscan/pkg/bus/events"
)

type Subscriber interface {
	Subscribe(topic string, fn any) error
	// SubscribeAsync runs fn on its own goroutine for every event, so slow
	// subscribers such as a UI never block the publisher.
	SubscribeAsync(topic string, fn any) error
	Unsubscribe(topic string, handler any) error
}

type Publisher interface {
	Publish(topic string, args ...any)
}

type Bus interface {
	Subscriber
	Publisher
	// WaitAsync blocks until all async handlers have finished.
	WaitAsync()
}

func New() Bus {
	return &EventBus{eventbus.New()}
}

type EventBus struct {
	bus eventbus.Bus
}

func (e *EventBus) Publish(topic string, args ...any) {
	e.bus.Publish(topic, args...)
}

func (e *EventBus) Subscribe(topic string, handler any) error {
	return e.bus.Subscribe(topic, handler)
}

func (e *EventBus) SubscribeAsync(topic string, handler any) error {
	// transactional: events for one handler are delivered in order
	return e.bus.SubscribeAsync(topic, handler, true)
}

func (e *EventBus) Unsubscribe(topic string, handler any) error {
	return e.bus.Unsubscribe(topic, handler)
}

func (e *EventBus) WaitAsync() {
	e.bus.WaitAsync()
}

type NoopBus struct{}

func (b *NoopBus) Publish(topic string, args ...any)              {}
func (b *NoopBus) Subscribe(topic string, handler any) error      { return nil }
func (b *NoopBus) SubscribeAsync(topic string, handler any) error { return nil }
func (b *NoopBus) Unsubscribe(topic string, handler any) error    { return nil }
func (b *NoopBus) WaitAsync()                                     {}

// OnPipeline delivers every pipeline event to fn on a separate goroutine, in
// publish order. The returned func unsubscribes fn.
func OnPipeline(s Subscriber, fn func(events.PipelineEvent)) (func(), error) {
	if err := s.SubscribeAsync(events.TopicPipeline, fn); err != nil {
		return nil, err
	}
	return func() { s.Unsubscribe(events.TopicPipeline, fn) }, nil
}

// OnDevices delivers every device event to fn synchronously. The returned
// func unsubscribes fn.
func OnDevices(s Subscriber, fn func(events.DeviceEvent)) (func(), error) {
	if err := s.Subscribe(events.TopicDevices, fn); err != nil {
		return nil, err
	}
	return func() { s.Unsubscribe(events.TopicDevices, fn) }, nil
}
