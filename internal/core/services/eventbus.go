package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

type EventType string

const (
	EventTypeContentDelta EventType = "content_delta"
	EventTypeContentEnd   EventType = "content_end"
	EventTypeStep         EventType = "step"
	EventTypeAnswer       EventType = "answer"
	EventTypeMessage      EventType = "message"
	EventTypeTrace        EventType = "trace"
)

// Event is one item pushed to live listeners. Channel is usually a session id.
type Event struct {
	Channel   string    `json:"channel"`
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	Data      string    `json:"data"` // JSON payload or raw text
	Timestamp int64     `json:"timestamp"`
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
	global []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one channel key.
func (b *EventBus) Subscribe(channel string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[channel] = append(b.subs[channel], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[channel]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[channel] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
	}
	return ch, unsub
}

// SubscribeGlobal receives every event regardless of channel.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.global = append(b.global, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.global {
			if sub == ch {
				close(ch)
				b.global = append(b.global[:i], b.global[i+1:]...)
				return
			}
		}
	}
	return ch, unsub
}

// Publish fans an event out without blocking. A full subscriber drops it.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Channel] {
		b.send(ch, e)
	}
	for _, ch := range b.global {
		b.send(ch, e)
	}
}

func (b *EventBus) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "channel", e.Channel, "type", e.Type)
	}
}

// PublishJSON marshals data into the event payload.
func (b *EventBus) PublishJSON(channel string, typ EventType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("failed to marshal event payload", "type", typ, "error", err)
		return
	}
	b.Publish(Event{Channel: channel, Type: typ, Data: string(raw)})
}

// EventBusSink forwards demultiplexed content and reasoning steps of one
// session to the bus.
type EventBusSink struct {
	bus     *EventBus
	channel string
}

func NewEventBusSink(bus *EventBus, sessionID domain.SessionID) *EventBusSink {
	return &EventBusSink{bus: bus, channel: string(sessionID)}
}

func (s *EventBusSink) Content(messageID, chunk string) {
	s.bus.Publish(Event{Channel: s.channel, Type: EventTypeContentDelta, MessageID: messageID, Data: chunk})
}

func (s *EventBusSink) EndOfField(messageID string) {
	s.bus.Publish(Event{Channel: s.channel, Type: EventTypeContentEnd, MessageID: messageID})
}

func (s *EventBusSink) Step(step domain.ReasoningStep) {
	s.bus.PublishJSON(s.channel, EventTypeStep, step)
}
