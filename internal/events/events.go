// Package events publishes best-effort marketplace notifications. The store
// is the system of record; a lost event is never an error for the caller.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event types.
const (
	ListingCreated    = "listing.created"
	ListingRemoved    = "listing.removed"
	ListingSold       = "listing.sold"
	RapUpdated        = "rap.updated"
	TransferCompleted = "transfer.completed"
)

// Event is one notification.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// New stamps an event with the current time.
func New(eventType string, data interface{}) Event {
	return Event{Type: eventType, Time: time.Now().UTC(), Data: data}
}

// Publisher delivers events to one sink.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every sink. Sink failures are logged and do
// not stop delivery to the others.
type Multi struct {
	sinks []Publisher
	log   zerolog.Logger
}

// NewMulti combines sinks; nil sinks are skipped.
func NewMulti(log zerolog.Logger, sinks ...Publisher) *Multi {
	m := &Multi{log: log}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish implements Publisher. It never returns an error.
func (m *Multi) Publish(ctx context.Context, evt Event) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, evt); err != nil {
			m.log.Warn().Err(err).Str("type", evt.Type).Msg("event publish failed")
		}
	}
	return nil
}
