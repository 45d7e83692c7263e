// Package events publishes change notifications for occurrences to NATS.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/occurrences/internal/idgen"
	"github.com/alfredjeanlab/occurrences/internal/model"
)

// Event topic constants
const (
	TopicOccurrenceCreated = "occurrences.occurrence.created"
	TopicOccurrenceUpdated = "occurrences.occurrence.updated"
	TopicPriceAdded        = "occurrences.price.added"

	// TopicAll matches every topic above.
	TopicAll = "occurrences.>"
)

// Event types

type OccurrenceCreated struct {
	Occurrence *model.Occurrence `json:"occurrence"`
}

type OccurrenceUpdated struct {
	Occurrence *model.Occurrence `json:"occurrence"`
	Previous   model.RowVersion  `json:"previous_timestamp"`
}

type PriceAdded struct {
	Price *model.Price `json:"price"`
}

// Envelope wraps every published payload.
type Envelope struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Published time.Time `json:"published_at"`
	Data      any       `json:"data"`
}

// Wrap builds an envelope with a fresh event id.
func Wrap(topic string, event any) (*Envelope, error) {
	id, err := idgen.NewEventID()
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	return &Envelope{
		ID:        id,
		Topic:     topic,
		Published: time.Now().UTC(),
		Data:      event,
	}, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NewPublisher connects to url, or returns a NoopPublisher when url is empty.
func NewPublisher(url string) (Publisher, error) {
	if url == "" {
		return &NoopPublisher{}, nil
	}
	return NewNATSPublisher(url)
}
