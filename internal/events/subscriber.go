package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is one occurrence envelope received from the bus.
type Message struct {
	ID        string
	Topic     string
	Published time.Time
	Data      json.RawMessage
}

// Subscriber delivers occurrence envelopes. The channel returned by
// Subscribe is closed once ctx is done. Each event id is delivered at most
// once per subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	Close() error
}

var errNotEnvelope = errors.New("payload is not an event envelope")

// decodeMessage reads an envelope from msg. The id comes from HeaderEventID,
// falling back to the envelope's own id.
func decodeMessage(msg *nats.Msg) (Message, error) {
	var env struct {
		ID        string          `json:"id"`
		Topic     string          `json:"topic"`
		Published time.Time       `json:"published_at"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errNotEnvelope, err)
	}
	if env.Topic == "" {
		return Message{}, errNotEnvelope
	}

	id := msg.Header.Get(HeaderEventID)
	if id == "" {
		id = env.ID
	}
	if id == "" {
		return Message{}, fmt.Errorf("%w: no event id", errNotEnvelope)
	}
	return Message{ID: id, Topic: env.Topic, Published: env.Published, Data: env.Data}, nil
}

// recentIDs remembers the last len(ring) event ids.
type recentIDs struct {
	ring []string
	next int
	seen map[string]struct{}
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ring: make([]string, n), seen: make(map[string]struct{}, n)}
}

// add records id and reports whether it was new.
func (r *recentIDs) add(id string) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.seen[id] = struct{}{}
	return true
}
