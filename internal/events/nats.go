package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderEventID carries the envelope id so consumers can drop duplicates.
const HeaderEventID = "Nats-Msg-Id"

// NATSPublisher publishes JSON envelopes to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("occurrences"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	env, err := Wrap(topic, event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(topic)
	msg.Header.Set(HeaderEventID, env.ID)
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// dedupeWindow is how many recent event ids a subscription remembers.
const dedupeWindow = 1024

// NATSSubscriber receives occurrence envelopes from NATS subjects.
type NATSSubscriber struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSSubscriber connects to NATS and keeps reconnecting for as long as the
// subscriber is open. Extra nats.Option values are applied after the defaults.
func NewNATSSubscriber(url string, logger *slog.Logger, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("occurrences-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc, logger: logger}, nil
}

// Subscribe delivers envelopes published on topic, which may be a wildcard
// such as TopicAll. Payloads that are not envelopes are logged and skipped;
// a redelivered event id is dropped.
func (s *NATSSubscriber) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	ch := make(chan Message, 64)
	seen := newRecentIDs(dedupeWindow)

	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		m, err := decodeMessage(msg)
		if err != nil {
			s.logger.Warn("skipping event", "subject", msg.Subject, "err", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		if !seen.add(m.ID) {
			s.logger.Debug("dropping duplicate event", "id", m.ID, "topic", m.Topic)
			return
		}
		select {
		case ch <- m:
		default:
			s.logger.Warn("consumer too slow, dropping event", "id", m.ID, "topic", m.Topic)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Messages published on other connections only reach the subscription
	// once the server has registered it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
