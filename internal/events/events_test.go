package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/occurrences/internal/idgen"
	"github.com/alfredjeanlab/occurrences/internal/model"
)

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicOccurrenceCreated, OccurrenceCreated{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNewPublisher_EmptyURL(t *testing.T) {
	pub, err := NewPublisher("")
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if _, ok := pub.(*NoopPublisher); !ok {
		t.Errorf("got %T, want *NoopPublisher", pub)
	}
}

func TestWrap(t *testing.T) {
	env, err := Wrap(TopicPriceAdded, PriceAdded{})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if !strings.HasPrefix(env.ID, idgen.EventPrefix) {
		t.Errorf("ID = %q, want prefix %q", env.ID, idgen.EventPrefix)
	}
	if env.Topic != TopicPriceAdded {
		t.Errorf("Topic = %q", env.Topic)
	}
	if env.Published.IsZero() {
		t.Error("Published not set")
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicOccurrenceCreated, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	occ := &model.Occurrence{ID: 3, Title: "Test 2", Timestamp: model.RowVersion{0, 0, 0, 0, 0, 0, 0, 3}}
	if err := pub.Publish(context.Background(), TopicOccurrenceCreated, OccurrenceCreated{Occurrence: occ}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := pub.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case msg := <-ch:
		var got struct {
			ID    string            `json:"id"`
			Topic string            `json:"topic"`
			Data  OccurrenceCreated `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Data.Occurrence.Title != "Test 2" {
			t.Errorf("title = %q, want %q", got.Data.Occurrence.Title, "Test 2")
		}
		if !got.Data.Occurrence.Timestamp.Equal(occ.Timestamp) {
			t.Errorf("timestamp = %s, want %s", got.Data.Occurrence.Timestamp, occ.Timestamp)
		}
		if h := msg.Header.Get(HeaderEventID); h != got.ID {
			t.Errorf("header id = %q, envelope id = %q", h, got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 3)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	occ := &model.Occurrence{ID: 1, Title: "Test 0"}
	for _, tc := range []struct {
		topic string
		event any
	}{
		{TopicOccurrenceCreated, OccurrenceCreated{Occurrence: occ}},
		{TopicOccurrenceUpdated, OccurrenceUpdated{Occurrence: occ}},
		{TopicPriceAdded, PriceAdded{Price: &model.Price{OccurrenceID: 1, Currency: "USD"}}},
	} {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.Flush(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}
