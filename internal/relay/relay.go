// Package relay mirrors change-feed events between dashboard processes
// through a Kafka topic. Each process both produces its local mutations and
// consumes the mutations of every other process, republishing them into its
// local feed so trackers and queues resync.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

// relayedTables is every table whose mutations cross process boundaries.
var relayedTables = []string{
	store.TableEmployees,
	store.TableConversations,
	store.TableMessages,
	store.TableSecureRecords,
	store.TableDeadlineTasks,
	store.TableMissedCalls,
}

type envelope struct {
	Origin  string          `json:"origin"`
	Table   string          `json:"table"`
	Op      feed.Op         `json:"op"`
	RowID   string          `json:"row_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

type Relay struct {
	feed   *feed.Feed
	writer *kafka.Writer
	reader *kafka.Reader
	nodeID string
	out    chan feed.Event
	subs   []*feed.Subscription
}

// New creates a relay over the given brokers (comma-separated) and topic.
func New(brokers, topic, consumerGroup string, f *feed.Feed) *Relay {
	brokerList := strings.Split(brokers, ",")
	return &Relay{
		feed:   f,
		nodeID: uuid.NewString(),
		out:    make(chan feed.Event, 100),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerList...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokerList,
			Topic:    topic,
			GroupID:  consumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Start subscribes to the local feed and begins the produce and consume
// loops. Both run until the context is cancelled.
func (r *Relay) Start(ctx context.Context) {
	for _, table := range relayedTables {
		sub := r.feed.Subscribe(table, feed.OpAny, nil, func(e feed.Event) {
			if e.Origin != "" {
				// already remote, do not echo it back out
				return
			}
			select {
			case r.out <- e:
			default:
				slog.Warn("relay: outbound buffer full, event dropped", "table", e.Table)
			}
		})
		r.subs = append(r.subs, sub)
	}
	go r.produceLoop(ctx)
	go r.consumeLoop(ctx)
}

func (r *Relay) produceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.out:
			if err := r.produce(ctx, e); err != nil {
				slog.Error("relay: produce failed", "table", e.Table, "error", err)
			}
		}
	}
}

func (r *Relay) produce(ctx context.Context, e feed.Event) error {
	var payload json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		payload = b
	}
	value, err := json.Marshal(envelope{
		Origin:  r.nodeID,
		Table:   e.Table,
		Op:      e.Op,
		RowID:   e.RowID,
		Payload: payload,
		At:      e.At,
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.Table),
		Value: value,
		Time:  e.At,
	})
}

func (r *Relay) consumeLoop(ctx context.Context) {
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("relay: read failed", "error", err)
			continue
		}
		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			slog.Warn("relay: bad envelope", "error", err)
			continue
		}
		if env.Origin == r.nodeID {
			continue
		}
		r.feed.Publish(feed.Event{
			Table:   env.Table,
			Op:      env.Op,
			RowID:   env.RowID,
			Payload: decodePayload(env.Table, env.Payload),
			Origin:  env.Origin,
			At:      env.At,
		})
	}
}

// decodePayload restores the typed payload for the table so local
// subscribers (the chat session's conversation filter in particular) see
// the same shapes local mutations carry.
func decodePayload(table string, raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	switch table {
	case store.TableConversations:
		var c store.Conversation
		if json.Unmarshal(raw, &c) == nil {
			return c
		}
	case store.TableMessages:
		var m store.Message
		if json.Unmarshal(raw, &m) == nil {
			return m
		}
	case store.TableSecureRecords:
		var s store.SecureRecord
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case store.TableDeadlineTasks:
		var t store.DeadlineTask
		if json.Unmarshal(raw, &t) == nil {
			return t
		}
	case store.TableMissedCalls:
		var c store.MissedCall
		if json.Unmarshal(raw, &c) == nil {
			return c
		}
	}
	return nil
}

// Stop cancels the feed subscriptions and closes the Kafka endpoints.
func (r *Relay) Stop() error {
	for _, sub := range r.subs {
		sub.Cancel()
	}
	r.subs = nil
	werr := r.writer.Close()
	rerr := r.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
