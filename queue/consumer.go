// Package queue adapts the durable ordered log the pipeline consumes from
// and publishes to.
//
// Delivery is at-least-once: offsets are committed manually, after the
// message's side effects have succeeded or been durably deferred. Malformed
// payloads are committed immediately so a poison message never blocks the
// log.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quay/zlog"
	"github.com/segmentio/kafka-go"

	cratespro "github.com/crates-pro/crates-pro"
)

// Message is one decoded event plus the underlying record handle needed for
// the offset commit.
type Message struct {
	Event cratespro.RepoSyncEvent

	raw kafka.Message
}

// Consumer is a single-group consumer of the main topic.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer subscribes to topic with the given group.
func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
	}
}

// ConsumeOnce blocks until a well-formed message is available or ctx is
// cancelled.
//
// Records that fail to decode are logged at warn and committed in place;
// ConsumeOnce keeps fetching until it has a usable event.
func (c *Consumer) ConsumeOnce(ctx context.Context) (*Message, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "queue/Consumer.ConsumeOnce")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue: fetch: %w", err)
		}
		ev, err := decodeEvent(m.Value)
		if err == nil {
			zlog.Debug(ctx).
				Str("crate", ev.CrateName).
				Str("topic", m.Topic).
				Int("partition", m.Partition).
				Int64("offset", m.Offset).
				Msg("message fetched")
			return &Message{Event: ev, raw: m}, nil
		}
		zlog.Warn(ctx).
			Str("topic", m.Topic).
			Int("partition", m.Partition).
			Int64("offset", m.Offset).
			Err(err).
			Msg("skipping malformed payload")
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return nil, fmt.Errorf("queue: committing poison message: %w", err)
		}
	}
}

// Commit advances the consumer group offset past msg. Callers invoke this
// only after the message's processing side effects have succeeded.
func (c *Consumer) Commit(ctx context.Context, msg *Message) error {
	if err := c.reader.CommitMessages(ctx, msg.raw); err != nil {
		return fmt.Errorf("queue: commit: %w", err)
	}
	return nil
}

// Close shuts the reader down.
func (c *Consumer) Close() error { return c.reader.Close() }

// decodeEvent validates one payload. MegaURL is the only required field;
// everything else is carried as-is.
func decodeEvent(raw []byte) (cratespro.RepoSyncEvent, error) {
	var ev cratespro.RepoSyncEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("queue: decoding payload: %w", err)
	}
	if ev.MegaURL == "" {
		return ev, fmt.Errorf("queue: payload missing mega_url")
	}
	return ev, nil
}
