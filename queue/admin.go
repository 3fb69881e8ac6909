package queue

import (
	"context"
	"fmt"

	"github.com/quay/zlog"
	"github.com/segmentio/kafka-go"
)

// ResetOffsets rewinds a consumer group to the first offset of every
// partition of topic. This is an out-of-band admin action for replaying the
// log from the start; it must not run while a consumer in the group is
// active.
func ResetOffsets(ctx context.Context, broker, groupID, topic string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "queue/ResetOffsets")
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("queue: dialing broker: %w", err)
	}
	defer conn.Close()
	parts, err := conn.ReadPartitions(topic)
	if err != nil {
		return fmt.Errorf("queue: reading partitions: %w", err)
	}

	client := &kafka.Client{Addr: kafka.TCP(broker)}
	offsets := make([]kafka.OffsetCommit, 0, len(parts))
	for _, p := range parts {
		offsets = append(offsets, kafka.OffsetCommit{Partition: p.ID, Offset: 0})
	}
	_, err = client.OffsetCommit(ctx, &kafka.OffsetCommitRequest{
		GroupID: groupID,
		Topics:  map[string][]kafka.OffsetCommit{topic: offsets},
	})
	if err != nil {
		return fmt.Errorf("queue: committing reset offsets: %w", err)
	}
	zlog.Info(ctx).
		Str("group", groupID).
		Str("topic", topic).
		Int("partitions", len(offsets)).
		Msg("consumer group offsets reset")
	return nil
}
