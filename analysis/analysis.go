// Package analysis bridges the pipeline to the external static-analysis
// workers.
//
// The dispatch side publishes ready-to-scan messages on the analysis topic
// as versions are ingested; the result side consumes tool output and inserts
// it into the relational mirror. The scanners themselves are external
// collaborators, only the queue contract and the result-ingest shape live
// here.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quay/zlog"
	"github.com/segmentio/kafka-go"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
	"github.com/crates-pro/crates-pro/queue"
)

// DefaultTool is the tool name used for dispatch bookkeeping rows. A
// failure sentinel under this name suppresses re-dispatch of a version that
// cannot be scanned.
const DefaultTool = "dispatch"

// Publisher is the queue write capability the dispatcher needs;
// *queue.Producer is the production implementation.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

var _ Publisher = (*queue.Producer)(nil)

// Dispatcher publishes scan requests for freshly ingested versions.
type Dispatcher struct {
	producer Publisher
	store    datastore.AnalysisStore
}

// NewDispatcher wires a producer on the analysis topic to the result store.
func NewDispatcher(producer Publisher, store datastore.AnalysisStore) *Dispatcher {
	return &Dispatcher{producer: producer, store: store}
}

// Dispatch publishes one scan request unless a result or failure sentinel
// already exists for the version.
func (d *Dispatcher) Dispatch(ctx context.Context, namespace string, req *cratespro.ScanRequest) error {
	ctx = zlog.ContextWithValues(ctx, "component", "analysis/Dispatcher.Dispatch")
	id := namespace + "/" + req.Name + "/" + req.Version
	done, err := d.store.HasResult(ctx, id, DefaultTool)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if err := d.producer.Publish(ctx, id, req); err != nil {
		// Record the failure sentinel so the version is not re-dispatched
		// forever.
		if serr := d.store.MarkScanFailed(ctx, id, DefaultTool); serr != nil {
			zlog.Error(ctx).Str("id", id).Err(serr).Msg("failed to record scan failure sentinel")
		}
		return fmt.Errorf("analysis: dispatching %s: %w", id, err)
	}
	zlog.Debug(ctx).Str("id", id).Msg("scan dispatched")
	return nil
}

// ResultConsumer drains the scanners' result topic into the relational
// mirror.
type ResultConsumer struct {
	reader *kafka.Reader
	store  datastore.AnalysisStore
}

// NewResultConsumer subscribes to the result topic.
func NewResultConsumer(brokers []string, groupID, topic string, store datastore.AnalysisStore) *ResultConsumer {
	return &ResultConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
		store: store,
	}
}

// ProcessOne consumes and stores a single result. Malformed results are
// logged and skipped with their offset committed; store failures leave the
// offset uncommitted so the result is retried.
func (rc *ResultConsumer) ProcessOne(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "analysis/ResultConsumer.ProcessOne")
	m, err := rc.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("analysis: fetch: %w", err)
	}
	var res cratespro.ScanResult
	if err := json.Unmarshal(m.Value, &res); err != nil || res.ID == "" || res.Tool == "" {
		zlog.Warn(ctx).
			Int64("offset", m.Offset).
			Err(err).
			Msg("skipping malformed scan result")
		if err := rc.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("analysis: committing poison result: %w", err)
		}
		return nil
	}
	if err := rc.store.StoreResult(ctx, &res); err != nil {
		zlog.Error(ctx).Str("id", res.ID).Err(err).Msg("storing scan result failed, will retry")
		return nil
	}
	if err := rc.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("analysis: commit: %w", err)
	}
	return nil
}

// Run consumes results until ctx is cancelled.
func (rc *ResultConsumer) Run(ctx context.Context) error {
	for {
		if err := rc.ProcessOne(ctx); err != nil {
			return err
		}
	}
}

// Close shuts the reader down.
func (rc *ResultConsumer) Close() error { return rc.reader.Close() }
