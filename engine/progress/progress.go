// Package progress is the Progress Channel (spec §4.8): a best-effort,
// two-step publish of job status — first into a NATS JetStream KV bucket
// (the stand-in for the original Redis status hash so a late subscriber can
// still poll current state), then as a fire-and-forget event on a
// per-job subject for live subscribers. Publish never blocks ingestion or
// visualization work on a slow or absent subscriber.
package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/flightdv/corepipeline/engine/domain"
)

const bucketName = "job_status"

// Channel publishes job progress to both the KV status bucket and the
// live event subject. New returns a nil Channel together with an error on
// JetStream setup failure; Channel's methods do not accept a nil receiver.
type Channel struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// New creates (or attaches to) the job_status KV bucket on nc. Errors
// creating the bucket are returned so the caller can log and fall back to
// publish-only behavior via NewEventsOnly.
func New(ctx context.Context, nc *nats.Conn) (*Channel, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("progress: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("progress: key value bucket: %w", err)
	}
	return &Channel{kv: kv, nc: nc}, nil
}

// NewEventsOnly builds a Channel that only publishes live events, skipping
// the KV hash. Used when JetStream is unavailable but core pub/sub is not.
func NewEventsOnly(nc *nats.Conn) *Channel {
	return &Channel{nc: nc}
}

func subject(jobID string) string {
	return "jobs.progress." + jobID
}

// Publish records the job's current status in the KV bucket (if present)
// and broadcasts a ProgressEvent on the job's subject. Both steps are
// best-effort: a KV or publish error is returned to the caller to log, but
// the caller's own operation must not fail because progress reporting did.
func (c *Channel) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var firstErr error
	if c.kv != nil {
		if _, err := c.kv.Put(ctx, ev.JobID, data); err != nil {
			firstErr = fmt.Errorf("progress: kv put: %w", err)
		}
	}
	if c.nc != nil {
		if err := c.nc.Publish(subject(ev.JobID), data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("progress: publish: %w", err)
		}
	}
	return firstErr
}

// Current returns the last known status for jobID from the KV bucket.
// Returns ErrNotFound-compatible error when no status has been recorded,
// or when the Channel was built without a KV bucket.
func (c *Channel) Current(ctx context.Context, jobID string) (domain.ProgressEvent, error) {
	var zero domain.ProgressEvent
	if c.kv == nil {
		return zero, domain.ErrNotFound
	}
	entry, err := c.kv.Get(ctx, jobID)
	if err != nil {
		return zero, fmt.Errorf("%w: %s", domain.ErrNotFound, jobID)
	}
	var ev domain.ProgressEvent
	if err := json.Unmarshal(entry.Value(), &ev); err != nil {
		return zero, err
	}
	return ev, nil
}

// Subscribe streams live progress events for jobID until ctx is canceled.
func (c *Channel) Subscribe(ctx context.Context, jobID string, handler func(domain.ProgressEvent)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject(jobID), func(msg *nats.Msg) {
		var ev domain.ProgressEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}
