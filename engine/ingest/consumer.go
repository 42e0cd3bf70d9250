package ingest

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/flightdv/corepipeline/pkg/natsutil"
)

const (
	// JobSubject is the NATS subject workers subscribe to for queued
	// ingestion jobs.
	JobSubject = "ingest.jobs"
	// DLQSubject is the dead letter queue subject for jobs that exhausted
	// their retry budget.
	DLQSubject = "ingest.jobs.dlq"
	// MaxRetries before a job is sent to the DLQ instead of redelivered.
	MaxRetries = 3
)

// jobMessage is the payload published on JobSubject, round-tripped through
// natsutil so trace context rides along in NATS headers (spec §4.1 "every
// coordinator run opens a span parented from the queue message headers").
type jobMessage struct {
	JobID   string `json:"job_id"`
	Retries int    `json:"retries"`
}

// dlqMessage is published to DLQSubject on repeated failure.
type dlqMessage struct {
	JobID   string `json:"job_id"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to JobSubject and drives Run for each incoming
// job id, redelivering on failure up to MaxRetries before routing to the
// DLQ (spec §4.1 "Retry policy": the coordinator itself does not retry;
// the worker runtime redelivers on failure up to a bound).
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	log := logger(deps)

	return natsutil.Subscribe(nc, JobSubject, func(ctx context.Context, m jobMessage) {
		if err := Run(ctx, deps, m.JobID); err != nil {
			retries := m.Retries + 1
			log.Error("ingest: job run failed", "job_id", m.JobID, "error", err, "retry", retries)

			if retries >= MaxRetries {
				if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlqMessage{JobID: m.JobID, Error: err.Error(), Retries: retries}); pubErr != nil {
					log.Error("ingest: DLQ publish failed", "error", pubErr)
				}
				return
			}
			if pubErr := natsutil.Publish(ctx, nc, JobSubject, jobMessage{JobID: m.JobID, Retries: retries}); pubErr != nil {
				log.Error("ingest: retry publish failed", "error", pubErr)
			}
			return
		}
		log.Info("ingest: job succeeded", "job_id", m.JobID)
	})
}
