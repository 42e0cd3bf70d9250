package visualize

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/flightdv/corepipeline/pkg/natsutil"
)

const (
	// JobSubject is the NATS subject workers subscribe to for queued
	// visualization jobs.
	JobSubject = "visualize.jobs"
	// DLQSubject is the dead letter queue subject for jobs that exhausted
	// their retry budget.
	DLQSubject = "visualize.jobs.dlq"
	// MaxRetries before a job is sent to the DLQ instead of redelivered.
	MaxRetries = 3
)

type jobMessage struct {
	VizID   string `json:"viz_id"`
	Retries int    `json:"retries"`
}

type dlqMessage struct {
	VizID   string `json:"viz_id"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to JobSubject and drives Run for each incoming
// visualization job id, redelivering on failure up to MaxRetries before
// routing to the DLQ (mirrors engine/ingest.StartConsumer).
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	log := logger(deps)

	return natsutil.Subscribe(nc, JobSubject, func(ctx context.Context, m jobMessage) {
		if err := Run(ctx, deps, m.VizID); err != nil {
			retries := m.Retries + 1
			log.Error("visualize: job run failed", "job_id", m.VizID, "error", err, "retry", retries)

			if retries >= MaxRetries {
				if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlqMessage{VizID: m.VizID, Error: err.Error(), Retries: retries}); pubErr != nil {
					log.Error("visualize: DLQ publish failed", "error", pubErr)
				}
				return
			}
			if pubErr := natsutil.Publish(ctx, nc, JobSubject, jobMessage{VizID: m.VizID, Retries: retries}); pubErr != nil {
				log.Error("visualize: retry publish failed", "error", pubErr)
			}
		}
	})
}
