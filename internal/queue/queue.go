// Package queue is the durable channel between send admission and delivery.
// Delivery is at-least-once, a job that is not finished within the broker's
// visibility timeout becomes eligible for redelivery, so consumers must be
// idempotent.
package queue

import (
	"context"
	"time"

	"github.com/modfin/kuvert/pkg/zid"
)

// Job is the ephemeral payload between enqueue and consume. It exists only
// on the queue, the durable state lives in the corresponding send record.
type Job struct {
	SendId     zid.ID            `json:"send_id"`
	ProjectId  string            `json:"project_id"`
	TemplateId string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Variables  map[string]string `json:"variables"`

	Attempt     int       `json:"attempt"`
	PublishedAt time.Time `json:"published_at"`
}

// Handle acknowledges or defers a consumed job. Exactly one of Finish or
// Requeue should be called per delivery, Touch extends the visibility window
// of a long-running attempt.
type Handle interface {
	Finish()
	Requeue(delay time.Duration)
	Touch()
}

type Handler func(job Job, h Handle)

type Queue interface {
	// Publish enqueues a job and does not return until the broker has
	// durably acknowledged it.
	Publish(ctx context.Context, job Job) error

	// Consume registers the handler and starts delivering jobs on
	// concurrency goroutines. It may only be called once.
	Consume(handler Handler, concurrency int) error

	Stop(ctx context.Context) error
}
