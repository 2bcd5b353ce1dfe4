package taskqueue

import (
	"context"

	"github.com/google/uuid"
)

// Invocation is the message placed on the queue: "run step Step for job
// JobID". Delivery is at-least-once; consumers must treat duplicates as
// no-ops.
type Invocation struct {
	JobID   uuid.UUID `json:"job_id"`
	Step    int       `json:"step"`
	Attempt int       `json:"attempt,omitempty"`
}

// Queue accepts step invocations for asynchronous delivery to the worker
// endpoint. Enqueue failures surface synchronously to the caller, who must
// treat the job as stalled and record a failure rather than dropping the
// step silently.
type Queue interface {
	Enqueue(ctx context.Context, inv Invocation) error
}
