package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type jobDataKey struct{}

// JobData identifies the job execution a context belongs to, so lower layers
// (the AI client's call ledger in particular) can attribute work without
// threading ids through every signature.
type JobData struct {
	JobID uuid.UUID
	Stage string
}

func WithJobData(ctx context.Context, jd *JobData) context.Context {
	return context.WithValue(ctx, jobDataKey{}, jd)
}

func GetJobData(ctx context.Context) *JobData {
	if ctx == nil {
		return nil
	}
	val := ctx.Value(jobDataKey{})
	if jd, ok := val.(*JobData); ok {
		return jd
	}
	return nil
}
