package async

import (
	"context"
	"time"
)

// Job is one document waiting to be processed.
type Job struct {
	Path        string
	Force       bool // process even if the content was seen before
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. The context carries the per-job timeout.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
