package pipeline

import (
	"context"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
)

// DocumentLoader reads a file into a raw document and reports whether the
// same content was already loaded from another path.
type DocumentLoader interface {
	Load(path string) (entity.RawDocument, bool, error)
}

// JobHandler runs queued file paths through a Processor.
type JobHandler struct {
	Processor *Processor
	Loader    DocumentLoader
	Parse     extraction.ParseContext
	// OnDone, when set, receives every finished job with its outcome.
	OnDone func(job async.Job, out Outcome, err error)
}

func (h *JobHandler) Handle(ctx context.Context, job async.Job) error {
	log := h.Processor.Logger
	doc, dup, err := h.Loader.Load(job.Path)
	if err != nil {
		err = common.InvalidDocument(err.Error())
		h.done(job, Outcome{}, err)
		return err
	}
	if dup && !job.Force {
		log.Info("pipeline.job.duplicate",
			"req_id", common.RequestIDFromContext(ctx),
			"path", job.Path,
			"file_id", doc.FileID,
		)
		h.done(job, Outcome{}, nil)
		return nil
	}

	out, err := h.Processor.Process(ctx, doc, h.Parse)
	log.Debug("pipeline.job.done",
		"req_id", common.RequestIDFromContext(ctx),
		"path", job.Path,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		"error", err,
	)
	h.done(job, out, err)
	return err
}

func (h *JobHandler) done(job async.Job, out Outcome, err error) {
	if h.OnDone != nil {
		h.OnDone(job, out, err)
	}
}
