package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

type stubLoader struct {
	dup bool
	err error
}

func (s stubLoader) Load(path string) (entity.RawDocument, bool, error) {
	if s.err != nil {
		return entity.RawDocument{}, false, s.err
	}
	return entity.RawDocument{FileID: "sum", FileName: path, Content: []byte("x")}, s.dup, nil
}

func TestJobHandler(t *testing.T) {
	newParser := func() *mockParser {
		p := &mockParser{}
		p.On("ParseInvoice", mock.Anything, "INVOICE INV-1", mock.Anything).Return(entity.ExtractionResult{
			RunID:      "run-1",
			Status:     constants.RunStatusSucceeded,
			Success:    true,
			Confidence: 0.9,
			TotalCost:  decimal.Zero,
			Invoice:    parsedInvoice(),
		}, nil)
		return p
	}
	job := async.Job{Path: "inv.txt", SubmittedAt: time.Now()}

	t.Run("processes and reports", func(t *testing.T) {
		store := &memStore{}
		var got []Outcome
		h := &JobHandler{
			Processor: newTestProcessor(newParser(), store, nil),
			Loader:    stubLoader{},
			OnDone:    func(_ async.Job, out Outcome, _ error) { got = append(got, out) },
		}
		require.NoError(t, h.Handle(context.Background(), job))
		require.Len(t, store.invoices, 1)
		require.Len(t, got, 1)
		assert.NotNil(t, got[0].InvoiceID)
	})

	t.Run("duplicate skipped unless forced", func(t *testing.T) {
		store := &memStore{}
		parser := newParser()
		h := &JobHandler{Processor: newTestProcessor(parser, store, nil), Loader: stubLoader{dup: true}}
		require.NoError(t, h.Handle(context.Background(), job))
		assert.Empty(t, store.invoices)
		parser.AssertNotCalled(t, "ParseInvoice", mock.Anything, mock.Anything, mock.Anything)

		forced := job
		forced.Force = true
		require.NoError(t, h.Handle(context.Background(), forced))
		assert.Len(t, store.invoices, 1)
	})

	t.Run("load error is an invalid document", func(t *testing.T) {
		var gotErr error
		h := &JobHandler{
			Processor: newTestProcessor(newParser(), &memStore{}, nil),
			Loader:    stubLoader{err: errors.New("unsupported or missing extension \".exe\"")},
			OnDone:    func(_ async.Job, _ Outcome, err error) { gotErr = err },
		}
		err := h.Handle(context.Background(), job)
		assert.Equal(t, common.CodeInvalidDocument, common.KindOf(err))
		assert.Equal(t, err, gotErr)
	})
}
