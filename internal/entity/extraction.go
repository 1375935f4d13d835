package entity

import (
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
)

// ExtractionAttempt records one provider invocation. Immutable once appended.
type ExtractionAttempt struct {
	Strategy   string                   `json:"strategy"`
	Provider   string                   `json:"provider"`
	Position   int                      `json:"position"`
	Outcome    constants.AttemptOutcome `json:"outcome"`
	Confidence float64                  `json:"confidence"`
	Cost       decimal.Decimal          `json:"cost"`
	ElapsedMS  int64                    `json:"elapsedMs"`
	Error      string                   `json:"error,omitempty"`
}

// Failure is the structured error carried by failed results.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExtractionResult is the terminal outcome of one orchestration run.
type ExtractionResult struct {
	RunID      string              `json:"runId"`
	Status     constants.RunStatus `json:"status"`
	Success    bool                `json:"success"`
	Strategy   string              `json:"strategy"`
	Confidence float64             `json:"confidence"`
	TotalCost  decimal.Decimal     `json:"totalCost"`
	Attempts   []ExtractionAttempt `json:"attempts"`
	Invoice    *Invoice            `json:"invoice,omitempty"`
	Error      *Failure            `json:"error,omitempty"`
}

// SumCost adds up the cost of every recorded attempt.
func SumCost(attempts []ExtractionAttempt) decimal.Decimal {
	total := decimal.Zero
	for _, a := range attempts {
		total = total.Add(a.Cost)
	}
	return total
}
