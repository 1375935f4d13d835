package learning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// CorrectionRepository is the append-only correction history.
type CorrectionRepository interface {
	CreateCorrection(ctx context.Context, rec entity.CorrectionRecord) error
	// ListRecentCorrections returns at most limit records, newest first.
	ListRecentCorrections(ctx context.Context, limit int) ([]entity.CorrectionRecord, error)
}

// PatternRepository persists the pattern index as tuples.
type PatternRepository interface {
	UpsertPattern(ctx context.Context, p entity.LearnedPattern) error
	ReplacePatterns(ctx context.Context, ps []entity.LearnedPattern) error
	ListPatterns(ctx context.Context) ([]entity.LearnedPattern, error)
}

// LineItemRepository reads and re-categorizes stored line items.
// Missing rows are reported as common.NotFound.
type LineItemRepository interface {
	GetLineItem(ctx context.Context, id uuid.UUID) (entity.LineItem, error)
	UpdateLineItemCategory(ctx context.Context, id uuid.UUID, category, subCategory, suggestedBy string) error
}

// MatchHistoryRepository tracks applied suggestions through review.
type MatchHistoryRepository interface {
	CreateMatch(ctx context.Context, h entity.MatchingHistory) error
	GetMatch(ctx context.Context, id uuid.UUID) (entity.MatchingHistory, error)
	ResolveMatch(ctx context.Context, id uuid.UUID, status constants.MatchStatus, correctedValue string, at time.Time) error
}

// Repositories bundles the engine's storage collaborators.
type Repositories struct {
	Corrections CorrectionRepository
	Patterns    PatternRepository
	LineItems   LineItemRepository
	History     MatchHistoryRepository
}
