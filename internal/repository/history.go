package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var historyColumns = []string{
	"id", "line_item_id", "source_identity", "field", "pattern_key", "suggested_value",
	"confidence", "status", "corrected_value", "created_at", "resolved_at",
}

// HistoryRepository tracks suggestions applied to line items.
type HistoryRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewHistoryRepository(db *DB, logger *slog.Logger) *HistoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRepository{db: db, logger: logger}
}

func (r *HistoryRepository) CreateMatch(ctx context.Context, h entity.MatchingHistory) error {
	var resolved sql.NullTime
	if h.ResolvedAt != nil {
		resolved = sql.NullTime{Time: h.ResolvedAt.UTC(), Valid: true}
	}
	st := entsql.Dialect(r.db.Dialect()).
		Insert(tableHistory).
		Columns(historyColumns...).
		Values(
			h.ID, h.LineItemID, h.SourceIdentity, h.Field, h.PatternKey, h.SuggestedValue,
			h.Confidence, string(h.Status), h.CorrectedValue, h.CreatedAt.UTC(), resolved,
		)
	if _, err := exec(ctx, r.db.drv, st); err != nil {
		r.logger.Error("failed to insert matching history", "id", h.ID, "error", err)
		return dbError("insert matching history", err)
	}
	return nil
}

func (r *HistoryRepository) GetMatch(ctx context.Context, id uuid.UUID) (entity.MatchingHistory, error) {
	out, err := r.list(ctx, entsql.EQ("id", id))
	if err != nil {
		return entity.MatchingHistory{}, err
	}
	if len(out) == 0 {
		return entity.MatchingHistory{}, common.NotFound("matching history %s not found", id)
	}
	return out[0], nil
}

// ListMatches returns the history of one line item, oldest first.
func (r *HistoryRepository) ListMatches(ctx context.Context, lineItemID uuid.UUID) ([]entity.MatchingHistory, error) {
	return r.list(ctx, entsql.EQ("line_item_id", lineItemID))
}

// ResolveMatch moves a SUGGESTED entry to its final status. The update is
// conditional on the current status, so of several concurrent resolves of one
// entry exactly one succeeds; the others get a validation error.
func (r *HistoryRepository) ResolveMatch(ctx context.Context, id uuid.UUID, status constants.MatchStatus, correctedValue string, at time.Time) error {
	st := entsql.Dialect(r.db.Dialect()).
		Update(tableHistory).
		Set("status", string(status)).
		Set("corrected_value", correctedValue).
		Set("resolved_at", at.UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.MatchStatusSuggested)),
		))
	n, err := exec(ctx, r.db.drv, st)
	if err != nil {
		r.logger.Error("failed to resolve matching history", "id", id, "error", err)
		return dbError("resolve matching history", err)
	}
	if n > 0 {
		return nil
	}
	cur, err := r.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	return common.Validation("matching history entry is already " + strings.ToLower(string(cur.Status)))
}

func (r *HistoryRepository) list(ctx context.Context, where *entsql.Predicate) ([]entity.MatchingHistory, error) {
	st := entsql.Dialect(r.db.Dialect()).
		Select(historyColumns...).
		From(entsql.Table(tableHistory)).
		Where(where).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))

	var out []entity.MatchingHistory
	err := each(ctx, r.db.drv, st, func(rows *entsql.Rows) error {
		var (
			h        entity.MatchingHistory
			status   string
			created  time.Time
			resolved sql.NullTime
		)
		if err := rows.Scan(
			&h.ID, &h.LineItemID, &h.SourceIdentity, &h.Field, &h.PatternKey, &h.SuggestedValue,
			&h.Confidence, &status, &h.CorrectedValue, &created, &resolved,
		); err != nil {
			return err
		}
		h.Status = constants.MatchStatus(status)
		h.CreatedAt = created.UTC()
		if resolved.Valid {
			t := resolved.Time.UTC()
			h.ResolvedAt = &t
		}
		out = append(out, h)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list matching history", "error", err)
		return nil, dbError("list matching history", err)
	}
	return out, nil
}
