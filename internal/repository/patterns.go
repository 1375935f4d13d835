package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var patternColumns = []string{
	"field", "value", "matcher_kind", "matcher_expr", "confidence", "examples",
	"sub_category", "reinforcements", "created_at", "last_reinforced_at",
}

// PatternRepository persists learned patterns as (field, value, matcher,
// confidence, examples) tuples.
type PatternRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPatternRepository(db *DB, logger *slog.Logger) *PatternRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternRepository{db: db, logger: logger}
}

func (r *PatternRepository) insert(p entity.LearnedPattern) (*entsql.InsertBuilder, error) {
	examples, err := json.Marshal(p.Examples)
	if err != nil {
		return nil, err
	}
	return entsql.Dialect(r.db.Dialect()).
		Insert(tablePatterns).
		Columns(patternColumns...).
		Values(
			p.Key.Field, p.Key.Value, string(p.MatcherKind), p.MatcherExpr, p.Confidence,
			string(examples), p.SubCategory, p.Reinforcements,
			p.CreatedAt.UTC(), p.LastReinforcedAt.UTC(),
		), nil
}

func (r *PatternRepository) UpsertPattern(ctx context.Context, p entity.LearnedPattern) error {
	ins, err := r.insert(p)
	if err != nil {
		return err
	}
	ins.OnConflict(entsql.ConflictColumns("field", "value"), entsql.ResolveWithNewValues())
	if _, err := exec(ctx, r.db.drv, ins); err != nil {
		r.logger.Error("failed to upsert pattern", "key", p.Key.String(), "error", err)
		return dbError("upsert pattern", err)
	}
	return nil
}

// ReplacePatterns swaps the whole persisted index in one transaction.
func (r *PatternRepository) ReplacePatterns(ctx context.Context, ps []entity.LearnedPattern) error {
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		if _, err := exec(ctx, tx, entsql.Dialect(r.db.Dialect()).Delete(tablePatterns)); err != nil {
			return err
		}
		for _, p := range ps {
			ins, err := r.insert(p)
			if err != nil {
				return err
			}
			if _, err := exec(ctx, tx, ins); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to replace patterns", "count", len(ps), "error", err)
		return dbError("replace patterns", err)
	}
	return nil
}

func (r *PatternRepository) ListPatterns(ctx context.Context) ([]entity.LearnedPattern, error) {
	st := entsql.Dialect(r.db.Dialect()).
		Select(patternColumns...).
		From(entsql.Table(tablePatterns)).
		OrderBy(entsql.Asc("field"), entsql.Asc("value"))

	var out []entity.LearnedPattern
	err := each(ctx, r.db.drv, st, func(rows *entsql.Rows) error {
		var (
			p                 entity.LearnedPattern
			kind              string
			examples          []byte
			created, lastSeen time.Time
		)
		if err := rows.Scan(
			&p.Key.Field, &p.Key.Value, &kind, &p.MatcherExpr, &p.Confidence, &examples,
			&p.SubCategory, &p.Reinforcements, &created, &lastSeen,
		); err != nil {
			return err
		}
		if err := json.Unmarshal(examples, &p.Examples); err != nil {
			return err
		}
		p.MatcherKind = entity.MatcherKind(kind)
		p.CreatedAt = created.UTC()
		p.LastReinforcedAt = lastSeen.UTC()
		out = append(out, p)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list patterns", "error", err)
		return nil, dbError("list patterns", err)
	}
	return out, nil
}
