package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var correctionColumns = []string{
	"id", "kind", "invoice_text", "original", "corrected", "user_confidence", "document",
	"changes", "source_identity", "identity", "pattern_key", "line_item_id",
	"matching_history_id", "created_at", "seq",
}

// CorrectionRepository stores correction history. Rows are never updated.
// Each insert takes the next seq so replay order does not depend on clock
// resolution or on random ids.
type CorrectionRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCorrectionRepository(db *DB, logger *slog.Logger) *CorrectionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrectionRepository{db: db, logger: logger}
}

func (r *CorrectionRepository) CreateCorrection(ctx context.Context, rec entity.CorrectionRecord) error {
	blobs, err := marshalAll(rec.Original, rec.Corrected, rec.UserConfidence, rec.Document, rec.Changes)
	if err != nil {
		return err
	}
	err = r.db.inTx(ctx, func(tx dialect.Tx) error {
		seq, err := r.nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		st := entsql.Dialect(r.db.Dialect()).
			Insert(tableCorrections).
			Columns(correctionColumns...).
			Values(
				rec.ID, string(rec.Kind), rec.InvoiceText,
				blobs[0], blobs[1], blobs[2], blobs[3], blobs[4],
				rec.SourceIdentity, rec.Identity, rec.PatternKey,
				nullUUID(rec.LineItemID), nullUUID(rec.MatchingHistoryID),
				rec.CreatedAt.UTC(), seq,
			)
		_, err = exec(ctx, tx, st)
		return err
	})
	if err != nil {
		r.logger.Error("failed to insert correction record", "id", rec.ID, "error", err)
		return dbError("insert correction record", err)
	}
	return nil
}

func (r *CorrectionRepository) nextSeq(ctx context.Context, tx dialect.Tx) (int64, error) {
	st := entsql.Dialect(r.db.Dialect()).
		Select(entsql.Max("seq")).
		From(entsql.Table(tableCorrections))
	var last sql.NullInt64
	err := each(ctx, tx, st, func(rows *entsql.Rows) error {
		return rows.Scan(&last)
	})
	if err != nil {
		return 0, err
	}
	return last.Int64 + 1, nil
}

// ListRecentCorrections returns at most limit records, newest first.
func (r *CorrectionRepository) ListRecentCorrections(ctx context.Context, limit int) ([]entity.CorrectionRecord, error) {
	st := entsql.Dialect(r.db.Dialect()).
		Select(correctionColumns...).
		From(entsql.Table(tableCorrections)).
		OrderBy(entsql.Desc("seq"), entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit)

	var out []entity.CorrectionRecord
	err := each(ctx, r.db.drv, st, func(rows *entsql.Rows) error {
		var (
			rec                           entity.CorrectionRecord
			kind                          string
			orig, cor, conf, doc, changes []byte
			lineItem, history             uuid.NullUUID
			createdAt                     time.Time
		)
		if err := rows.Scan(
			&rec.ID, &kind, &rec.InvoiceText, &orig, &cor, &conf, &doc, &changes,
			&rec.SourceIdentity, &rec.Identity, &rec.PatternKey, &lineItem, &history, &createdAt, &rec.Seq,
		); err != nil {
			return err
		}
		if err := unmarshalAll([][]byte{orig, cor, conf, doc, changes},
			&rec.Original, &rec.Corrected, &rec.UserConfidence, &rec.Document, &rec.Changes); err != nil {
			return err
		}
		rec.Kind = constants.RecordKind(kind)
		rec.LineItemID = uuidPtr(lineItem)
		rec.MatchingHistoryID = uuidPtr(history)
		rec.CreatedAt = createdAt.UTC()
		out = append(out, rec)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list correction records", "error", err)
		return nil, dbError("list correction records", err)
	}
	return out, nil
}

func marshalAll(vals ...any) ([]string, error) {
	out := make([]string, len(vals))
	for i, v := range vals {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func unmarshalAll(blobs [][]byte, dst ...any) error {
	for i, b := range blobs {
		if len(b) == 0 || string(b) == "null" {
			continue
		}
		if err := json.Unmarshal(b, dst[i]); err != nil {
			return err
		}
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
