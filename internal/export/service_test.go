package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

type stubSource struct {
	patterns []entity.LearnedPattern
	recs     []entity.CorrectionRecord
	err      error
	limit    int
}

func (s *stubSource) ListPatterns(context.Context) ([]entity.LearnedPattern, error) {
	return s.patterns, s.err
}

func (s *stubSource) ListRecentCorrections(_ context.Context, limit int) ([]entity.CorrectionRecord, error) {
	s.limit = limit
	return s.recs, nil
}

func TestExportLearningXLSX(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &stubSource{
		patterns: []entity.LearnedPattern{
			{
				Key:         entity.PatternKey{Field: entity.FieldCategory, Value: "MATERIAL"},
				MatcherKind: entity.MatcherLiteral, MatcherExpr: "MATERIAL",
				Confidence: 0.7, Reinforcements: 1, CreatedAt: at, LastReinforcedAt: at,
			},
			{
				Key:         entity.PatternKey{Field: entity.FieldCategory, Value: "LABOR"},
				MatcherKind: entity.MatcherLiteral, MatcherExpr: "LABOR",
				Confidence: 0.9, Reinforcements: 3, CreatedAt: at, LastReinforcedAt: at,
				Examples: []entity.Example{{Description: "Steel beams", Amount: decimal.NewFromInt(800)}},
			},
		},
		recs: []entity.CorrectionRecord{
			{
				Kind: constants.RecordKindMapping, Identity: "alice", SourceIdentity: "ACME", CreatedAt: at,
				Changes: []entity.FieldChange{{Field: entity.FieldCategory, Original: "MATERIAL", Corrected: "LABOR", Description: "Steel beams", Amount: decimal.NewFromInt(800)}},
			},
			{Kind: constants.RecordKindConfirmation, Identity: "bob", PatternKey: "category:LABOR", CreatedAt: at.Add(-time.Hour)},
			{Kind: constants.RecordKindConfirmation, Identity: "old", CreatedAt: at.Add(-48 * time.Hour)},
		},
	}

	since := at.Add(-24 * time.Hour)
	out, err := NewService(src, src, nil).ExportLearningXLSX(context.Background(), Options{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, DefaultCorrectionLimit, src.limit)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetPatterns, SheetCorrections}, f.GetSheetList())

	rows, err := f.GetRows(SheetPatterns)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Field", rows[0][0])
	assert.Equal(t, "LABOR", rows[1][1], "highest confidence first")
	assert.Equal(t, "Steel beams (800.00)", rows[1][6])
	assert.Equal(t, "MATERIAL", rows[2][1])

	rows, err = f.GetRows(SheetCorrections)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "MAPPING", rows[1][1])
	assert.Equal(t, "LABOR", rows[1][6])
	assert.Equal(t, "800.00", rows[1][8])
	assert.Equal(t, "CONFIRMATION", rows[2][1])
	assert.Equal(t, "category:LABOR", rows[2][9])
}

func TestExportLearningXLSX_SourceError(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	_, err := NewService(src, src, nil).ExportLearningXLSX(context.Background(), Options{})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
