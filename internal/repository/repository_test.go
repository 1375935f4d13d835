package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/learning"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func sampleInvoice() *entity.Invoice {
	return &entity.Invoice{
		InvoiceNumber: "INV-2024-001",
		IssueDate:     "2024-03-15",
		VendorName:    "ACME Construction Supplies",
		VendorTaxID:   "12-3456789",
		Currency:      "USD",
		Total:         decimal.RequireFromString("379.08"),
		Tax:           decimal.RequireFromString("28.08"),
		LineItems: []entity.LineItem{
			entity.NewLineItem("Steel beams", decimal.NewFromInt(2), decimal.RequireFromString("125.50"), "MATERIAL"),
			entity.NewLineItem("Crane hire", decimal.NewFromInt(1), decimal.RequireFromString("100"), ""),
		},
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/x.db")
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")

	custom := sqliteDSN("file:y.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10)&_time_format=sqlite")
	assert.Equal(t, "file:y.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10)&_time_format=sqlite", custom)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.KindOf(err))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestInvoiceRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(openTestDB(t), nil)

	inv := sampleInvoice()
	require.NoError(t, repo.CreateInvoice(ctx, inv, InvoiceMeta{
		RunID:      "run-1",
		FileName:   "acme.pdf",
		Strategy:   "text-first",
		Confidence: 0.95,
		TotalCost:  decimal.RequireFromString("0.0012"),
	}))
	require.NotEqual(t, uuid.Nil, inv.ID)
	for i, li := range inv.LineItems {
		assert.NotEqual(t, uuid.Nil, li.ID)
		assert.Equal(t, inv.ID, li.InvoiceID)
		assert.Equal(t, i, li.Position)
	}

	got, err := repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", got.InvoiceNumber)
	assert.Equal(t, "2024-03-15", got.IssueDate)
	assert.True(t, got.Total.Equal(inv.Total))
	assert.True(t, got.Tax.Equal(inv.Tax))
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, "Steel beams", got.LineItems[0].Description)
	assert.Equal(t, "251.00", got.LineItems[0].LineTotal.StringFixed(2))
	assert.Equal(t, "MATERIAL", got.LineItems[0].Category)
	assert.Equal(t, "Crane hire", got.LineItems[1].Description)

	li, err := repo.GetLineItem(ctx, inv.LineItems[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "", li.Category)

	require.NoError(t, repo.UpdateLineItemCategory(ctx, li.ID, "EQUIPMENT", "crane", "pattern:category:EQUIPMENT"))
	li, err = repo.GetLineItem(ctx, li.ID)
	require.NoError(t, err)
	assert.Equal(t, "EQUIPMENT", li.Category)
	assert.Equal(t, "crane", li.SubCategory)
	assert.Equal(t, "pattern:category:EQUIPMENT", li.SuggestedBy)
}

func TestInvoiceRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(openTestDB(t), nil)

	_, err := repo.GetInvoice(ctx, uuid.New())
	assert.Equal(t, common.CodeNotFound, common.KindOf(err))

	_, err = repo.GetLineItem(ctx, uuid.New())
	assert.Equal(t, common.CodeNotFound, common.KindOf(err))

	err = repo.UpdateLineItemCategory(ctx, uuid.New(), "LABOR", "", "")
	assert.Equal(t, common.CodeNotFound, common.KindOf(err))
}

func TestCorrectionRepository_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewCorrectionRepository(openTestDB(t), nil)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lineID := uuid.New()
	for i := 0; i < 3; i++ {
		rec := entity.CorrectionRecord{
			ID:             uuid.New(),
			Kind:           constants.RecordKindCorrection,
			InvoiceText:    "Invoice text",
			Original:       entity.FieldSet{VendorName: "ACME"},
			Corrected:      entity.FieldSet{VendorName: "Acme Ltd"},
			UserConfidence: map[string]float64{"vendorName": 0.9},
			Document:       entity.DocumentMetadata{FileName: "a.pdf", PageCount: 1},
			SourceIdentity: "ACME",
			Identity:       "alice",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			rec.Kind = constants.RecordKindMapping
			rec.LineItemID = &lineID
			rec.Changes = []entity.FieldChange{{
				Field: entity.FieldCategory, Corrected: "LABOR", Description: "Crew", Amount: decimal.NewFromInt(80),
			}}
		}
		require.NoError(t, repo.CreateCorrection(ctx, rec))
	}

	recs, err := repo.ListRecentCorrections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, base.Add(2*time.Minute).Equal(recs[0].CreatedAt))
	assert.True(t, base.Add(time.Minute).Equal(recs[1].CreatedAt))

	newest := recs[0]
	assert.Equal(t, constants.RecordKindMapping, newest.Kind)
	require.NotNil(t, newest.LineItemID)
	assert.Equal(t, lineID, *newest.LineItemID)
	assert.Nil(t, newest.MatchingHistoryID)
	require.Len(t, newest.Changes, 1)
	assert.True(t, decimal.NewFromInt(80).Equal(newest.Changes[0].Amount))

	assert.Equal(t, "Acme Ltd", recs[1].Corrected.VendorName)
	assert.Equal(t, 0.9, recs[1].UserConfidence["vendorName"])
	assert.Equal(t, "a.pdf", recs[1].Document.FileName)
}

func TestCorrectionRepository_SameTimeKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewCorrectionRepository(openTestDB(t), nil)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := entity.CorrectionRecord{
			ID:        uuid.New(),
			Kind:      constants.RecordKindConfirmation,
			Identity:  "alice",
			CreatedAt: at,
		}
		require.NoError(t, repo.CreateCorrection(ctx, rec))
		ids = append(ids, rec.ID)
	}

	recs, err := repo.ListRecentCorrections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for i, rec := range recs {
		assert.Equal(t, ids[len(ids)-1-i], rec.ID)
		assert.Equal(t, int64(len(ids)-i), rec.Seq)
	}
}

func TestPatternRepository_UpsertAndReplace(t *testing.T) {
	ctx := context.Background()
	repo := NewPatternRepository(openTestDB(t), nil)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	p := entity.LearnedPattern{
		Key:              entity.PatternKey{Field: entity.FieldCategory, Value: "LABOR"},
		MatcherKind:      entity.MatcherLiteral,
		MatcherExpr:      "LABOR",
		Confidence:       0.7,
		Examples:         []entity.Example{{SourceIdentity: "ACME", Description: "Crew", Amount: decimal.NewFromInt(80)}},
		Reinforcements:   1,
		CreatedAt:        at,
		LastReinforcedAt: at,
	}
	require.NoError(t, repo.UpsertPattern(ctx, p))

	p.Confidence = 0.8
	p.Reinforcements = 2
	p.LastReinforcedAt = at.Add(time.Hour)
	require.NoError(t, repo.UpsertPattern(ctx, p))

	got, err := repo.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.8, got[0].Confidence)
	assert.Equal(t, 2, got[0].Reinforcements)
	assert.True(t, at.Add(time.Hour).Equal(got[0].LastReinforcedAt))
	require.Len(t, got[0].Examples, 1)
	assert.Equal(t, "Crew", got[0].Examples[0].Description)

	other := p
	other.Key = entity.PatternKey{Field: entity.FieldTotal, Value: "100.00"}
	other.MatcherKind = entity.MatcherNumericTemplate
	other.MatcherExpr = "###.##"
	require.NoError(t, repo.ReplacePatterns(ctx, []entity.LearnedPattern{other}))

	got, err = repo.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.Key, got[0].Key)
	assert.Equal(t, entity.MatcherNumericTemplate, got[0].MatcherKind)

	require.NoError(t, repo.ReplacePatterns(ctx, nil))
	got, err = repo.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(openTestDB(t), nil)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	h := entity.MatchingHistory{
		ID:             uuid.New(),
		LineItemID:     uuid.New(),
		SourceIdentity: "ACME",
		Field:          entity.FieldCategory,
		PatternKey:     "category:LABOR",
		SuggestedValue: "LABOR",
		Confidence:     0.8,
		Status:         constants.MatchStatusSuggested,
		CreatedAt:      at,
	}
	require.NoError(t, repo.CreateMatch(ctx, h))

	got, err := repo.GetMatch(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MatchStatusSuggested, got.Status)
	assert.Nil(t, got.ResolvedAt)

	require.NoError(t, repo.ResolveMatch(ctx, h.ID, constants.MatchStatusCorrected, "EQUIPMENT", at.Add(time.Minute)))
	got, err = repo.GetMatch(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MatchStatusCorrected, got.Status)
	assert.Equal(t, "EQUIPMENT", got.CorrectedValue)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, at.Add(time.Minute).Equal(*got.ResolvedAt))

	err = repo.ResolveMatch(ctx, h.ID, constants.MatchStatusConfirmed, "", at.Add(2*time.Minute))
	assert.Equal(t, common.CodeValidation, common.KindOf(err))
	got, err = repo.GetMatch(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MatchStatusCorrected, got.Status)

	list, err := repo.ListMatches(ctx, h.LineItemID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetMatch(ctx, uuid.New())
	assert.Equal(t, common.CodeNotFound, common.KindOf(err))
	err = repo.ResolveMatch(ctx, uuid.New(), constants.MatchStatusConfirmed, "", at)
	assert.Equal(t, common.CodeNotFound, common.KindOf(err))
}

func TestLearningEngine_SQLiteBackedRebuild(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	invoices := NewInvoiceRepository(db, nil)
	repos := learning.Repositories{
		Corrections: NewCorrectionRepository(db, nil),
		Patterns:    NewPatternRepository(db, nil),
		LineItems:   invoices,
		History:     NewHistoryRepository(db, nil),
	}

	inv := sampleInvoice()
	require.NoError(t, invoices.CreateInvoice(ctx, inv, InvoiceMeta{RunID: "run-1"}))

	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	engine := learning.NewEngine(repos, nil, learning.WithClock(tick))

	for i, amt := range []string{"251.00", "260.00", "275.00"} {
		_, err := engine.LearnFromMapping(ctx, learning.MappingRequest{
			LineItemRef:     inv.LineItems[0].ID.String(),
			SourceIdentity:  "ACME",
			DescriptionText: "Steel beams",
			Amount:          amt,
			TargetCategory:  "labor",
		})
		require.NoError(t, err, "mapping %d", i)
	}
	live := engine.Store().Snapshot()
	require.Len(t, live, 1)
	assert.Equal(t, 0.9, live[0].Confidence)

	li, err := invoices.GetLineItem(ctx, inv.LineItems[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "LABOR", li.Category)

	stats, err := learning.NewAggregator(engine, 0, nil).RebuildPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 1, stats.PatternsProduced)
	assertSamePatterns(t, live, engine.Store().Snapshot())

	warm := learning.NewEngine(repos, nil)
	n, err := warm.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertSamePatterns(t, live, warm.Store().Snapshot())

	sugg := warm.GetSuggestions(ctx, "ACME", "Steel beams", decimal.NewFromInt(300))
	require.NotEmpty(t, sugg)
	assert.Equal(t, "category:LABOR", sugg[0].PatternKey)

	h, err := warm.RecordMatch(ctx, inv.LineItems[1].ID, "ACME", sugg[0])
	require.NoError(t, err)
	_, err = warm.ConfirmMatch(ctx, h.ID.String())
	require.NoError(t, err)

	got, err := repos.History.GetMatch(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MatchStatusConfirmed, got.Status)
}

func assertSamePatterns(t *testing.T, want, got []entity.LearnedPattern) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Key, g.Key)
		assert.Equal(t, w.MatcherKind, g.MatcherKind)
		assert.Equal(t, w.MatcherExpr, g.MatcherExpr)
		assert.Equal(t, w.Confidence, g.Confidence)
		assert.Equal(t, w.Reinforcements, g.Reinforcements)
		assert.True(t, w.LastReinforcedAt.Equal(g.LastReinforcedAt))
		require.Len(t, g.Examples, len(w.Examples))
		for j := range w.Examples {
			assert.Equal(t, w.Examples[j].Description, g.Examples[j].Description)
			assert.True(t, w.Examples[j].Amount.Equal(g.Examples[j].Amount))
		}
	}
}
