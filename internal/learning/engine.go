// Package learning turns human corrections into confidence-weighted patterns
// and serves category and header suggestions from them.
package learning

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// MappingRequest is an explicit line-item categorization by a user.
type MappingRequest struct {
	LineItemRef     string `json:"lineItemRef"`
	SourceIdentity  string `json:"sourceIdentity"`
	DescriptionText string `json:"descriptionText"`
	Amount          string `json:"amount"`
	TargetCategory  string `json:"targetCategory"`
	SubCategoryRef  string `json:"subCategoryRef,omitempty"`
}

// CorrectionSubmission is a reviewed document coming back from a human.
type CorrectionSubmission struct {
	InvoiceText        string                  `json:"invoiceText"`
	OriginalExtraction *entity.FieldSet        `json:"originalExtraction"`
	CorrectedData      *entity.FieldSet        `json:"correctedData"`
	UserConfidence     map[string]float64      `json:"userConfidence,omitempty"`
	DocumentMetadata   entity.DocumentMetadata `json:"documentMetadata"`
	SourceIdentity     string                  `json:"sourceIdentity,omitempty"`
}

// LearnResult is returned by every learning call.
type LearnResult struct {
	Status   constants.LearnStatus   `json:"status"`
	RecordID uuid.UUID               `json:"recordId"`
	Patterns []entity.LearnedPattern `json:"patterns,omitempty"`
}

type Engine struct {
	// mu is held shared by writers and exclusively by rebuilds.
	mu      sync.RWMutex
	store   atomic.Pointer[Store]
	repos   Repositories
	now     func() time.Time
	metrics *Metrics
	logger  *slog.Logger

	// commitMu orders record inserts with index updates; lastStamp is the
	// previous record time and is guarded by it.
	commitMu  sync.Mutex
	lastStamp time.Time
}

type Option func(*Engine)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repos Repositories, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		repos:   repos,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		metrics: NewMetrics(),
		logger:  logger,
	}
	e.store.Store(NewStore())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the live pattern index.
func (e *Engine) Store() *Store { return e.store.Load() }

// Warm loads persisted pattern tuples into a fresh index.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	if e.repos.Patterns == nil {
		return 0, nil
	}
	ps, err := e.repos.Patterns.ListPatterns(ctx)
	if err != nil {
		return 0, common.WrapError(err, "list patterns")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := NewStore()
	n := st.load(ps)
	e.store.Store(st)
	e.metrics.Patterns.Set(float64(n))
	e.logger.Info("learning.warm.ok", "patterns", n)
	return n, nil
}

// LearnFromMapping records a MAPPING and reinforces the (category, target) pattern.
func (e *Engine) LearnFromMapping(ctx context.Context, req MappingRequest) (LearnResult, error) {
	err := common.NewValidator().
		Field("lineItemRef", req.LineItemRef, common.Required, common.UUID).
		Field("sourceIdentity", req.SourceIdentity, common.Required).
		Field("descriptionText", req.DescriptionText, common.Required).
		Field("amount", req.Amount, common.Required, common.Decimal).
		Field("targetCategory", req.TargetCategory, common.Required).
		Err()
	if err != nil {
		return LearnResult{}, err
	}
	lineID := uuid.MustParse(req.LineItemRef)
	amount := decimal.RequireFromString(strings.TrimSpace(req.Amount))
	target := NormalizeValue(entity.FieldCategory, req.TargetCategory)

	e.mu.RLock()
	defer e.mu.RUnlock()

	item, err := e.repos.LineItems.GetLineItem(ctx, lineID)
	if err != nil {
		return LearnResult{}, err
	}

	rec := entity.CorrectionRecord{
		ID:             uuid.New(),
		Kind:           constants.RecordKindMapping,
		SourceIdentity: strings.TrimSpace(req.SourceIdentity),
		Identity:       common.IdentityFromContext(ctx),
		LineItemID:     &lineID,
		Changes: []entity.FieldChange{{
			Field:       entity.FieldCategory,
			Original:    item.Category,
			Corrected:   target,
			Description: req.DescriptionText,
			Amount:      amount,
			SubCategory: req.SubCategoryRef,
		}},
	}
	if err := e.repos.LineItems.UpdateLineItemCategory(ctx, lineID, target, req.SubCategoryRef, ""); err != nil {
		return LearnResult{}, common.WrapError(err, "update line item")
	}
	patterns, err := e.commit(ctx, rec)
	if err != nil {
		return LearnResult{}, err
	}
	return LearnResult{Status: constants.LearnStatusLearned, RecordID: rec.ID, Patterns: patterns}, nil
}

// ConfirmMatch reinforces the pattern behind an accepted suggestion.
func (e *Engine) ConfirmMatch(ctx context.Context, matchingHistoryRef string) (LearnResult, error) {
	if err := common.NewValidator().
		Field("matchingHistoryRef", matchingHistoryRef, common.Required, common.UUID).
		Err(); err != nil {
		return LearnResult{}, err
	}
	histID := uuid.MustParse(matchingHistoryRef)

	e.mu.RLock()
	defer e.mu.RUnlock()

	h, err := e.pendingMatch(ctx, histID)
	if err != nil {
		return LearnResult{}, err
	}
	key, ok := entity.ParsePatternKey(h.PatternKey)
	if !ok {
		return LearnResult{}, common.NotFound("pattern %q", h.PatternKey)
	}
	if _, ok := e.store.Load().Get(key); !ok {
		return LearnResult{}, common.NotFound("pattern %q", h.PatternKey)
	}

	lineID := h.LineItemID
	rec := entity.CorrectionRecord{
		ID:                uuid.New(),
		Kind:              constants.RecordKindConfirmation,
		SourceIdentity:    h.SourceIdentity,
		Identity:          common.IdentityFromContext(ctx),
		PatternKey:        h.PatternKey,
		LineItemID:        &lineID,
		MatchingHistoryID: &histID,
	}
	// Only the caller that wins the resolve reinforces the pattern.
	if err := e.repos.History.ResolveMatch(ctx, histID, constants.MatchStatusConfirmed, "", e.now()); err != nil {
		return LearnResult{}, common.WrapError(err, "resolve match")
	}
	patterns, err := e.commit(ctx, rec)
	if err != nil {
		return LearnResult{}, err
	}
	return LearnResult{Status: constants.LearnStatusConfirmed, RecordID: rec.ID, Patterns: patterns}, nil
}

// CorrectMatch learns the user's category for a wrong suggestion. The pattern
// that produced the suggestion is left untouched.
func (e *Engine) CorrectMatch(ctx context.Context, matchingHistoryRef, correctedCategory, subCategoryRef string) (LearnResult, error) {
	if err := common.NewValidator().
		Field("matchingHistoryRef", matchingHistoryRef, common.Required, common.UUID).
		Field("correctedCategory", correctedCategory, common.Required).
		Err(); err != nil {
		return LearnResult{}, err
	}
	histID := uuid.MustParse(matchingHistoryRef)
	target := NormalizeValue(entity.FieldCategory, correctedCategory)

	e.mu.RLock()
	defer e.mu.RUnlock()

	h, err := e.pendingMatch(ctx, histID)
	if err != nil {
		return LearnResult{}, err
	}
	item, err := e.repos.LineItems.GetLineItem(ctx, h.LineItemID)
	if err != nil {
		return LearnResult{}, err
	}

	lineID := h.LineItemID
	rec := entity.CorrectionRecord{
		ID:                uuid.New(),
		Kind:              constants.RecordKindMatchCorrection,
		SourceIdentity:    h.SourceIdentity,
		Identity:          common.IdentityFromContext(ctx),
		PatternKey:        h.PatternKey,
		LineItemID:        &lineID,
		MatchingHistoryID: &histID,
		Changes: []entity.FieldChange{{
			Field:       entity.FieldCategory,
			Original:    h.SuggestedValue,
			Corrected:   target,
			Description: item.Description,
			Amount:      item.LineTotal,
			SubCategory: subCategoryRef,
		}},
	}
	if err := e.repos.History.ResolveMatch(ctx, histID, constants.MatchStatusCorrected, target, e.now()); err != nil {
		return LearnResult{}, common.WrapError(err, "resolve match")
	}
	if err := e.repos.LineItems.UpdateLineItemCategory(ctx, lineID, target, subCategoryRef, ""); err != nil {
		return LearnResult{}, common.WrapError(err, "update line item")
	}
	patterns, err := e.commit(ctx, rec)
	if err != nil {
		return LearnResult{}, err
	}
	return LearnResult{Status: constants.LearnStatusCorrected, RecordID: rec.ID, Patterns: patterns}, nil
}

// IngestCorrection stores a reviewed field map and learns every changed field.
func (e *Engine) IngestCorrection(ctx context.Context, sub CorrectionSubmission) (LearnResult, error) {
	v := common.NewValidator().
		Field("invoiceText", sub.InvoiceText, common.Required).
		Field("originalExtraction", fieldSetValue(sub.OriginalExtraction), common.Required).
		Field("correctedData", fieldSetValue(sub.CorrectedData), common.Required)
	for field, c := range sub.UserConfidence {
		v.Field("userConfidence."+field, c, unitInterval)
	}
	if err := v.Err(); err != nil {
		return LearnResult{}, err
	}

	source := strings.TrimSpace(sub.SourceIdentity)
	if source == "" {
		source = firstNonEmpty(sub.CorrectedData.VendorName, sub.OriginalExtraction.VendorName)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	rec := entity.CorrectionRecord{
		ID:             uuid.New(),
		Kind:           constants.RecordKindCorrection,
		InvoiceText:    sub.InvoiceText,
		Original:       *sub.OriginalExtraction,
		Corrected:      *sub.CorrectedData,
		UserConfidence: sub.UserConfidence,
		Document:       sub.DocumentMetadata,
		SourceIdentity: source,
		Identity:       common.IdentityFromContext(ctx),
	}
	patterns, err := e.commit(ctx, rec)
	if err != nil {
		return LearnResult{}, err
	}
	return LearnResult{Status: constants.LearnStatusIngested, RecordID: rec.ID, Patterns: patterns}, nil
}

// RecordMatch stores a SUGGESTED history entry for an applied suggestion.
func (e *Engine) RecordMatch(ctx context.Context, lineItemID uuid.UUID, sourceIdentity string, s entity.MatchSuggestion) (entity.MatchingHistory, error) {
	h := entity.MatchingHistory{
		ID:             uuid.New(),
		LineItemID:     lineItemID,
		SourceIdentity: sourceIdentity,
		Field:          s.Field,
		PatternKey:     s.PatternKey,
		SuggestedValue: s.Value,
		Confidence:     s.Confidence,
		Status:         constants.MatchStatusSuggested,
		CreatedAt:      e.now(),
	}
	if err := e.repos.History.CreateMatch(ctx, h); err != nil {
		return entity.MatchingHistory{}, common.WrapError(err, "create match")
	}
	return h, nil
}

// GetSuggestions ranks patterns matching the query. It never fails; a query
// with no match yields an empty slice.
func (e *Engine) GetSuggestions(ctx context.Context, sourceIdentity, descriptionText string, amount decimal.Decimal) []entity.MatchSuggestion {
	out := []entity.MatchSuggestion{}
	desc := strings.TrimSpace(descriptionText)
	amt := amount.StringFixed(2)

	for _, p := range e.store.Load().Snapshot() {
		if !suggests(p, desc, amt) {
			continue
		}
		out = append(out, entity.MatchSuggestion{
			PatternKey:       p.Key.String(),
			Field:            p.Key.Field,
			Value:            p.Key.Value,
			SubCategory:      p.SubCategory,
			Confidence:       p.Confidence,
			Examples:         p.Examples,
			LastReinforcedAt: p.LastReinforcedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.LastReinforcedAt.Equal(b.LastReinforcedAt) {
			return a.LastReinforcedAt.After(b.LastReinforcedAt)
		}
		return a.PatternKey < b.PatternKey
	})

	result := "hit"
	if len(out) == 0 {
		result = "miss"
	}
	e.metrics.SuggestionsTotal.WithLabelValues(result).Inc()
	e.logger.Debug("learning.suggestions",
		"req_id", common.RequestIDFromContext(ctx),
		"source", sourceIdentity,
		"count", len(out),
	)
	return out
}

func suggests(p entity.LearnedPattern, desc, amount string) bool {
	if desc != "" {
		for _, ex := range p.Examples {
			if ex.Description != "" && newLiteral(ex.Description).Match(desc) {
				return true
			}
		}
	}
	m, err := ParseMatcher(p.MatcherKind, p.MatcherExpr)
	if err != nil {
		return false
	}
	switch m.Kind() {
	case entity.MatcherNumericTemplate:
		return m.Match(amount)
	case entity.MatcherDateTemplate:
		_, ok := m.Find(desc)
		return ok
	}
	return false
}

var headerFields = []string{entity.FieldVendorName, entity.FieldVendorTaxID, entity.FieldCurrency}

// Recognize finds learned header values in text. For each field the
// highest-confidence pattern whose value, or one of whose examples, appears
// in the text wins.
func (e *Engine) Recognize(text string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	best := map[string]float64{}
	for _, p := range e.store.Load().Snapshot() {
		field := p.Key.Field
		if !isHeaderField(field) {
			continue
		}
		if c, seen := best[field]; seen && c >= p.Confidence {
			continue
		}
		if appears(p, text) {
			out[field] = p.Key.Value
			best[field] = p.Confidence
		}
	}
	return out
}

func appears(p entity.LearnedPattern, text string) bool {
	if _, ok := newLiteral(p.Key.Value).Find(text); ok {
		return true
	}
	for _, ex := range p.Examples {
		if ex.Description == "" {
			continue
		}
		if _, ok := newLiteral(ex.Description).Find(text); ok {
			return true
		}
	}
	return false
}

func isHeaderField(field string) bool {
	for _, f := range headerFields {
		if f == field {
			return true
		}
	}
	return false
}

// KnownVendors lists learned vendor spellings, most trusted first.
func (e *Engine) KnownVendors() []string {
	var ps []entity.LearnedPattern
	for _, p := range e.store.Load().Snapshot() {
		if p.Key.Field == entity.FieldVendorName {
			ps = append(ps, p)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Confidence > ps[j].Confidence })
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Key.Value
	}
	return out
}

// stamp returns a record time at storage precision that is strictly after
// the previous one. Callers hold e.commitMu.
func (e *Engine) stamp() time.Time {
	t := e.now().UTC().Truncate(time.Microsecond)
	if !t.After(e.lastStamp) {
		t = e.lastStamp.Add(time.Microsecond)
	}
	e.lastStamp = t
	return t
}

// commit stamps and persists rec, applies it to the live index and persists
// the touched patterns. Commits run one at a time so that record order in
// storage matches the order patterns were observed. Callers hold e.mu.
func (e *Engine) commit(ctx context.Context, rec entity.CorrectionRecord) ([]entity.LearnedPattern, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	rec.CreatedAt = e.stamp()
	if err := e.repos.Corrections.CreateCorrection(ctx, rec); err != nil {
		return nil, common.WrapError(err, "create correction record")
	}
	st := e.store.Load()
	patterns := apply(st, rec)
	if e.repos.Patterns != nil {
		for _, p := range patterns {
			if err := e.repos.Patterns.UpsertPattern(ctx, p); err != nil {
				e.logger.Warn("learning.pattern.persist_failed", "key", p.Key.String(), "error", err)
			}
		}
	}
	e.metrics.RecordsTotal.WithLabelValues(string(rec.Kind)).Inc()
	e.metrics.Patterns.Set(float64(st.Len()))
	e.logger.Info("learning.record.applied",
		"req_id", common.RequestIDFromContext(ctx),
		"record_id", rec.ID.String(),
		"kind", string(rec.Kind),
		"patterns", len(patterns),
	)
	return patterns, nil
}

// pendingMatch loads a history entry that has not been resolved yet.
func (e *Engine) pendingMatch(ctx context.Context, id uuid.UUID) (entity.MatchingHistory, error) {
	h, err := e.repos.History.GetMatch(ctx, id)
	if err != nil {
		return entity.MatchingHistory{}, err
	}
	if h.Status != constants.MatchStatusSuggested {
		return entity.MatchingHistory{}, common.Validation("matching history entry is already " + strings.ToLower(string(h.Status)))
	}
	return h, nil
}

// apply is shared by incremental learning and rebuilds so that both produce
// the same index. Every observation is stamped with the record's time.
func apply(st *Store, rec entity.CorrectionRecord) []entity.LearnedPattern {
	if rec.Kind == constants.RecordKindConfirmation {
		key, ok := entity.ParsePatternKey(rec.PatternKey)
		if !ok {
			return nil
		}
		if p, ok := st.reinforce(key, rec.CreatedAt); ok {
			return []entity.LearnedPattern{p}
		}
		return nil
	}

	var out []entity.LearnedPattern
	for _, ch := range rec.Observations() {
		value := NormalizeValue(ch.Field, ch.Corrected)
		if value == "" {
			continue
		}
		out = append(out, st.observe(observation{
			key:         entity.PatternKey{Field: ch.Field, Value: value},
			example:     newExample(rec.SourceIdentity, ch.Description, ch.Amount),
			subCategory: ch.SubCategory,
			at:          rec.CreatedAt,
		}))
	}
	return out
}

func unitInterval(field string, value interface{}) *common.ValidationError {
	c, _ := value.(float64)
	if math.IsNaN(c) || c < 0 || c > 1 {
		return &common.ValidationError{Field: field, Value: value, Message: "must be between 0 and 1"}
	}
	return nil
}

func fieldSetValue(fs *entity.FieldSet) interface{} {
	if fs == nil {
		return nil
	}
	return fs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
