package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// ParseContext carries the per-call selection inputs.
type ParseContext struct {
	Identity       string
	ExpectedFormat string
	Strategy       string
}

type Orchestrator struct {
	registry   *Registry
	strategies *Strategies
	suggester  Suggester
	categories []string
	lateGrace  time.Duration
	metrics    *Metrics
	logger     *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithSuggester fills missing line-item categories after a successful run.
func WithSuggester(s Suggester) OrchestratorOption {
	return func(o *Orchestrator) { o.suggester = s }
}

// DefaultLateResultGrace is how long a timed-out attempt waits for the
// provider to return so its billed usage can still be charged to the run.
const DefaultLateResultGrace = 500 * time.Millisecond

// WithLateResultGrace overrides DefaultLateResultGrace. Zero disables the wait.
func WithLateResultGrace(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.lateGrace = d
		}
	}
}

// WithCategories overrides the category taxonomy passed to providers.
func WithCategories(c []string) OrchestratorOption {
	return func(o *Orchestrator) { o.categories = c }
}

func NewOrchestrator(registry *Registry, strategies *Strategies, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		registry:   registry,
		strategies: strategies,
		categories: constants.AsStringSlice(),
		lateGrace:  DefaultLateResultGrace,
		metrics:    NewMetrics(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strategies exposes the configured strategy set.
func (o *Orchestrator) Strategies() *Strategies { return o.strategies }

// ParseInvoice walks the resolved strategy's chain in order and stops at the
// first attempt whose confidence clears the threshold. The returned result is
// always populated, including on error: attempts and cost are never discarded.
func (o *Orchestrator) ParseInvoice(ctx context.Context, text string, pc ParseContext) (entity.ExtractionResult, error) {
	start := time.Now()
	res := entity.ExtractionResult{
		RunID:     uuid.New().String(),
		Status:    constants.RunStatusFailed,
		TotalCost: decimal.Zero,
		Attempts:  []entity.ExtractionAttempt{},
	}

	strat, err := o.strategies.Resolve(pc.Strategy, pc.ExpectedFormat)
	if err != nil {
		res.Error = failureOf(err)
		return res, err
	}
	res.Strategy = strat.Name

	o.logger.Info("extraction.run.start",
		"run_id", res.RunID,
		"req_id", common.RequestIDFromContext(ctx),
		"strategy", strat.Name,
		"chain", strat.Providers,
		"threshold", strat.ConfidenceThreshold,
		"text_len", len(text),
	)

	defer func() {
		o.metrics.RunsTotal.WithLabelValues(strat.Name, string(res.Status)).Inc()
		o.metrics.RunDuration.WithLabelValues(strat.Name).Observe(time.Since(start).Seconds())
		o.logger.Info("extraction.run.done",
			"run_id", res.RunID,
			"strategy", strat.Name,
			"status", res.Status,
			"attempts", len(res.Attempts),
			"total_cost", res.TotalCost.String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}()

	req := ProviderRequest{
		Text:              text,
		Identity:          pc.Identity,
		ExpectedFormat:    pc.ExpectedFormat,
		AllowedCategories: o.categories,
	}

	for i, name := range strat.Providers {
		if ctx.Err() != nil {
			return o.canceled(&res, ctx.Err())
		}

		attempt, inv := o.try(ctx, strat, i, name, req)
		res.Attempts = append(res.Attempts, attempt)
		res.TotalCost = res.TotalCost.Add(attempt.Cost)

		if attempt.Outcome == constants.OutcomeSuccess {
			res.Status = constants.RunStatusSucceeded
			res.Success = true
			res.Confidence = attempt.Confidence
			res.Invoice = inv
			o.applySuggestions(ctx, inv)
			return res, nil
		}
		if ctx.Err() != nil {
			return o.canceled(&res, ctx.Err())
		}
	}

	err = common.NewAppError(common.CodeChainExhausted,
		fmt.Sprintf("strategy %q exhausted %d providers without reaching confidence %.2f", strat.Name, len(res.Attempts), strat.ConfidenceThreshold),
		common.ErrChainExhausted)
	res.Error = failureOf(err)
	return res, err
}

type providerOutcome struct {
	res ProviderResult
	err error
}

// try runs one provider under its own deadline. The call happens on a separate
// goroutine so a provider that ignores its context still cannot stall the run.
func (o *Orchestrator) try(ctx context.Context, strat Strategy, pos int, name string, req ProviderRequest) (entity.ExtractionAttempt, *entity.Invoice) {
	start := time.Now()
	attempt := entity.ExtractionAttempt{
		Strategy: strat.Name,
		Provider: name,
		Position: pos,
		Outcome:  constants.OutcomeFailed,
		Cost:     decimal.Zero,
	}
	finish := func(err error) {
		attempt.ElapsedMS = time.Since(start).Milliseconds()
		if err != nil {
			attempt.Error = err.Error()
		}
		o.metrics.AttemptsTotal.WithLabelValues(name, string(attempt.Outcome)).Inc()
		if f, _ := attempt.Cost.Float64(); f > 0 {
			o.metrics.CostTotal.WithLabelValues(name).Add(f)
		}
		level := slog.LevelInfo
		if attempt.Outcome == constants.OutcomeFailed {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "extraction.attempt",
			"strategy", strat.Name,
			"provider", name,
			"position", pos,
			"outcome", attempt.Outcome,
			"confidence", attempt.Confidence,
			"cost", attempt.Cost.String(),
			"error", attempt.Error,
			"elapsed_ms", attempt.ElapsedMS,
		)
	}

	provider, ok := o.registry.Get(name)
	if !ok {
		finish(fmt.Errorf("provider %q is not registered", name))
		return attempt, nil
	}

	actx, cancel := context.WithTimeout(ctx, strat.AttemptTimeout)
	defer cancel()

	done := make(chan providerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- providerOutcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		r, err := provider.Extract(actx, req)
		done <- providerOutcome{res: r, err: err}
	}()

	var out providerOutcome
	select {
	case out = <-done:
	case <-actx.Done():
		err := actx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("attempt timed out after %s: %w", strat.AttemptTimeout, err)
		}
		if late, ok := o.awaitLate(done); ok {
			attempt.Cost = o.attemptCost(name, late.res)
		}
		finish(err)
		return attempt, nil
	}

	attempt.Cost = o.attemptCost(name, out.res)
	if out.err != nil {
		finish(out.err)
		return attempt, nil
	}
	if out.res.Invoice == nil {
		finish(errors.New("malformed result: no invoice"))
		return attempt, nil
	}
	c := out.res.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		finish(fmt.Errorf("malformed result: confidence %v outside [0,1]", c))
		return attempt, nil
	}

	attempt.Confidence = c
	if c < strat.ConfidenceThreshold {
		attempt.Outcome = constants.OutcomeBelowThreshold
		finish(nil)
		return attempt, nil
	}
	attempt.Outcome = constants.OutcomeSuccess
	finish(nil)
	return attempt, out.res.Invoice
}

func (o *Orchestrator) attemptCost(provider string, r ProviderResult) decimal.Decimal {
	return r.Cost.Add(o.strategies.Price(provider).Cost(r.Usage))
}

// awaitLate gives a provider whose context already expired a short window to
// report what it spent. The result itself is never accepted.
func (o *Orchestrator) awaitLate(done <-chan providerOutcome) (providerOutcome, bool) {
	if o.lateGrace <= 0 {
		select {
		case out := <-done:
			return out, true
		default:
			return providerOutcome{}, false
		}
	}
	t := time.NewTimer(o.lateGrace)
	defer t.Stop()
	select {
	case out := <-done:
		return out, true
	case <-t.C:
		return providerOutcome{}, false
	}
}

func (o *Orchestrator) canceled(res *entity.ExtractionResult, cause error) (entity.ExtractionResult, error) {
	res.Status = constants.RunStatusCanceled
	res.Success = false
	res.Invoice = nil
	err := common.NewAppError(common.CodeCanceled, "extraction canceled", cause)
	res.Error = failureOf(err)
	return *res, err
}

// applySuggestions fills empty categories with the top learned suggestion.
func (o *Orchestrator) applySuggestions(ctx context.Context, inv *entity.Invoice) {
	if o.suggester == nil || inv == nil {
		return
	}
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if li.Category != "" {
			continue
		}
		for _, s := range o.suggester.GetSuggestions(ctx, inv.VendorName, li.Description, li.LineTotal) {
			if s.Field != entity.FieldCategory {
				continue
			}
			li.Category = s.Value
			li.SubCategory = s.SubCategory
			li.SuggestedBy = s.PatternKey
			break
		}
	}
}

func failureOf(err error) *entity.Failure {
	return &entity.Failure{Kind: common.KindOf(err), Message: common.MessageOf(err)}
}
