// Package app wires configuration, storage, extraction and learning into the
// components shared by the binaries.
package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/export"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/learning"
	"github.com/joseph-ayodele/invoice-intake/internal/llm/anthropic"
	"github.com/joseph-ayodele/invoice-intake/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
	"github.com/joseph-ayodele/invoice-intake/internal/providers"
	"github.com/joseph-ayodele/invoice-intake/internal/repository"
	"github.com/joseph-ayodele/invoice-intake/internal/server"
	"github.com/joseph-ayodele/invoice-intake/internal/textextract"
)

// Provider names used in strategy files.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	// DefaultStrategy is used when no strategy file exists.
	DefaultStrategy = "default"
)

// App holds the wired components.
type App struct {
	Config *common.Config
	DB     *repository.DB

	Invoices    *repository.InvoiceRepository
	Corrections *repository.CorrectionRepository
	Patterns    *repository.PatternRepository
	History     *repository.HistoryRepository

	Engine       *learning.Engine
	Aggregator   *learning.Aggregator
	Extractor    *textextract.Extractor
	Orchestrator *extraction.Orchestrator
	Processor    *pipeline.Processor
	Exporter     *export.Service

	logger *slog.Logger
}

// NewLogger builds the process logger. format is "json" or "text".
func NewLogger(format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Build opens the database, migrates it, warms the pattern index and wires
// the extraction pipeline.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Invoices:    repository.NewInvoiceRepository(db, logger),
		Corrections: repository.NewCorrectionRepository(db, logger),
		Patterns:    repository.NewPatternRepository(db, logger),
		History:     repository.NewHistoryRepository(db, logger),
		logger:      logger,
	}

	a.Engine = learning.NewEngine(learning.Repositories{
		Corrections: a.Corrections,
		Patterns:    a.Patterns,
		LineItems:   a.Invoices,
		History:     a.History,
	}, logger)
	a.Aggregator = learning.NewAggregator(a.Engine, cfg.Learning.RebuildLimit, logger)

	if cfg.Learning.RebuildOnBoot {
		stats, err := a.Aggregator.RebuildPatterns(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("patterns rebuilt on boot", "records", stats.TotalRecords, "patterns", stats.PatternsProduced)
	} else if _, err := a.Engine.Warm(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a.Extractor = textextract.NewExtractor(textextract.Config{
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	orch, err := NewOrchestrator(cfg, a.Engine, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Orchestrator = orch

	a.Processor = pipeline.NewProcessor(logger,
		pipeline.NewExtractStage(a.Extractor, logger),
		pipeline.NewParseStage(a.Orchestrator, pipeline.ParseConfig{}, logger),
		a.Invoices,
		a.Engine,
	)
	a.Exporter = export.NewService(a.Patterns, a.Corrections, logger)
	return a, nil
}

// NewOrchestrator registers the heuristic provider plus any LLM provider with
// an API key, and loads the strategy file. A missing file yields a single
// default chain over every registered provider, cheapest first.
func NewOrchestrator(cfg *common.Config, engine *learning.Engine, logger *slog.Logger) (*extraction.Orchestrator, error) {
	provs := []extraction.Provider{providers.NewHeuristic(engine, logger)}
	if cfg.LLM.OpenAIAPIKey != "" {
		client := openai.NewClient(openai.Config{
			APIKey:          cfg.LLM.OpenAIAPIKey,
			BaseURL:         cfg.LLM.OpenAIBaseURL,
			Model:           cfg.LLM.OpenAIModel,
			Temperature:     cfg.LLM.Temperature,
			Timeout:         cfg.LLM.Timeout,
			LenientOptional: true,
		}, logger)
		provs = append(provs, providers.NewLLMProvider(ProviderOpenAI, client, nil, engine, logger))
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		client := anthropic.NewClient(anthropic.Config{
			APIKey:          cfg.LLM.AnthropicAPIKey,
			Model:           cfg.LLM.AnthropicModel,
			Temperature:     float64(cfg.LLM.Temperature),
			Timeout:         cfg.LLM.Timeout,
			LenientOptional: true,
		}, logger)
		provs = append(provs, providers.NewLLMProvider(ProviderAnthropic, client, nil, engine, logger))
	}
	reg, err := extraction.NewRegistry(provs...)
	if err != nil {
		return nil, err
	}

	var strategies *extraction.Strategies
	if _, statErr := os.Stat(cfg.Extraction.StrategyFile); errors.Is(statErr, fs.ErrNotExist) {
		names := make([]string, len(provs))
		for i, p := range provs {
			names[i] = p.Name()
		}
		logger.Warn("strategy file not found, using default chain",
			"path", cfg.Extraction.StrategyFile, "providers", names)
		strategies = extraction.NewStrategies(DefaultStrategy, []extraction.Strategy{{
			Name:                DefaultStrategy,
			ConfidenceThreshold: extraction.DefaultConfidenceThreshold,
			AttemptTimeout:      extraction.DefaultAttemptTimeout,
			Providers:           names,
		}}, nil)
	} else {
		strategies, err = extraction.LoadStrategies(cfg.Extraction.StrategyFile)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, "load strategies", err)
		}
	}
	if err := strategies.Validate(reg); err != nil {
		return nil, common.NewAppError(common.CodeConfig, err.Error(), err)
	}

	return extraction.NewOrchestrator(reg, strategies, logger, extraction.WithSuggester(engine)), nil
}

// ServerDeps exposes the components to the HTTP and gRPC servers.
func (a *App) ServerDeps() server.Deps {
	return server.Deps{
		Extractor: a.Extractor,
		Parser:    a.Orchestrator,
		Processor: a.Processor,
		Learner:   a.Engine,
		Rebuilder: a.Aggregator,
		Exporter:  a.Exporter,
		DB:        a.DB,
	}
}

// Close releases the database.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// Ping checks the database within timeout.
func (a *App) Ping(ctx context.Context, timeout time.Duration) error {
	return a.DB.HealthCheck(ctx, timeout)
}
