// Package server exposes extraction and learning over HTTP, plus a gRPC
// surface for health and learning calls.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/export"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/learning"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

// Extractor turns documents into text segments.
type Extractor interface {
	Extract(ctx context.Context, doc entity.RawDocument) ([]entity.Segment, error)
}

// Parser runs text through a strategy chain.
type Parser interface {
	ParseInvoice(ctx context.Context, text string, pc extraction.ParseContext) (entity.ExtractionResult, error)
}

// Processor runs the whole document pipeline.
type Processor interface {
	Process(ctx context.Context, doc entity.RawDocument, pc extraction.ParseContext) (pipeline.Outcome, error)
}

// Learner is the correction learning surface.
type Learner interface {
	LearnFromMapping(ctx context.Context, req learning.MappingRequest) (learning.LearnResult, error)
	ConfirmMatch(ctx context.Context, matchingHistoryRef string) (learning.LearnResult, error)
	CorrectMatch(ctx context.Context, matchingHistoryRef, correctedCategory, subCategoryRef string) (learning.LearnResult, error)
	IngestCorrection(ctx context.Context, sub learning.CorrectionSubmission) (learning.LearnResult, error)
	GetSuggestions(ctx context.Context, sourceIdentity, descriptionText string, amount decimal.Decimal) []entity.MatchSuggestion
}

// Rebuilder recomputes the pattern index from history.
type Rebuilder interface {
	RebuildPatterns(ctx context.Context) (learning.RebuildStats, error)
}

// Exporter renders the learning workbook.
type Exporter interface {
	ExportLearningXLSX(ctx context.Context, opts export.Options) ([]byte, error)
}

// Pinger reports database health.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Deps are the collaborators behind the HTTP API. Nil members disable
// their routes with 503.
type Deps struct {
	Extractor Extractor
	Parser    Parser
	Processor Processor
	Learner   Learner
	Rebuilder Rebuilder
	Exporter  Exporter
	DB        Pinger
}

type Config struct {
	CORSOrigins   []string
	MaxUploadSize int64 // bytes, default 32 MiB
	HealthTimeout time.Duration
}

type Server struct {
	deps    Deps
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 32 << 20
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{deps: deps, cfg: cfg, metrics: NewMetrics(), logger: logger}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderIdentity, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(requestContext)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents/extract", s.handleExtract)
		r.Post("/documents/process", s.handleProcess)
		r.Post("/invoices/parse", s.handleParse)
		r.Post("/corrections", s.handleCorrections)
		r.Post("/learning", s.handleLearning)
		r.Get("/suggestions", s.handleSuggestions)
		r.Post("/patterns/rebuild", s.handleRebuild)
		r.Get("/patterns/export", s.handleExport)
	})
	return r
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	if err := s.deps.DB.HealthCheck(r.Context(), s.cfg.HealthTimeout); err != nil {
		s.logger.Warn("health.db.failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "down"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "up"})
}

// SplitOrigins parses a comma separated CORS origin list.
func SplitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
