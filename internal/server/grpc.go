package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/learning"
)

// LearningServiceName is the gRPC service carrying learning calls. Messages
// are JSON encoded; clients call with grpc.CallContentSubtype(CodecName).
const (
	LearningServiceName = "invoiceintake.v1.LearningService"
	CodecName           = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// SuggestionsRequest is the gRPC request for GetSuggestions.
type SuggestionsRequest struct {
	SourceIdentity  string `json:"sourceIdentity"`
	DescriptionText string `json:"descriptionText"`
	Amount          string `json:"amount"`
}

// RebuildRequest is the empty gRPC request for RebuildPatterns.
type RebuildRequest struct{}

// LearningServiceServer is implemented by LearningService.
type LearningServiceServer interface {
	GetSuggestions(ctx context.Context, req *SuggestionsRequest) (*SuggestionsResponse, error)
	Learn(ctx context.Context, req *LearningRequest) (*learning.LearnResult, error)
	RebuildPatterns(ctx context.Context, req *RebuildRequest) (*learning.RebuildStats, error)
}

// LearningService serves learning calls over gRPC with the same validation
// as the HTTP API.
type LearningService struct {
	learner   Learner
	rebuilder Rebuilder
}

func NewLearningService(learner Learner, rebuilder Rebuilder) *LearningService {
	return &LearningService{learner: learner, rebuilder: rebuilder}
}

func (s *LearningService) GetSuggestions(ctx context.Context, req *SuggestionsRequest) (*SuggestionsResponse, error) {
	if err := common.ValidateAndReturnError(common.NewValidator().
		Field("sourceIdentity", req.SourceIdentity, common.Required).
		Field("descriptionText", req.DescriptionText, common.Required).
		Field("amount", req.Amount, common.Required, common.Decimal)); err != nil {
		return nil, err
	}
	amount := decimal.RequireFromString(strings.TrimSpace(req.Amount))
	out := s.learner.GetSuggestions(ctx, req.SourceIdentity, req.DescriptionText, amount)
	if out == nil {
		out = []entity.MatchSuggestion{}
	}
	return &SuggestionsResponse{Suggestions: out}, nil
}

func (s *LearningService) Learn(ctx context.Context, req *LearningRequest) (*learning.LearnResult, error) {
	var (
		res learning.LearnResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case ActionLearn:
		res, err = s.learner.LearnFromMapping(ctx, learning.MappingRequest{
			LineItemRef:     req.LineItemRef,
			SourceIdentity:  req.SourceIdentity,
			DescriptionText: req.DescriptionText,
			Amount:          req.Amount,
			TargetCategory:  req.TargetCategory,
			SubCategoryRef:  req.SubCategoryRef,
		})
	case ActionConfirm:
		res, err = s.learner.ConfirmMatch(ctx, req.MatchingHistoryRef)
	case ActionCorrect:
		res, err = s.learner.CorrectMatch(ctx, req.MatchingHistoryRef, req.CorrectedCategory, req.SubCategoryRef)
	default:
		return nil, common.InvalidArgumentError("action must be one of learn, confirm, correct")
	}
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &res, nil
}

func (s *LearningService) RebuildPatterns(ctx context.Context, _ *RebuildRequest) (*learning.RebuildStats, error) {
	if s.rebuilder == nil {
		return nil, common.InternalError("pattern rebuild is not configured")
	}
	stats, err := s.rebuilder.RebuildPatterns(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &stats, nil
}

func learningHandler[Req any](call func(LearningServiceServer, context.Context, *Req) (any, error), method string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LearningServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LearningServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(LearningServiceServer), ctx, req.(*Req))
		})
	}
}

var learningServiceDesc = grpc.ServiceDesc{
	ServiceName: LearningServiceName,
	HandlerType: (*LearningServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSuggestions",
			Handler: learningHandler(func(s LearningServiceServer, ctx context.Context, r *SuggestionsRequest) (any, error) {
				return s.GetSuggestions(ctx, r)
			}, "GetSuggestions"),
		},
		{
			MethodName: "Learn",
			Handler: learningHandler(func(s LearningServiceServer, ctx context.Context, r *LearningRequest) (any, error) {
				return s.Learn(ctx, r)
			}, "Learn"),
		},
		{
			MethodName: "RebuildPatterns",
			Handler: learningHandler(func(s LearningServiceServer, ctx context.Context, r *RebuildRequest) (any, error) {
				return s.RebuildPatterns(ctx, r)
			}, "RebuildPatterns"),
		},
	},
	Metadata: "invoiceintake/v1/learning.json",
}

// RegisterLearningService adds the learning service to s.
func RegisterLearningService(s grpc.ServiceRegistrar, srv LearningServiceServer) {
	s.RegisterService(&learningServiceDesc, srv)
}

// NewGRPCServer builds the gRPC server with health, reflection and, when a
// learner is configured, the learning service.
func NewGRPCServer(deps Deps, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(unaryContext(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if deps.Learner != nil {
		RegisterLearningService(gs, NewLearningService(deps.Learner, deps.Rebuilder))
		hs.SetServingStatus(LearningServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	reflection.Register(gs)
	return gs, hs
}

// unaryContext copies x-request-id and x-identity metadata into the context
// and logs each call.
func unaryContext(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				reqID = v[0]
			}
			if v := md.Get(strings.ToLower(HeaderIdentity)); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
				ctx = common.WithIdentity(ctx, strings.TrimSpace(v[0]))
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)

		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"req_id", reqID,
			"identity", common.IdentityFromContext(ctx),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(attrs, "error", err)...)
			return nil, common.ToStatus(err)
		}
		logger.Info("grpc request", attrs...)
		return resp, nil
	}
}

// HealthReporter polls the database and flips the overall gRPC serving status.
type HealthReporter struct {
	health   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(hs *health.Server, db Pinger, interval, timeout time.Duration, logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthReporter{health: hs, db: db, interval: interval, timeout: timeout, logger: logger}
}

// Check pings the database once and records the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.db != nil {
		if err := h.db.HealthCheck(ctx, h.timeout); err != nil {
			h.logger.Warn("health.db.failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus("", st)
	return st
}

// Run checks immediately and then on every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}
