package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/export"
	"github.com/joseph-ayodele/invoice-intake/internal/learning"
)

// Learning actions accepted by POST /v1/learning.
const (
	ActionLearn   = "learn"
	ActionConfirm = "confirm"
	ActionCorrect = "correct"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LearningRequest is the body of POST /v1/learning. The fields used depend
// on the action.
type LearningRequest struct {
	Action             string `json:"action"`
	LineItemRef        string `json:"lineItemRef,omitempty"`
	SourceIdentity     string `json:"sourceIdentity,omitempty"`
	DescriptionText    string `json:"descriptionText,omitempty"`
	Amount             string `json:"amount,omitempty"`
	TargetCategory     string `json:"targetCategory,omitempty"`
	SubCategoryRef     string `json:"subCategoryRef,omitempty"`
	MatchingHistoryRef string `json:"matchingHistoryRef,omitempty"`
	CorrectedCategory  string `json:"correctedCategory,omitempty"`
}

// SuggestionsResponse is the body of GET /v1/suggestions.
type SuggestionsResponse struct {
	Suggestions []entity.MatchSuggestion `json:"suggestions"`
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		unavailable(w, "learning")
		return
	}
	var sub learning.CorrectionSubmission
	if err := decodeJSON(r, s.cfg.MaxUploadSize, &sub); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.deps.Learner.IngestCorrection(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLearning(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		unavailable(w, "learning")
		return
	}
	var req LearningRequest
	if err := decodeJSON(r, s.cfg.MaxUploadSize, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if err := common.NewValidator().
		Field("action", req.Action, common.Required, common.OneOf(ActionLearn, ActionConfirm, ActionCorrect)).
		Err(); err != nil {
		writeError(w, err)
		return
	}

	var (
		res learning.LearnResult
		err error
	)
	switch req.Action {
	case ActionLearn:
		res, err = s.deps.Learner.LearnFromMapping(r.Context(), learning.MappingRequest{
			LineItemRef:     req.LineItemRef,
			SourceIdentity:  req.SourceIdentity,
			DescriptionText: req.DescriptionText,
			Amount:          req.Amount,
			TargetCategory:  req.TargetCategory,
			SubCategoryRef:  req.SubCategoryRef,
		})
	case ActionConfirm:
		res, err = s.deps.Learner.ConfirmMatch(r.Context(), req.MatchingHistoryRef)
	case ActionCorrect:
		res, err = s.deps.Learner.CorrectMatch(r.Context(), req.MatchingHistoryRef, req.CorrectedCategory, req.SubCategoryRef)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		unavailable(w, "learning")
		return
	}
	q := r.URL.Query()
	source := q.Get("sourceIdentity")
	desc := q.Get("descriptionText")
	rawAmount := q.Get("amount")
	if err := common.NewValidator().
		Field("sourceIdentity", source, common.Required).
		Field("descriptionText", desc, common.Required).
		Field("amount", rawAmount, common.Required, common.Decimal).
		Err(); err != nil {
		writeError(w, err)
		return
	}
	amount := decimal.RequireFromString(strings.TrimSpace(rawAmount))

	out := s.deps.Learner.GetSuggestions(r.Context(), source, desc, amount)
	if out == nil {
		out = []entity.MatchSuggestion{}
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: out})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rebuilder == nil {
		unavailable(w, "pattern rebuild")
		return
	}
	stats, err := s.deps.Rebuilder.RebuildPatterns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		unavailable(w, "export")
		return
	}
	opts, err := exportOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.deps.Exporter.ExportLearningXLSX(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	name := fmt.Sprintf("learning-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// exportOptions reads ?since=RFC3339|YYYY-MM-DD and ?limit=N.
func exportOptions(r *http.Request) (export.Options, error) {
	var opts export.Options
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			t, err = time.Parse(time.DateOnly, raw)
		}
		if err != nil {
			return opts, common.Validation("since must be RFC3339 or YYYY-MM-DD")
		}
		opts.Since = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return opts, common.Validation("limit must be a positive integer")
		}
		opts.CorrectionLimit = n
	}
	return opts, nil
}
