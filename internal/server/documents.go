package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

// ExtractResponse is the body of POST /v1/documents/extract.
type ExtractResponse struct {
	FileID   string           `json:"fileId"`
	Segments []entity.Segment `json:"segments"`
	Text     string           `json:"text"`
}

// ParseRequest is the body of POST /v1/invoices/parse.
type ParseRequest struct {
	Text           string `json:"text"`
	ExpectedFormat string `json:"expectedFormat,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
}

// ProcessResponse is the body of POST /v1/documents/process. Error is set
// when the run failed; the rest of the outcome is still reported.
type ProcessResponse struct {
	pipeline.Outcome
	Error *entity.Failure `json:"error,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extractor == nil {
		unavailable(w, "text extraction")
		return
	}
	doc, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	segs, err := s.deps.Extractor.Extract(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExtractResponse{FileID: doc.FileID, Segments: segs, Text: joinSegments(segs)})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Parser == nil {
		unavailable(w, "parsing")
		return
	}
	var req ParseRequest
	if err := decodeJSON(r, s.cfg.MaxUploadSize, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := common.NewValidator().Field("text", req.Text, common.Required).Err(); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.Parser.ParseInvoice(r.Context(), req.Text, extraction.ParseContext{
		Identity:       common.IdentityFromContext(r.Context()),
		ExpectedFormat: req.ExpectedFormat,
		Strategy:       req.Strategy,
	})
	if err != nil {
		// The result carries attempts, cost and the error body.
		if res.Error == nil {
			res.Error = &entity.Failure{Kind: common.KindOf(err), Message: common.MessageOf(err)}
		}
		writeJSON(w, common.HTTPStatus(err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processor == nil {
		unavailable(w, "processing")
		return
	}
	doc, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	out, err := s.deps.Processor.Process(r.Context(), doc, extraction.ParseContext{
		Identity:       common.IdentityFromContext(r.Context()),
		ExpectedFormat: q.Get("expectedFormat"),
		Strategy:       q.Get("strategy"),
	})
	if err != nil {
		writeJSON(w, common.HTTPStatus(err), ProcessResponse{
			Outcome: out,
			Error:   &entity.Failure{Kind: common.KindOf(err), Message: common.MessageOf(err)},
		})
		return
	}
	writeJSON(w, http.StatusOK, ProcessResponse{Outcome: out})
}

// readDocument accepts either a multipart upload in the "file" field or the
// raw document as the request body.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (entity.RawDocument, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	doc := entity.RawDocument{FileID: uuid.New().String()}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
			return doc, uploadError(err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return doc, common.Validation("multipart field \"file\" is required")
		}
		defer func() { _ = f.Close() }()
		content, err := io.ReadAll(f)
		if err != nil {
			return doc, uploadError(err)
		}
		doc.FileName = hdr.Filename
		doc.MediaType = hdr.Header.Get("Content-Type")
		doc.Content = content
		return doc, nil
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return doc, uploadError(err)
	}
	doc.FileName = strings.TrimSpace(r.URL.Query().Get("filename"))
	doc.MediaType = r.Header.Get("Content-Type")
	doc.Content = content
	return doc, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.InvalidDocument("document exceeds the upload limit")
	}
	return common.Validation("could not read upload: " + err.Error())
}

func joinSegments(segs []entity.Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\f\n")
}
