package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

// ErrorBody is the shape of every failure response.
type ErrorBody struct {
	Error entity.Failure `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), ErrorBody{Error: entity.Failure{
		Kind:    common.KindOf(err),
		Message: common.MessageOf(err),
	}})
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: entity.Failure{
		Kind:    common.CodeInternal,
		Message: what + " is not configured",
	}})
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation errors.
func decodeJSON(r *http.Request, limit int64, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return common.Validation("request body is required")
		}
		return common.Validation("malformed JSON body: " + err.Error())
	}
	return nil
}
