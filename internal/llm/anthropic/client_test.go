package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		Model:           "claude-3-5-haiku-latest",
		LenientOptional: true,
	}, nil)
}

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":   "msg_test_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-3-5-haiku-latest",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  1200,
			"output_tokens": 300,
		},
	}
}

func TestClient_ExtractFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-haiku-latest", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse("```json\n" + `{
			"invoice_number": "INV-7",
			"issue_date": "2026-02-01",
			"vendor_name": "Acme Steel",
			"currency": "usd",
			"total": 1200.5,
			"line_items": [{"description": "Steel beams", "qty": 2, "price": "600.25", "category": "MATERIAL"}],
			"confidence": 0.92
		}` + "\n```"))
	}))
	defer ts.Close()

	fields, usage, raw, err := newTestClient(ts.URL).ExtractFields(context.Background(), llm.ExtractRequest{
		Text:              "INVOICE INV-7",
		AllowedCategories: []string{"MATERIAL", "LABOR", "OTHER"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, int64(1200), usage.InputTokens)
	assert.Equal(t, int64(300), usage.OutputTokens)

	assert.Equal(t, "INV-7", fields.InvoiceNumber)
	assert.Equal(t, "USD", fields.Currency)
	assert.Equal(t, "1200.50", fields.Total)
	require.Len(t, fields.LineItems, 1)
	assert.Equal(t, "2", fields.LineItems[0].Quantity)
	assert.Equal(t, "600.25", fields.LineItems[0].UnitPrice)
	assert.InDelta(t, 0.92, fields.Confidence(), 1e-9)
}

func TestClient_ExtractFields_StatusErrorKeepsCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer ts.Close()

	_, _, _, err := newTestClient(ts.URL).ExtractFields(context.Background(), llm.ExtractRequest{Text: "x"})
	require.Error(t, err)

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestClient_ExtractFields_SchemaFailureReturnsUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(`{"vendor_name": "Acme"}`))
	}))
	defer ts.Close()

	_, usage, _, err := newTestClient(ts.URL).ExtractFields(context.Background(), llm.ExtractRequest{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
	assert.Equal(t, int64(1200), usage.InputTokens)
}
