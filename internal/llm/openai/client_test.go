package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

func TestClient_ExtractFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		content := `{"invoice_number":"INV-3","vendor_name":"Bolt Supply","currency":"USD","total":"99.90","confidence":0.75}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
			"usage":   map[string]any{"prompt_tokens": 900, "completion_tokens": 80},
		})
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: ts.URL}, nil)
	fields, usage, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{Text: "INVOICE INV-3"})
	require.NoError(t, err)
	assert.Equal(t, "Bolt Supply", fields.VendorName)
	assert.Equal(t, llm.Usage{InputTokens: 900, OutputTokens: 80}, usage)
}

func TestClient_ExtractFields_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: ts.URL}, nil)
	_, _, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{Text: "x"})
	require.Error(t, err)

	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode())
}
