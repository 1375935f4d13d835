package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

// ExtractFields implements llm.FieldExtractor using chat/completions in JSON mode.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.InvoiceFields, llm.Usage, []byte, error) {
	rid := llm.RequestID(ctx)
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "openai",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"allowed_categories", len(req.AllowedCategories),
	)

	schema := llm.BuildInvoiceJSONSchema(req.AllowedCategories)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(req)},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
			{"role": "system", "content": llm.SchemaInstruction(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, httpErr := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if httpErr != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, llm.Usage{}, raw, fmt.Errorf("openai: %w", httpErr)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, llm.Usage{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	usage := llm.Usage{InputTokens: cc.Usage.PromptTokens, OutputTokens: cc.Usage.CompletionTokens}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.InvoiceFields{}, usage, raw, fmt.Errorf("no choices in openai response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	out, rawContent, err := llm.DecodeFields(content, schema, req.AllowedCategories, c.cfg.LenientOptional, c.logger, rid)
	if err != nil {
		return llm.InvoiceFields{}, usage, rawContent, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", "openai",
		"vendor", out.VendorName,
		"invoice_number", out.InvoiceNumber,
		"total", out.Total,
		"currency", out.Currency,
		"line_items", len(out.LineItems),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, usage, rawContent, nil
}
