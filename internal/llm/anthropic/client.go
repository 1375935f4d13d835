// Package anthropic extracts invoice fields through the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

type Config struct {
	APIKey          string // if empty, falls back to env ANTHROPIC_API_KEY
	BaseURL         string // optional override, used by tests
	Model           string
	MaxTokens       int64
	Temperature     float64
	Timeout         time.Duration
	LenientOptional bool
}

type Client struct {
	cfg    Config
	client sdk.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = string(sdk.ModelClaude3_5HaikuLatest)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// retries are owned by internal/resilience
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, client: sdk.NewClient(opts...), logger: logger}
}

// Model reports the configured model name, used for pricing lookups.
func (c *Client) Model() string { return c.cfg.Model }

// ExtractFields implements llm.FieldExtractor.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.InvoiceFields, llm.Usage, []byte, error) {
	rid := llm.RequestID(ctx)
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "anthropic",
		"model", c.cfg.Model,
		"text_len", len(req.Text),
	)

	schema := llm.BuildInvoiceJSONSchema(req.AllowedCategories)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System: []sdk.TextBlockParam{
			{Text: llm.BuildSystemPrompt(req)},
			{Text: llm.SchemaInstruction(schema)},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(llm.BuildUserPrompt(req))),
		},
		Temperature: sdk.Float(c.cfg.Temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "provider", "anthropic", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			err = &llm.StatusError{Code: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return llm.InvoiceFields{}, llm.Usage{}, nil, eris.Wrap(err, "anthropic: create message")
	}

	usage := llm.Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return llm.InvoiceFields{}, usage, nil, eris.New("anthropic: response has no text content")
	}

	out, rawContent, err := llm.DecodeFields([]byte(b.String()), schema, req.AllowedCategories, c.cfg.LenientOptional, c.logger, rid)
	if err != nil {
		return llm.InvoiceFields{}, usage, rawContent, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", "anthropic",
		"vendor", out.VendorName,
		"invoice_number", out.InvoiceNumber,
		"total", out.Total,
		"line_items", len(out.LineItems),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, usage, rawContent, nil
}
