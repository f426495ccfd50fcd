// Package llm classifies articles through the Anthropic API. It owns the
// prompt, response validation and normalization, retry policy, and the cost
// accounting per call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/retry"
	"github.com/prismfeed/prism/pkg/models"
)

// Result is one successful classification with its cost.
type Result struct {
	Payload      models.AnalysisPayload
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Classifier is the contract the orchestrator depends on.
type Classifier interface {
	Classify(ctx context.Context, title, summary, modelTag string) (*Result, error)
}

// invoker performs one raw provider call and returns the reply text plus
// token usage. Split out so tests can stub the provider.
type invoker func(ctx context.Context, model, user string) (string, int64, int64, error)

// Client calls the Anthropic Messages API.
type Client struct {
	cfg     config.LLMConfig
	metrics *observability.Metrics
	logger  *slog.Logger
	invoke  invoker
}

// Option configures a Client.
type Option func(*Client)

// WithInvoker replaces the provider call, for tests.
func WithInvoker(fn invoker) Option {
	return func(c *Client) { c.invoke = fn }
}

// maxOutputTokens bounds each classification reply.
const maxOutputTokens = 1024

// New builds an LLM client against the Anthropic API.
func New(cfg config.LLMConfig, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		metrics: metrics,
		logger:  observability.Component(logger, "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invoke == nil {
		api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		c.invoke = func(ctx context.Context, model, user string) (string, int64, int64, error) {
			msg, err := api.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(model),
				MaxTokens: maxOutputTokens,
				System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
				},
			})
			if err != nil {
				return "", 0, 0, err
			}
			var sb strings.Builder
			for _, block := range msg.Content {
				sb.WriteString(block.Text)
			}
			return sb.String(), msg.Usage.InputTokens, msg.Usage.OutputTokens, nil
		}
	}
	return c
}

// Classify runs one article through the model and returns the normalized
// payload. Transient provider errors are retried with exponential backoff up
// to the configured attempt budget.
func (c *Client) Classify(ctx context.Context, title, summary, modelTag string) (*Result, error) {
	if modelTag == "" {
		modelTag = c.cfg.DefaultModel
	}
	prompt := buildPrompt(title, summary)
	policy := retry.Exponential(c.cfg.MaxRetries+1, 500*time.Millisecond, 5*time.Second)

	start := time.Now()
	result, err := retry.DoWithValue(ctx, policy, func() (*Result, error) {
		return c.classifyOnce(ctx, prompt, modelTag)
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordLLMRequest(modelTag, "error", duration, 0, 0)
		c.logger.Warn("classification failed",
			"model", modelTag,
			"kind", apperr.KindOf(err),
			"error", err)
		return nil, err
	}

	c.metrics.RecordLLMRequest(modelTag, "success", duration, result.InputTokens, result.OutputTokens)
	return result, nil
}

func (c *Client) classifyOnce(ctx context.Context, prompt, modelTag string) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	reply, inputTokens, outputTokens, err := c.invoke(callCtx, modelTag, prompt)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	raw, ok := extractJSON(reply)
	if !ok {
		return nil, retry.Permanent(apperr.New(apperr.KindInvalidResponse, "reply contains no JSON object"))
	}
	var payload models.AnalysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, retry.Permanent(apperr.Wrap(err, apperr.KindInvalidResponse, "reply is not valid payload JSON"))
	}
	normalize(&payload, modelTag)

	return &Result{
		Payload:      payload,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      c.PriceFor(modelTag).Cost(inputTokens, outputTokens),
	}, nil
}

// classifyProviderError maps SDK errors onto error kinds: auth failures are
// permanent, rate limits and timeouts transient.
func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.KindLLMTimeout, "provider call timed out")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return retry.Permanent(apperr.Wrap(err, apperr.KindProviderAuth, "provider rejected credentials"))
		case http.StatusTooManyRequests:
			return apperr.Wrap(err, apperr.KindLLMRateLimit, "provider rate limited")
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return retry.Permanent(apperr.Wrap(err, apperr.KindInvalidResponse, "provider rejected request"))
		}
		if apiErr.StatusCode >= 500 {
			return apperr.Wrap(err, apperr.KindLLMTimeout, "provider unavailable")
		}
	}
	return apperr.Wrap(err, apperr.KindLLMTimeout, "provider call failed")
}
