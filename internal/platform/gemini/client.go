// Package gemini implements the gateway.Gateway interface using Google's
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/gateway"
)

// baseRetryDelay is the starting delay for exponential backoff between
// retries of transient failures.
const baseRetryDelay = 2 * time.Second

// Client implements gateway.Gateway on the Gemini API.
type Client struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// NewClient creates a new Gemini-backed gateway client.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing API key, model name, and other settings
//
// Returns:
//   - A properly initialized Client or an error if initialization fails
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", gateway.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", gateway.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			gateway.ErrInvalidConfig, err)
	}

	return &Client{
		logger: logger,
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Generate implements gateway.Gateway. Transient API errors are retried
// with exponential backoff and jitter up to config.MaxRetries times;
// permanent errors (safety blocks, malformed responses) are returned
// immediately.
func (c *Client) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: request has no messages", gateway.ErrInvalidResponse)
	}

	contents, genCfg := toGenaiRequest(req)

	maxRetries := c.config.MaxRetries
	if maxRetries < 0 {
		c.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 2)
		maxRetries = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1 // 1-based for logging
		c.logger.DebugContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1,
			"model", c.model)

		text, err := c.generateOnce(ctx, contents, genCfg)
		if err == nil {
			c.logger.DebugContext(ctx, "Gemini API call successful", "attempt", attemptNum)
			return text, nil
		}

		c.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		// Permanent errors are never retried.
		if errors.Is(err, gateway.ErrContentBlocked) || errors.Is(err, gateway.ErrInvalidResponse) {
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				gateway.ErrTransientFailure, maxRetries, err)
		}

		// Exponential backoff with jitter:
		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoff := float64(baseRetryDelay) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitterFactor)

		c.logger.InfoContext(ctx, "retrying Gemini API call after delay",
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", gateway.ErrTransientFailure, ctx.Err())
		}
	}
}

// generateOnce makes a single API call, bounded by the configured request
// timeout, and maps the response to text or a gateway error.
func (c *Client) generateOnce(
	ctx context.Context,
	contents []*genai.Content,
	genCfg *genai.GenerateContentConfig,
) (string, error) {
	callCtx := ctx
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	resp, err := c.client.Models.GenerateContent(callCtx, c.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", gateway.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: blocked by safety filters", gateway.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty content in response", gateway.ErrInvalidResponse)
	}
	return text, nil
}

// toGenaiRequest maps a gateway request onto the genai API shape: system
// messages become the system instruction, user and assistant turns become
// the content history.
func toGenaiRequest(req gateway.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	genCfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	var systemParts []*genai.Part
	for _, msg := range req.Messages {
		switch msg.Role {
		case gateway.RoleSystem:
			systemParts = append(systemParts, genai.NewPartFromText(msg.Content))
		case gateway.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(systemParts) > 0 {
		genCfg.SystemInstruction = &genai.Content{Parts: systemParts}
	}

	// The API requires at least one content turn; a system-only request
	// (welcome protocol) sends a minimal user turn to trigger generation.
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("Begin.", genai.RoleUser))
	}

	return contents, genCfg
}
