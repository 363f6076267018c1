// Package oracle wraps the generative backend: a thin retrying client over
// the Gemini API plus stateful, forkable conversation sessions with
// structured-output contracts.
package oracle

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	logx "github.com/crmlens/engine/pkg/logger"
)

// Generator is the minimal generation surface the sessions need. The real
// implementation is Client; tests substitute fakes.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds backend credentials, sourced from the environment.
type Config struct {
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

// Client is the shared Gemini client. Construct it once at the composition
// root and inject it everywhere; it is safe for concurrent use.
type Client struct {
	inner *genai.Client
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{inner: client}, nil
}

// GenerateContent calls the backend with one internal retry on transient
// failure. Errors surviving the retry indicate an unreachable backend and
// are reported to the caller as-is.
func (c *Client) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.inner.Models.GenerateContent(ctx, model, contents, cfg)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	logx.Warn().Err(err).Str("model", model).Msg("generation failed, retrying once")
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	resp, err = c.inner.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generative backend unreachable: %w", err)
	}
	return resp, nil
}

// StructuredConfig assembles a generation config for structured JSON output.
// Temperature near zero and a pinned seed keep drafting deterministic; a
// positive thinking budget switches the model into its deliberative mode for
// repair threads.
func StructuredConfig(system string, schema *genai.Schema, temperature float32, seed int32, thinkingBudget int32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		TopP:             genai.Ptr(float32(0)),
		Seed:             genai.Ptr(seed),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		SafetySettings: []*genai.SafetySetting{
			{
				Category:  genai.HarmCategoryDangerousContent,
				Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
			},
		},
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if thinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(thinkingBudget),
		}
	}
	return cfg
}
