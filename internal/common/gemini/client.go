// internal/common/gemini/client.go

// Package gemini wraps the Google GenAI client with the two calls the pipeline
// makes: JSON content generation and semantic-similarity embeddings.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "match-pipeline/internal/common/errors"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultDimensions     = 768

	// TaskSemanticSimilarity is the embedding task type used for job/profile vectors.
	TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// Generator produces a JSON document from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Dimensions     int
	// Timeout bounds a single API call. Zero leaves it to the caller's context.
	Timeout time.Duration
}

// Client implements Generator and Embedder over the Gemini API backend.
type Client struct {
	models         modelsAPI
	model          string
	embeddingModel string
	dimensions     int32
	timeout        time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(client.Models, cfg), nil
}

func newClient(models modelsAPI, cfg Config) *Client {
	c := &Client{
		models:         models,
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		dimensions:     int32(cfg.Dimensions),
		timeout:        cfg.Timeout,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	if c.dimensions <= 0 {
		c.dimensions = defaultDimensions
	}
	return c
}

// Generate asks for an application/json response and returns the concatenated
// text parts of the first candidate.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", apperrors.NewValidationFailedError("prompt must not be empty")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sys}}}
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", classify(apperrors.NewGenerationFailedError(err), err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		break
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", apperrors.NewResponseInvalidError("gemini api returned empty response")
	}
	return output, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationFailedError("embedding text must not be empty")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	dims := c.dimensions
	resp, err := c.models.EmbedContent(ctx, c.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             TaskSemanticSimilarity,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, classify(apperrors.NewEmbeddingFailedError(err), err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, apperrors.NewEmbeddingFailedError(errors.New("gemini api returned no embedding"))
	}
	return resp.Embeddings[0].Values, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// classify marks client errors other than 429 as non-retryable: resending the
// same request cannot succeed.
func classify(stdErr *apperrors.StandardError, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) &&
		apiErr.Code >= http.StatusBadRequest && apiErr.Code < http.StatusInternalServerError &&
		apiErr.Code != http.StatusTooManyRequests && apiErr.Code != http.StatusRequestTimeout {
		stdErr.Retryable = false
		stdErr.WithMetadata("status", apiErr.Status)
	}
	return stdErr
}
