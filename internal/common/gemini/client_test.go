// internal/common/gemini/client_test.go
package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	apperrors "match-pipeline/internal/common/errors"
)

type fakeModels struct {
	generateResp *genai.GenerateContentResponse
	embedResp    *genai.EmbedContentResponse
	err          error

	lastModel    string
	lastGenCfg   *genai.GenerateContentConfig
	lastEmbedCfg *genai.EmbedContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastGenCfg = cfg
	return f.generateResp, f.err
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.lastModel = model
	f.lastEmbedCfg = cfg
	return f.embedResp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

// ==========================
// Generate
// ==========================

func TestGenerate_ReturnsJoinedText(t *testing.T) {
	models := &fakeModels{generateResp: textResponse(`["a",`, ` "b"]`)}
	c := newClient(models, Config{Model: "gemini-test"})

	out, err := c.Generate(context.Background(), "be terse", "notes please")
	require.NoError(t, err)

	assert.Equal(t, `["a", "b"]`, out)
	assert.Equal(t, "gemini-test", models.lastModel)
	assert.Equal(t, "application/json", models.lastGenCfg.ResponseMIMEType)
	require.NotNil(t, models.lastGenCfg.SystemInstruction)
	assert.Equal(t, "be terse", models.lastGenCfg.SystemInstruction.Parts[0].Text)
}

func TestGenerate_EmptyResponseIsInvalid(t *testing.T) {
	c := newClient(&fakeModels{generateResp: textResponse("  ")}, Config{})

	_, err := c.Generate(context.Background(), "", "prompt")
	assert.Equal(t, apperrors.ErrCodeResponseInvalid, apperrors.CodeOf(err))
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"server error", genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}, true},
		{"rate limited", genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}, true},
		{"bad request", genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}, false},
		{"network", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeModels{err: tt.err}, Config{})
			_, err := c.Generate(context.Background(), "", "prompt")

			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeGenerationFailed, apperrors.CodeOf(err))
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

// ==========================
// Embed
// ==========================

func TestEmbed_UsesSemanticSimilarityAndDimensions(t *testing.T) {
	models := &fakeModels{embedResp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2}}},
	}}
	c := newClient(models, Config{EmbeddingModel: "embed-test"})

	vec, err := c.Embed(context.Background(), "Senior Go engineer")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, "embed-test", models.lastModel)
	assert.Equal(t, TaskSemanticSimilarity, models.lastEmbedCfg.TaskType)
	require.NotNil(t, models.lastEmbedCfg.OutputDimensionality)
	assert.Equal(t, int32(768), *models.lastEmbedCfg.OutputDimensionality)
	assert.Equal(t, "embed-test", c.EmbeddingModel())
}

func TestEmbed_Errors(t *testing.T) {
	c := newClient(&fakeModels{embedResp: &genai.EmbedContentResponse{}}, Config{})

	_, err := c.Embed(context.Background(), "text")
	assert.Equal(t, apperrors.ErrCodeEmbeddingFailed, apperrors.CodeOf(err))

	_, err = c.Embed(context.Background(), "   ")
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}
