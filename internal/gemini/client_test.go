package gemini

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"radreport-backend/internal/models"
)

func TestToContents(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "You analyze brain tumor segmentations."},
		{Role: models.RoleUser, Content: "Write the report."},
		{Role: models.RoleAssistant, Content: "Here is the report."},
	}

	contents := toContents(messages)
	require.Len(t, contents, 3)

	// System prompts travel as user content; only assistant turns map to the
	// model role.
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleUser), contents[1].Role)
	assert.Equal(t, string(genai.RoleModel), contents[2].Role)

	for i, m := range messages {
		require.NotEmpty(t, contents[i].Parts)
		assert.Equal(t, m.Content, contents[i].Parts[0].Text)
	}
}

func TestGenerationConfig(t *testing.T) {
	c := &Client{modelID: "gemini-test", ragCorpus: "projects/test/locations/us/ragCorpora/1"}
	cfg := c.generationConfig()

	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(1), *cfg.Temperature)
	require.NotNil(t, cfg.TopP)
	assert.Equal(t, float32(0.95), *cfg.TopP)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int32(0), *cfg.Seed)
	assert.Equal(t, int32(65535), cfg.MaxOutputTokens)

	require.Len(t, cfg.SafetySettings, 4)
	for _, s := range cfg.SafetySettings {
		assert.Equal(t, genai.HarmBlockThresholdOff, s.Threshold)
	}

	require.Len(t, cfg.Tools, 1)
	require.NotNil(t, cfg.Tools[0].Retrieval)
	require.NotNil(t, cfg.Tools[0].Retrieval.VertexRAGStore)
	require.Len(t, cfg.Tools[0].Retrieval.VertexRAGStore.RAGResources, 1)
	assert.Equal(t, "projects/test/locations/us/ragCorpora/1",
		cfg.Tools[0].Retrieval.VertexRAGStore.RAGResources[0].RAGCorpus)

	require.NotNil(t, cfg.ThinkingConfig)
	require.NotNil(t, cfg.ThinkingConfig.ThinkingBudget)
	assert.Equal(t, int32(-1), *cfg.ThinkingConfig.ThinkingBudget)
}

func TestGenerationError(t *testing.T) {
	inner := errors.New("stream reset by peer")
	genErr := &GenerationError{Err: inner}

	assert.Equal(t, "generating model response: stream reset by peer", genErr.Error())
	assert.ErrorIs(t, genErr, inner)

	wrapped := fmt.Errorf("start conversation: %w", genErr)
	var target *GenerationError
	require.ErrorAs(t, wrapped, &target)
	assert.Same(t, genErr, target)
}
