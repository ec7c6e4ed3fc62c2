// Package gemini adapts the Google GenAI SDK for report generation. Requests
// run against the Vertex AI backend with retrieval grounding on a RAG corpus.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"

	"radreport-backend/internal/models"
)

// Config carries the credentials and generation targets for the client.
type Config struct {
	APIKey    string
	ModelID   string
	RagCorpus string
}

// GenerationError wraps failures returned by the generation backend so
// callers can surface the provider detail.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating model response: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Client generates conversation responses through the Vertex AI backend.
type Client struct {
	client    *genai.Client
	modelID   string
	ragCorpus string
}

// NewClient creates a client bound to the configured model and RAG corpus.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendVertexAI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{
		client:    client,
		modelID:   cfg.ModelID,
		ragCorpus: cfg.RagCorpus,
	}, nil
}

// Generate streams a completion for the given history and returns the
// accumulated response text. Failures from the backend come back as a
// *GenerationError.
func (c *Client) Generate(ctx context.Context, messages []models.Message) (string, error) {
	contents := toContents(messages)

	var sb strings.Builder
	for chunk, err := range c.client.Models.GenerateContentStream(ctx, c.modelID, contents, c.generationConfig()) {
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", &GenerationError{Err: err}
		}
		// Safety-filtered or empty chunks carry no content parts.
		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil || len(chunk.Candidates[0].Content.Parts) == 0 {
			continue
		}
		sb.WriteString(chunk.Text())
	}

	return sb.String(), nil
}

// toContents converts stored messages into the request format. The backend
// only distinguishes user and model turns, so system prompts travel as user
// content at the head of the history.
func toContents(messages []models.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return contents
}

func (c *Client) generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](1),
		TopP:            genai.Ptr[float32](0.95),
		Seed:            genai.Ptr[int32](0),
		MaxOutputTokens: 65535,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
		},
		Tools: []*genai.Tool{
			{
				Retrieval: &genai.Retrieval{
					VertexRAGStore: &genai.VertexRAGStore{
						RAGResources: []*genai.VertexRAGStoreRAGResource{
							{RAGCorpus: c.ragCorpus},
						},
					},
				},
			},
		},
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](-1),
		},
	}
}

// ValidateAPIKey checks whether a client can be constructed with the given
// key. It does not issue a generation request.
func ValidateAPIKey(ctx context.Context, apiKey string) error {
	if _, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendVertexAI,
		APIKey:  apiKey,
	}); err != nil {
		return err
	}
	return nil
}
