package services

import (
	"context"

	"radreport-backend/internal/config"
	"radreport-backend/internal/models"
)

// CredentialChecker verifies that the generation backend accepts the given
// API key.
type CredentialChecker func(ctx context.Context, apiKey string) error

// HealthService reports configuration presence and generation credential
// state.
type HealthService struct {
	cfg             *config.Config
	checkCredential CredentialChecker
}

// NewHealthService creates a new HealthService. The checker may be nil, in
// which case the credential probe is skipped and reported as valid.
func NewHealthService(cfg *config.Config, checker CredentialChecker) *HealthService {
	return &HealthService{cfg: cfg, checkCredential: checker}
}

// Check builds the health report. It never returns an error; problems show
// up in the response body instead, so the endpoint itself stays available.
func (s *HealthService) Check(ctx context.Context) models.HealthResponse {
	if s.cfg == nil {
		return models.HealthResponse{
			Status: "unhealthy",
			Error:  "configuration not loaded",
		}
	}

	configStatus := map[string]bool{
		"RAG_CORPUS":           s.cfg.RagCorpus != "",
		"MODEL_ID":             s.cfg.ModelID != "",
		"GOOGLE_CLOUD_API_KEY": len(s.cfg.GoogleAPIKey) > 10,
	}

	apiStatus := "api_key_valid"
	if s.checkCredential != nil {
		if err := s.checkCredential(ctx, s.cfg.GoogleAPIKey); err != nil {
			apiStatus = "api_key_invalid: " + err.Error()
		}
	}

	return models.HealthResponse{
		Status:    "healthy",
		Config:    configStatus,
		APIStatus: apiStatus,
		Model:     s.cfg.ModelID,
		RagCorpus: s.cfg.RagCorpus,
	}
}
