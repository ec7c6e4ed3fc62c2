package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"radreport-backend/internal/gemini"
	"radreport-backend/internal/models"
	"radreport-backend/internal/prompts"
	"radreport-backend/internal/report"
	"radreport-backend/internal/services"
	"radreport-backend/internal/store"
	"radreport-backend/pkg/httputil"
)

// ConversationService defines the interface expected from the conversation
// service. This promotes loose coupling and testability.
type ConversationService interface {
	StartConversation(ctx context.Context, req models.StartConversationRequest) (*models.StartConversationResponse, error)
	ContinueConversation(ctx context.Context, conversationID uuid.UUID, req models.ContinueConversationRequest) (*models.ContinueConversationResponse, error)
	GetConversationHistory(ctx context.Context, conversationID uuid.UUID) (*models.ConversationHistoryResponse, error)
}

// ConversationHandlers handles HTTP requests for report conversations.
type ConversationHandlers struct {
	service ConversationService
}

// NewConversationHandlers creates a new ConversationHandlers instance.
func NewConversationHandlers(service ConversationService) *ConversationHandlers {
	return &ConversationHandlers{
		service: service,
	}
}

// HandleStartConversation handles the POST /conversation/start request.
func (h *ConversationHandlers) HandleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req models.StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.StudyCode == "" {
		httputil.RespondError(w, http.StatusBadRequest, "study_code is required")
		return
	}

	resp, err := h.service.StartConversation(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("study_code", req.StudyCode).Msg("Start conversation failed")
		respondServiceError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleContinueConversation handles the POST /conversation/{conversationID}/continue request.
func (h *ConversationHandlers) HandleContinueConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDFromURL(w, r)
	if !ok {
		return
	}

	var req models.ContinueConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Question == "" {
		httputil.RespondError(w, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := h.service.ContinueConversation(r.Context(), conversationID, req)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("Continue conversation failed")
		respondServiceError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetConversation handles the GET /conversation/{conversationID} request.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDFromURL(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GetConversationHistory(r.Context(), conversationID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// conversationIDFromURL parses the conversation ID path parameter. IDs that
// do not parse cannot name a stored conversation, so they report not found
// rather than bad request.
func conversationIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
		return uuid.Nil, false
	}
	return conversationID, true
}

// respondServiceError maps service errors to HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	var genErr *gemini.GenerationError
	var parseErr *report.ParseError

	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found") // 404
	case errors.Is(err, prompts.ErrMetricsNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Study metrics not found") // 404
	case errors.Is(err, services.ErrStudyMismatch):
		httputil.RespondError(w, http.StatusForbidden, "Study reference mismatch") // 403
	case errors.As(err, &genErr):
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate response: "+genErr.Err.Error()) // 500
	case errors.As(err, &parseErr):
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to parse model response: "+parseErr.Err.Error()) // 500
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "An internal error occurred") // 500
	}
}
