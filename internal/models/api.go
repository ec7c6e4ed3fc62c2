package models

// --- Request Structs ---

// StartConversationRequest defines the expected body for starting a conversation.
type StartConversationRequest struct {
	StudyID      int64   `json:"study_id"`
	StudyCode    string  `json:"study_code"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// ContinueConversationRequest defines the expected body for continuing a conversation.
// The study reference must match the one the conversation was started with.
type ContinueConversationRequest struct {
	Question  string `json:"question"`
	StudyID   int64  `json:"study_id"`
	StudyCode string `json:"study_code"`
}

// --- Response Structs ---

// MessageResponse is the wire representation of a single conversation message.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StartConversationResponse defines the response body for a started conversation.
type StartConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	StudyID        int64  `json:"study_id"`
}

// ContinueConversationResponse defines the response body for a continued
// conversation. Messages carries the full history including the new turn.
type ContinueConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Response       string            `json:"response"`
	Messages       []MessageResponse `json:"messages"`
	StudyID        int64             `json:"study_id"`
}

// ConversationHistoryResponse defines the response body for fetching a conversation.
type ConversationHistoryResponse struct {
	ConversationID string            `json:"conversation_id"`
	StudyID        int64             `json:"study_id"`
	Messages       []MessageResponse `json:"messages"`
}

// HealthResponse reports configuration presence and upstream credential state.
// Status is "healthy" or "unhealthy"; the endpoint itself always returns 200.
type HealthResponse struct {
	Status    string          `json:"status"`
	Config    map[string]bool `json:"config,omitempty"`
	APIStatus string          `json:"api_status,omitempty"`
	Model     string          `json:"model,omitempty"`
	RagCorpus string          `json:"rag_corpus,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
