package store

import (
	"context"
	"errors"

	"radreport-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// CreateConversationParams contains parameters for creating a conversation.
// InitialMessages are persisted together with the conversation row as a single
// atomic unit; only Role and Content need to be set, the store assigns ids,
// positions and timestamps.
type CreateConversationParams struct {
	StudyID         int64
	StudyCode       string
	SystemPrompt    *string
	InitialMessages []models.Message
}

// ConversationStore defines the interface for conversation persistence.
// This allows for mocking in tests and switching storage backends.
//
// AppendMessages must serialize concurrent appends to the same conversation:
// two racing calls both land, in some order, with consecutive positions and
// nothing lost. Calls for different conversations must not contend.
type ConversationStore interface {
	// CreateConversation persists a new conversation with a fresh id plus any
	// initial messages, all in one atomic unit.
	CreateConversation(ctx context.Context, arg CreateConversationParams) (models.Conversation, error)

	// AppendMessages adds messages to the end of the conversation's ordered
	// sequence and returns the stored records with ids and positions assigned.
	// Returns ErrNotFound if the conversation id is unknown.
	AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs ...models.Message) ([]models.Message, error)

	// GetConversation returns the conversation and its messages in append order.
	// Returns ErrNotFound if the conversation id is unknown.
	GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error)
}
