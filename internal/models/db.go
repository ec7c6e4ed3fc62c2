package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single turn fragment within a conversation.
// Position is the zero-based append order and is assigned by the store.
type Message struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	Position       int       `db:"position"`
	Role           Role      `db:"role"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

// Conversation represents a stored conversation and its ordered messages.
// The study reference (StudyID, StudyCode) is immutable after creation.
type Conversation struct {
	ID           uuid.UUID `db:"id"`
	StudyID      int64     `db:"study_id"`
	StudyCode    string    `db:"study_code"`
	SystemPrompt *string   `db:"system_prompt"` // Use pointer for nullable text
	Messages     []Message `db:"-"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
