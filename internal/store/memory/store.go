package memory

import (
	"context"
	"sync"
	"time"

	"radreport-backend/internal/models"
	"radreport-backend/internal/store"

	"github.com/google/uuid"
)

// Compile-time check to ensure MemoryStore implements store.ConversationStore
var _ store.ConversationStore = (*MemoryStore)(nil)

// MemoryStore keeps conversations in a process-local map. A per-conversation
// mutex serializes appends to the same conversation without making appends to
// different conversations contend; the root mutex only guards map access.
// State does not survive a restart, so this backend is for tests and local
// development only.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
	locks         map[uuid.UUID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		locks:         make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.New(),
		StudyID:      arg.StudyID,
		StudyCode:    arg.StudyCode,
		SystemPrompt: arg.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, msg := range arg.InitialMessages {
		conv.Messages = append(conv.Messages, models.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Position:       i,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      now,
		})
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.locks[conv.ID] = &sync.Mutex{}
	s.mu.Unlock()

	return copyConversation(conv), nil
}

func (s *MemoryStore) AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs ...models.Message) ([]models.Message, error) {
	s.mu.RLock()
	lock, ok := s.locks[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}

	// Serialize the read-modify-write per conversation.
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	appended := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		m := models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Position:       len(conv.Messages),
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      now,
		}
		conv.Messages = append(conv.Messages, m)
		appended = append(appended, m)
	}
	conv.UpdatedAt = now

	return appended, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, store.ErrNotFound
	}
	return copyConversation(conv), nil
}

// copyConversation returns a value copy with its own messages slice so
// callers never alias the store's internal state.
func copyConversation(conv *models.Conversation) models.Conversation {
	out := *conv
	out.Messages = make([]models.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}
