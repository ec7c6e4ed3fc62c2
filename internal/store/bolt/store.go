package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"radreport-backend/internal/models"
	"radreport-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Compile-time check to ensure BoltStore implements store.ConversationStore
var _ store.ConversationStore = (*BoltStore)(nil)

var conversationsBucket = []byte("conversations")

// conversationRecord is the JSON value stored per conversation. Messages are
// kept inline in the record, which makes removal of a conversation and its
// messages inherently atomic.
type conversationRecord struct {
	ID           string          `json:"id"`
	StudyID      int64           `json:"study_id"`
	StudyCode    string          `json:"study_code"`
	SystemPrompt *string         `json:"system_prompt,omitempty"`
	Messages     []messageRecord `json:"messages"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type messageRecord struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltStore persists conversations in a single local bbolt file. Update
// transactions are serialized by bbolt itself, which gives appends to the
// same conversation the required mutual exclusion.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the bolt database at path and ensures the
// conversations bucket exists.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating conversations bucket: %w", err)
	}
	log.Debug().Str("component", "BoltStore").Str("path", path).Msg("bolt store opened")
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (models.Conversation, error) {
	now := time.Now().UTC()
	rec := conversationRecord{
		ID:           uuid.New().String(),
		StudyID:      arg.StudyID,
		StudyCode:    arg.StudyCode,
		SystemPrompt: arg.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, msg := range arg.InitialMessages {
		rec.Messages = append(rec.Messages, messageRecord{
			ID:        uuid.New().String(),
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: now,
		})
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("error marshaling conversation record: %w", err)
		}
		return tx.Bucket(conversationsBucket).Put([]byte(rec.ID), enc)
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("error storing conversation: %w", err)
	}

	return recordToConversation(rec)
}

func (s *BoltStore) AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs ...models.Message) ([]models.Message, error) {
	key := []byte(conversationID.String())
	var rec conversationRecord
	var start int

	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(conversationsBucket).Get(key)
		if raw == nil {
			return store.ErrNotFound
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("error parsing conversation record: %w", err)
		}

		now := time.Now().UTC()
		start = len(rec.Messages)
		for _, msg := range msgs {
			rec.Messages = append(rec.Messages, messageRecord{
				ID:        uuid.New().String(),
				Role:      string(msg.Role),
				Content:   msg.Content,
				CreatedAt: now,
			})
		}
		rec.UpdatedAt = now

		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("error marshaling conversation record: %w", err)
		}
		return tx.Bucket(conversationsBucket).Put(key, enc)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error appending messages: %w", err)
	}

	appended := make([]models.Message, 0, len(msgs))
	for i := start; i < len(rec.Messages); i++ {
		m, err := recordToMessage(rec.Messages[i], conversationID, i)
		if err != nil {
			return nil, err
		}
		appended = append(appended, m)
	}
	return appended, nil
}

func (s *BoltStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	key := []byte(conversationID.String())
	var rec conversationRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(conversationsBucket).Get(key)
		if raw == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Conversation{}, store.ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("error fetching conversation: %w", err)
	}

	return recordToConversation(rec)
}

func recordToConversation(rec conversationRecord) (models.Conversation, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("error parsing conversation id %q: %w", rec.ID, err)
	}
	conv := models.Conversation{
		ID:           id,
		StudyID:      rec.StudyID,
		StudyCode:    rec.StudyCode,
		SystemPrompt: rec.SystemPrompt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	for i, mr := range rec.Messages {
		m, err := recordToMessage(mr, id, i)
		if err != nil {
			return models.Conversation{}, err
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv, nil
}

func recordToMessage(rec messageRecord, conversationID uuid.UUID, position int) (models.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("error parsing message id %q: %w", rec.ID, err)
	}
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Position:       position,
		Role:           models.Role(rec.Role),
		Content:        rec.Content,
		CreatedAt:      rec.CreatedAt,
	}, nil
}
