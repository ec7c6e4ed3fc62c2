package postgres

import (
	"context"
	"errors"
	"fmt"

	"radreport-backend/internal/models"
	"radreport-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure PostgresStore implements store.ConversationStore
var _ store.ConversationStore = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Messages live in their own table with an explicit position column; the
// UNIQUE constraint backstops the transactional append so racing writers can
// never produce duplicate positions. Deleting a conversation cascades.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id            UUID PRIMARY KEY,
		study_id      BIGINT NOT NULL,
		study_code    TEXT   NOT NULL,
		system_prompt TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		position        INT  NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (conversation_id, position)
	)`,
}

// EnsureSchema creates the conversations and messages tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error ensuring schema: %w", err)
		}
	}
	return nil
}

const createConversation = `-- name: CreateConversation :one
INSERT INTO conversations (id, study_id, study_code, system_prompt)
VALUES ($1, $2, $3, $4)
RETURNING id, study_id, study_code, system_prompt, created_at, updated_at;
`

const insertMessage = `-- name: InsertMessage :one
INSERT INTO messages (id, conversation_id, position, role, content)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at;
`

// CreateConversation inserts the conversation row and its initial messages in
// a single transaction, so a failed insert never leaves a partial first turn.
func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (models.Conversation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var conv models.Conversation
	row := tx.QueryRow(ctx, createConversation, uuid.New(), arg.StudyID, arg.StudyCode, arg.SystemPrompt)
	if err := row.Scan(
		&conv.ID,
		&conv.StudyID,
		&conv.StudyCode,
		&conv.SystemPrompt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return models.Conversation{}, fmt.Errorf("error scanning conversation: %w", err)
	}

	for i, msg := range arg.InitialMessages {
		m := models.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Position:       i,
			Role:           msg.Role,
			Content:        msg.Content,
		}
		if err := tx.QueryRow(ctx, insertMessage, m.ID, m.ConversationID, m.Position, m.Role, m.Content).Scan(&m.CreatedAt); err != nil {
			return models.Conversation{}, fmt.Errorf("error inserting initial message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Conversation{}, fmt.Errorf("error committing transaction: %w", err)
	}

	log.Debug().
		Str("component", "PostgresStore").
		Str("conversation_id", conv.ID.String()).
		Str("study_code", conv.StudyCode).
		Int("initial_messages", len(conv.Messages)).
		Msg("conversation created")
	return conv, nil
}

const lockConversation = `-- name: LockConversation :one
SELECT id FROM conversations
WHERE id = $1
FOR UPDATE;
`

const nextMessagePosition = `-- name: NextMessagePosition :one
SELECT COALESCE(MAX(position) + 1, 0) FROM messages
WHERE conversation_id = $1;
`

const touchConversation = `-- name: TouchConversation :exec
UPDATE conversations SET updated_at = NOW()
WHERE id = $1;
`

// AppendMessages adds messages to the end of the conversation inside a single
// transaction. The row lock on the conversation serializes racing appends to
// the same conversation; appends to different conversations do not contend.
func (s *PostgresStore) AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs ...models.Message) ([]models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, lockConversation, conversationID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error locking conversation: %w", err)
	}

	var next int
	if err := tx.QueryRow(ctx, nextMessagePosition, conversationID).Scan(&next); err != nil {
		return nil, fmt.Errorf("error computing next message position: %w", err)
	}

	appended := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		m := models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Position:       next,
			Role:           msg.Role,
			Content:        msg.Content,
		}
		if err := tx.QueryRow(ctx, insertMessage, m.ID, m.ConversationID, m.Position, m.Role, m.Content).Scan(&m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error inserting message: %w", err)
		}
		appended = append(appended, m)
		next++
	}

	if _, err := tx.Exec(ctx, touchConversation, conversationID); err != nil {
		return nil, fmt.Errorf("error touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	log.Debug().
		Str("component", "PostgresStore").
		Str("conversation_id", conversationID.String()).
		Int("appended", len(appended)).
		Msg("messages appended")
	return appended, nil
}

const getConversation = `-- name: GetConversation :one
SELECT id, study_id, study_code, system_prompt, created_at, updated_at
FROM conversations
WHERE id = $1;
`

const listMessages = `-- name: ListMessages :many
SELECT id, conversation_id, position, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY position ASC;
`

// GetConversation retrieves a conversation and its messages in append order.
// Returns store.ErrNotFound if the conversation does not exist.
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	var conv models.Conversation
	row := s.db.QueryRow(ctx, getConversation, conversationID)
	if err := row.Scan(
		&conv.ID,
		&conv.StudyID,
		&conv.StudyCode,
		&conv.SystemPrompt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, store.ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("error scanning conversation: %w", err)
	}

	rows, err := s.db.Query(ctx, listMessages, conversationID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.Position,
			&m.Role,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return models.Conversation{}, fmt.Errorf("error scanning message row: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}

	if err = rows.Err(); err != nil {
		return models.Conversation{}, fmt.Errorf("error iterating message rows: %w", err)
	}

	return conv, nil
}
