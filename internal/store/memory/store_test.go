package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radreport-backend/internal/models"
	"radreport-backend/internal/store"
)

func seedParams() store.CreateConversationParams {
	return store.CreateConversationParams{
		StudyID:   7,
		StudyCode: "STUDY-001",
		InitialMessages: []models.Message{
			{Role: models.RoleSystem, Content: "system prompt"},
			{Role: models.RoleUser, Content: "task and metrics"},
			{Role: models.RoleAssistant, Content: "generated report"},
		},
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, int64(7), created.StudyID)
	assert.Equal(t, "STUDY-001", created.StudyCode)
	require.Len(t, created.Messages, 3)

	got, err := s.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	for i, m := range got.Messages {
		assert.Equal(t, i, m.Position)
		assert.Equal(t, created.ID, m.ConversationID)
	}
	assert.Equal(t, models.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, models.RoleUser, got.Messages[1].Role)
	assert.Equal(t, models.RoleAssistant, got.Messages[2].Role)
}

func TestMemoryStore_TwoStartsNeverCollide(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)
	second, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestMemoryStore_AppendMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)

	appended, err := s.AppendMessages(ctx, created.ID,
		models.Message{Role: models.RoleUser, Content: "follow-up"},
		models.Message{Role: models.RoleAssistant, Content: "answer"},
	)
	require.NoError(t, err)
	require.Len(t, appended, 2)
	assert.Equal(t, 3, appended[0].Position)
	assert.Equal(t, 4, appended[1].Position)

	got, err := s.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 5)
	assert.Equal(t, "follow-up", got.Messages[3].Content)
	assert.Equal(t, "answer", got.Messages[4].Content)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetConversation(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AppendMessages(ctx, uuid.New(),
		models.Message{Role: models.RoleUser, Content: "hello"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.AppendMessages(ctx, created.ID,
				models.Message{Role: models.RoleUser, Content: fmt.Sprintf("question-%d", n)},
				models.Message{Role: models.RoleAssistant, Content: fmt.Sprintf("answer-%d", n)},
			)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3+2*workers)

	// No racer may be lost and positions must stay consecutive.
	for i, m := range got.Messages {
		assert.Equal(t, i, m.Position)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateConversation(ctx, seedParams())
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	got.Messages[0].Content = "tampered"

	reread, err := s.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "system prompt", reread.Messages[0].Content)
}
