package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"radreport-backend/internal/gemini"
	"radreport-backend/internal/models"
	"radreport-backend/internal/prompts"
	"radreport-backend/internal/report"
	"radreport-backend/internal/store"
	"radreport-backend/internal/store/memory"
)

// TestMain ensures no goroutines leak across the service tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Fakes ---

type fakeGenerator struct {
	mu        sync.Mutex
	response  string
	err       error
	histories [][]models.Message
}

func (f *fakeGenerator) Generate(_ context.Context, messages []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := make([]models.Message, len(messages))
	copy(history, messages)
	f.histories = append(f.histories, history)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

type fakeReportWriter struct {
	mu     sync.Mutex
	err    error
	bodies map[string]string
}

func (f *fakeReportWriter) WriteReport(_ context.Context, studyCode, body string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	if f.bodies == nil {
		f.bodies = make(map[string]string)
	}
	f.bodies[studyCode] = body
	return "studies/" + studyCode + "/report.md", "studies/" + studyCode + "/report.pdf", nil
}

func (f *fakeReportWriter) body(studyCode string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[studyCode]
	return body, ok
}

// countingStore tracks how often the service touches the store so tests can
// assert that failures persist nothing.
type countingStore struct {
	store.ConversationStore
	creates atomic.Int32
	appends atomic.Int32
}

func (c *countingStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (models.Conversation, error) {
	c.creates.Add(1)
	return c.ConversationStore.CreateConversation(ctx, arg)
}

func (c *countingStore) AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs ...models.Message) ([]models.Message, error) {
	c.appends.Add(1)
	return c.ConversationStore.AppendMessages(ctx, conversationID, msgs...)
}

// --- Environment ---

type serviceEnv struct {
	svc     *ConversationService
	store   *countingStore
	gen     *fakeGenerator
	reports *fakeReportWriter
}

// newServiceEnv wires the service against a memory store, a fake generator,
// and on-disk prompt templates plus metrics for STUDY-001.
func newServiceEnv(t *testing.T, gen *fakeGenerator) *serviceEnv {
	t.Helper()

	promptsDir := t.TempDir()
	storageDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(promptsDir, "system_prompt.txt"),
		[]byte("default system prompt\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(promptsDir, "report_task.txt"),
		[]byte("write the report\n"), 0o644))

	studyDir := filepath.Join(storageDir, "studies", "STUDY-001")
	require.NoError(t, os.MkdirAll(studyDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(studyDir, "metrics.json"),
		[]byte(`{"volume_cc":12.5}`), 0o644))

	st := &countingStore{ConversationStore: memory.NewMemoryStore()}
	reports := &fakeReportWriter{}
	svc := NewConversationService(st, gen, prompts.NewAssembler(promptsDir, storageDir), reports, nil)

	return &serviceEnv{svc: svc, store: st, gen: gen, reports: reports}
}

func (e *serviceEnv) seedConversation(t *testing.T) models.Conversation {
	t.Helper()
	conv, err := e.store.CreateConversation(context.Background(), store.CreateConversationParams{
		StudyID:   7,
		StudyCode: "STUDY-001",
		InitialMessages: []models.Message{
			{Role: models.RoleSystem, Content: "default system prompt"},
			{Role: models.RoleUser, Content: "write the report"},
			{Role: models.RoleAssistant, Content: "initial report"},
		},
	})
	require.NoError(t, err)
	e.store.creates.Store(0)
	return conv
}

// --- Start ---

func TestStartConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the full first turn", func(t *testing.T) {
		raw := "```json\n[{\"report_md\": \"# Report\"}]\n```"
		env := newServiceEnv(t, &fakeGenerator{response: raw})

		resp, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), resp.StudyID)

		conversationID, err := uuid.Parse(resp.ConversationID)
		require.NoError(t, err)

		conv, err := env.store.GetConversation(ctx, conversationID)
		require.NoError(t, err)
		require.Len(t, conv.Messages, 3)
		assert.Equal(t, models.RoleSystem, conv.Messages[0].Role)
		assert.Equal(t, "default system prompt", conv.Messages[0].Content)
		assert.Equal(t, models.RoleUser, conv.Messages[1].Role)
		assert.Contains(t, conv.Messages[1].Content, "Study Metrics Data:")
		assert.Equal(t, models.RoleAssistant, conv.Messages[2].Role)
		assert.Equal(t, raw, conv.Messages[2].Content)

		body, ok := env.reports.body("STUDY-001")
		require.True(t, ok)
		assert.Equal(t, "# Report", body)
	})

	t.Run("two starts yield distinct conversations", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: `[{"report_md": "# R"}]`})
		req := models.StartConversationRequest{StudyID: 7, StudyCode: "STUDY-001"}

		first, err := env.svc.StartConversation(ctx, req)
		require.NoError(t, err)
		second, err := env.svc.StartConversation(ctx, req)
		require.NoError(t, err)

		assert.NotEqual(t, first.ConversationID, second.ConversationID)
	})

	t.Run("caller system prompt overrides the template", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: `[{"report_md": "# R"}]`})
		custom := "Answer tersely."

		resp, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:      7,
			StudyCode:    "STUDY-001",
			SystemPrompt: &custom,
		})
		require.NoError(t, err)

		conv, err := env.store.GetConversation(ctx, uuid.MustParse(resp.ConversationID))
		require.NoError(t, err)
		assert.Equal(t, custom, conv.Messages[0].Content)
	})

	t.Run("unknown study persists nothing", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: `[{"report_md": "# R"}]`})

		_, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "NO-SUCH-STUDY",
		})
		require.ErrorIs(t, err, prompts.ErrMetricsNotFound)
		assert.Zero(t, env.store.creates.Load())
		assert.Zero(t, env.gen.callCount())
	})

	t.Run("generation failure persists nothing", func(t *testing.T) {
		genErr := &gemini.GenerationError{Err: errors.New("backend quota exhausted")}
		env := newServiceEnv(t, &fakeGenerator{err: genErr})

		_, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.Error(t, err)

		var got *gemini.GenerationError
		require.ErrorAs(t, err, &got)
		assert.Zero(t, env.store.creates.Load())
		_, ok := env.reports.body("STUDY-001")
		assert.False(t, ok)
	})

	t.Run("unparseable response persists nothing", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "the model rambled instead of returning JSON"})

		_, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.Error(t, err)

		var parseErr *report.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Zero(t, env.store.creates.Load())
	})

	t.Run("unexpected json shape stores the raw response", func(t *testing.T) {
		raw := `{"summary": "valid json, wrong shape"}`
		env := newServiceEnv(t, &fakeGenerator{response: raw})

		resp, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.NoError(t, err)

		body, ok := env.reports.body("STUDY-001")
		require.True(t, ok)
		assert.Equal(t, raw, body)

		conv, err := env.store.GetConversation(ctx, uuid.MustParse(resp.ConversationID))
		require.NoError(t, err)
		assert.Equal(t, raw, conv.Messages[2].Content)
	})

	t.Run("report write failure persists nothing", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: `[{"report_md": "# R"}]`})
		env.reports.err = errors.New("disk full")

		_, err := env.svc.StartConversation(ctx, models.StartConversationRequest{
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.Error(t, err)
		assert.Zero(t, env.store.creates.Load())
	})
}

// --- Continue ---

func TestContinueConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("appends the question and response", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "because of the volume ratio"})
		conv := env.seedConversation(t)

		resp, err := env.svc.ContinueConversation(ctx, conv.ID, models.ContinueConversationRequest{
			Question:  "Why is the tumor core so large?",
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.NoError(t, err)
		assert.Equal(t, conv.ID.String(), resp.ConversationID)
		assert.Equal(t, "because of the volume ratio", resp.Response)
		require.Len(t, resp.Messages, 5)
		assert.Equal(t, "user", resp.Messages[3].Role)
		assert.Equal(t, "Why is the tumor core so large?", resp.Messages[3].Content)
		assert.Equal(t, "assistant", resp.Messages[4].Role)
		assert.Equal(t, "because of the volume ratio", resp.Messages[4].Content)

		stored, err := env.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, stored.Messages, 5)

		// The generator must see the prior history plus the new question.
		require.Len(t, env.gen.histories, 1)
		history := env.gen.histories[0]
		require.Len(t, history, 4)
		assert.Equal(t, "Why is the tumor core so large?", history[3].Content)
	})

	t.Run("study id mismatch is rejected before generating", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "unused"})
		conv := env.seedConversation(t)

		_, err := env.svc.ContinueConversation(ctx, conv.ID, models.ContinueConversationRequest{
			Question:  "Why?",
			StudyID:   8,
			StudyCode: "STUDY-001",
		})
		require.ErrorIs(t, err, ErrStudyMismatch)
		assert.Zero(t, env.gen.callCount())

		stored, err := env.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Messages, 3)
	})

	t.Run("study code mismatch is rejected", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "unused"})
		conv := env.seedConversation(t)

		_, err := env.svc.ContinueConversation(ctx, conv.ID, models.ContinueConversationRequest{
			Question:  "Why?",
			StudyID:   7,
			StudyCode: "STUDY-OTHER",
		})
		require.ErrorIs(t, err, ErrStudyMismatch)
	})

	t.Run("unknown conversation yields not found", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "unused"})

		_, err := env.svc.ContinueConversation(ctx, uuid.New(), models.ContinueConversationRequest{
			Question:  "Why?",
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("generation failure appends nothing", func(t *testing.T) {
		genErr := &gemini.GenerationError{Err: errors.New("stream reset")}
		env := newServiceEnv(t, &fakeGenerator{err: genErr})
		conv := env.seedConversation(t)

		_, err := env.svc.ContinueConversation(ctx, conv.ID, models.ContinueConversationRequest{
			Question:  "Why?",
			StudyID:   7,
			StudyCode: "STUDY-001",
		})
		require.Error(t, err)
		assert.Zero(t, env.store.appends.Load())

		stored, err := env.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Messages, 3)
	})

	t.Run("concurrent continues all land", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{response: "concurrent answer"})
		conv := env.seedConversation(t)

		const workers = 10
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := env.svc.ContinueConversation(ctx, conv.ID, models.ContinueConversationRequest{
					Question:  fmt.Sprintf("question-%d", n),
					StudyID:   7,
					StudyCode: "STUDY-001",
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		stored, err := env.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, stored.Messages, 3+2*workers)

		// Every question landed exactly once, with consecutive positions.
		questions := make(map[string]int)
		for i, m := range stored.Messages {
			assert.Equal(t, i, m.Position)
			if m.Role == models.RoleUser && i >= 3 {
				questions[m.Content]++
			}
		}
		require.Len(t, questions, workers)
		for q, count := range questions {
			assert.Equal(t, 1, count, "question %q stored more than once", q)
		}
	})
}

// --- History ---

func TestGetConversationHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("maps stored messages in order", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{})
		conv := env.seedConversation(t)

		resp, err := env.svc.GetConversationHistory(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID.String(), resp.ConversationID)
		assert.Equal(t, int64(7), resp.StudyID)
		require.Len(t, resp.Messages, 3)
		assert.Equal(t, "system", resp.Messages[0].Role)
		assert.Equal(t, "user", resp.Messages[1].Role)
		assert.Equal(t, "assistant", resp.Messages[2].Role)
		assert.Equal(t, "initial report", resp.Messages[2].Content)
	})

	t.Run("unknown conversation yields not found", func(t *testing.T) {
		env := newServiceEnv(t, &fakeGenerator{})

		_, err := env.svc.GetConversationHistory(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
