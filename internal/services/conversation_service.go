package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"radreport-backend/internal/models"
	"radreport-backend/internal/notify"
	"radreport-backend/internal/prompts"
	"radreport-backend/internal/report"
	"radreport-backend/internal/store"
)

// ErrStudyMismatch indicates that the study reference in a request does not
// match the study the conversation was started for.
var ErrStudyMismatch = errors.New("study reference mismatch")

// Generator produces a model response for a conversation history.
type Generator interface {
	Generate(ctx context.Context, messages []models.Message) (string, error)
}

// ReportWriter persists a report body for a study and returns the paths of
// the written Markdown and PDF files.
type ReportWriter interface {
	WriteReport(ctx context.Context, studyCode, body string) (string, string, error)
}

// ConversationService handles conversation-related business logic: seeding a
// new report conversation, continuing it with follow-up questions, and
// reading its history back.
type ConversationService struct {
	store     store.ConversationStore
	generator Generator
	assembler *prompts.Assembler
	reports   ReportWriter
	notifier  *notify.Notifier
}

// NewConversationService creates a new ConversationService. The notifier may
// be nil, in which case report notifications are skipped.
func NewConversationService(
	st store.ConversationStore,
	generator Generator,
	assembler *prompts.Assembler,
	reports ReportWriter,
	notifier *notify.Notifier,
) *ConversationService {
	return &ConversationService{
		store:     st,
		generator: generator,
		assembler: assembler,
		reports:   reports,
		notifier:  notifier,
	}
}

// StartConversation seeds a conversation for a study, generates the initial
// report, writes the report artifacts to disk, and persists the full opening
// exchange. Nothing is persisted when generation, extraction, or the report
// write fails.
func (s *ConversationService) StartConversation(ctx context.Context, req models.StartConversationRequest) (*models.StartConversationResponse, error) {
	messages, err := s.assembler.Assemble(req.StudyCode, req.SystemPrompt)
	if err != nil {
		return nil, err
	}

	responseText, err := s.generator.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	body, err := report.ExtractReport(responseText)
	if err != nil {
		return nil, err
	}

	mdPath, pdfPath, err := s.reports.WriteReport(ctx, req.StudyCode, body)
	if err != nil {
		return nil, fmt.Errorf("failed to write report for study %s: %w", req.StudyCode, err)
	}

	// The conversation keeps the raw model response; the extracted body only
	// lives in the report files.
	messages = append(messages, models.Message{
		Role:    models.RoleAssistant,
		Content: responseText,
	})

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		StudyID:         req.StudyID,
		StudyCode:       req.StudyCode,
		SystemPrompt:    req.SystemPrompt,
		InitialMessages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation in store: %w", err)
	}

	if err := s.notifier.ReportReady(ctx, req.StudyCode, mdPath, pdfPath); err != nil {
		log.Warn().Err(err).Str("study_code", req.StudyCode).Msg("Failed to send report notification")
	}

	log.Info().
		Str("conversation_id", conv.ID.String()).
		Str("study_code", req.StudyCode).
		Str("report_md", mdPath).
		Msg("Conversation started")

	return &models.StartConversationResponse{
		ConversationID: conv.ID.String(),
		StudyID:        conv.StudyID,
	}, nil
}

// ContinueConversation appends a follow-up question to an existing
// conversation and generates the next response against the full history. The
// question and response are persisted together only after generation
// succeeds.
func (s *ConversationService) ContinueConversation(ctx context.Context, conversationID uuid.UUID, req models.ContinueConversationRequest) (*models.ContinueConversationResponse, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation from store: %w", err)
	}

	if conv.StudyID != req.StudyID || conv.StudyCode != req.StudyCode {
		return nil, ErrStudyMismatch
	}

	userMessage := models.Message{
		Role:    models.RoleUser,
		Content: req.Question,
	}

	// Generate against a copy of the history so the stored messages are never
	// mutated before persistence succeeds.
	history := make([]models.Message, 0, len(conv.Messages)+1)
	history = append(history, conv.Messages...)
	history = append(history, userMessage)

	responseText, err := s.generator.Generate(ctx, history)
	if err != nil {
		return nil, err
	}

	appended, err := s.store.AppendMessages(ctx, conversationID, userMessage, models.Message{
		Role:    models.RoleAssistant,
		Content: responseText,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append messages to conversation: %w", err)
	}

	allMessages := make([]models.Message, 0, len(conv.Messages)+len(appended))
	allMessages = append(allMessages, conv.Messages...)
	allMessages = append(allMessages, appended...)

	return &models.ContinueConversationResponse{
		ConversationID: conversationID.String(),
		Response:       responseText,
		Messages:       mapMessages(allMessages),
		StudyID:        conv.StudyID,
	}, nil
}

// GetConversationHistory returns the stored history of a conversation.
func (s *ConversationService) GetConversationHistory(ctx context.Context, conversationID uuid.UUID) (*models.ConversationHistoryResponse, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation from store: %w", err)
	}

	return &models.ConversationHistoryResponse{
		ConversationID: conv.ID.String(),
		StudyID:        conv.StudyID,
		Messages:       mapMessages(conv.Messages),
	}, nil
}

// mapMessages converts stored messages to their API representation.
func mapMessages(messages []models.Message) []models.MessageResponse {
	out := make([]models.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.MessageResponse{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}
