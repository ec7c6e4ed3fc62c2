// Package prompts assembles the initial message history for a report
// conversation from prompt templates and per-study metrics on disk.
package prompts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"radreport-backend/internal/models"
)

// ErrMetricsNotFound indicates that no metrics file exists for the requested study.
var ErrMetricsNotFound = errors.New("study metrics not found")

const (
	systemPromptFile = "system_prompt.txt"
	reportTaskFile   = "report_task.txt"
	metricsFile      = "metrics.json"
)

// Assembler builds the seed messages for a new conversation. Prompt templates
// live under promptsDir; study metrics under storageDir/studies/{code}.
type Assembler struct {
	promptsDir string
	storageDir string
}

func NewAssembler(promptsDir, storageDir string) *Assembler {
	return &Assembler{promptsDir: promptsDir, storageDir: storageDir}
}

// Assemble returns the system and user messages that start a report
// conversation for the given study. When systemPrompt is nil the default
// template from disk is used. The user message carries the report task
// followed by the study's metrics, pretty-printed so the model sees the
// same layout reviewers do.
func (a *Assembler) Assemble(studyCode string, systemPrompt *string) ([]models.Message, error) {
	system, err := a.resolveSystemPrompt(systemPrompt)
	if err != nil {
		return nil, err
	}

	task, err := os.ReadFile(filepath.Join(a.promptsDir, reportTaskFile))
	if err != nil {
		return nil, fmt.Errorf("reading report task prompt: %w", err)
	}

	metricsPath := filepath.Join(a.storageDir, "studies", studyCode, metricsFile)
	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMetricsNotFound, studyCode)
		}
		return nil, fmt.Errorf("reading study metrics: %w", err)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("study metrics for %s are not valid JSON: %w", studyCode, err)
	}

	userContent := fmt.Sprintf("%s\n\nStudy Metrics Data:\n%s",
		strings.TrimSpace(string(task)), indented.String())

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: userContent},
	}, nil
}

// resolveSystemPrompt prefers the caller-supplied prompt and falls back to the
// template file.
func (a *Assembler) resolveSystemPrompt(override *string) (string, error) {
	if override != nil && strings.TrimSpace(*override) != "" {
		return *override, nil
	}
	data, err := os.ReadFile(filepath.Join(a.promptsDir, systemPromptFile))
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
