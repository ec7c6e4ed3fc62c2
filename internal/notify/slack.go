// Package notify posts report lifecycle notifications to Slack. Notifications
// are best-effort and never block or fail the request that triggered them.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier sends messages to a fixed Slack channel. A nil Notifier is valid
// and drops every notification, which keeps call sites free of enabled checks.
type Notifier struct {
	client    *slack.Client
	channelID string
}

// NewNotifier returns a Notifier for the given bot token and channel, or nil
// when either is unset.
func NewNotifier(botToken, channelID string) *Notifier {
	if botToken == "" || channelID == "" {
		return nil
	}
	return &Notifier{
		client:    slack.New(botToken),
		channelID: channelID,
	}
}

// ReportReady announces a freshly generated report for a study.
func (n *Notifier) ReportReady(ctx context.Context, studyCode, mdPath, pdfPath string) error {
	if n == nil {
		return nil
	}

	text := fmt.Sprintf("Report generated for study %s\nMarkdown: %s\nPDF: %s", studyCode, mdPath, pdfPath)
	_, _, err := n.client.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack channel %s: %w", n.channelID, err)
	}
	return nil
}
