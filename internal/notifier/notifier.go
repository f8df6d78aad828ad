package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voicetel/helpdesk-board/internal/config"
	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/logging"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/slack"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Creator is the part of the remote authority that stores notifications.
type Creator interface {
	CreateNotification(ctx context.Context, req models.NotificationRequest) error
}

// Dispatcher delivers a notification to the remote authority, records the
// attempt in the local log and mirrors it to Slack when a webhook is set.
type Dispatcher struct {
	remote Creator
	local  *database.DB
	slack  *slack.Client
	logger *logging.Logger
}

// New builds a Dispatcher. local and sl may be nil.
func New(remote Creator, local *database.DB, sl *slack.Client, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{remote: remote, local: local, slack: sl, logger: logger}
}

// Notify never stops at the first failure: every sink is attempted and the
// errors are joined.
func (d *Dispatcher) Notify(ctx context.Context, req models.NotificationRequest) error {
	remoteErr := d.remote.CreateNotification(ctx, req)
	if remoteErr != nil {
		remoteErr = fmt.Errorf("create notification: %w", remoteErr)
	}

	var logErr error
	if d.local != nil {
		logErr = d.record(ctx, req, remoteErr)
	}

	var slackErr error
	if d.slack.Enabled() {
		if err := d.slack.SendMessage(ctx, FormatSlackMessage(req)); err != nil {
			slackErr = fmt.Errorf("slack mirror: %w", err)
		}
	}

	d.logger.Verbose("Notification dispatched",
		"ticket_id", req.TicketID,
		"recipient_id", req.RecipientID,
		"failed", remoteErr != nil,
	)

	return errors.Join(remoteErr, logErr, slackErr)
}

func (d *Dispatcher) record(ctx context.Context, req models.NotificationRequest, sendErr error) error {
	status := StatusSent
	var errText any
	if sendErr != nil {
		status = StatusFailed
		errText = sendErr.Error()
	}

	query := `
		INSERT INTO notifications (
			ticket_id,
			recipient_id,
			notification_type,
			notification_status,
			subject,
			content,
			error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.local.ExecContext(ctx, query,
		req.TicketID,
		req.RecipientID,
		string(req.Type),
		status,
		req.Subject,
		req.Content,
		errText,
	)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// FormatSlackMessage renders a notification for the Slack mirror.
func FormatSlackMessage(req models.NotificationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Tiket #%s: %s\n", req.TicketID, req.Subject)
	if req.Content != "" {
		fmt.Fprintf(&b, "%s\n", req.Content)
	}
	fmt.Fprintf(&b, "*Penerima:* %s", req.RecipientID)
	return b.String()
}

// Stats returns the local notification log summary.
func Stats(db *database.DB) (*database.NotificationStats, error) {
	return db.GetNotificationStats()
}

// CheckSlackWebhook posts a test message to the configured webhook.
func CheckSlackWebhook(ctx context.Context, cfg config.SlackConfig) error {
	client := slack.NewClient(cfg)
	return client.SendMessage(ctx, "🔧 Helpdesk board test message - connection successful!")
}
