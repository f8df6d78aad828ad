package notifier

import (
	"fmt"
	"time"

	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/logging"
)

// CleanupOldNotifications removes log rows older than retentionDays and
// returns how many were deleted.
func CleanupOldNotifications(db *database.DB, retentionDays int, logger *logging.Logger) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90 // Default to 90 days
	}

	query := `
		DELETE FROM notifications
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`

	result, err := db.Exec(query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted notifications: %w", err)
	}
	if rowsAffected > 0 && logger != nil {
		logger.Info("Cleaned up old notification records", "rows", rowsAffected)
	}

	return rowsAffected, nil
}

// VacuumDatabase performs SQLite VACUUM to reclaim disk space
func VacuumDatabase(db *database.DB, logger *logging.Logger) error {
	start := time.Now()

	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	if logger != nil {
		logger.Info("Database vacuum completed", "duration", time.Since(start).String())
	}
	return nil
}
