package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the local SQLite database holding session state and the
// notification log.
type DB struct {
	*sql.DB
}

func InitSQLite(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

func InitSchema(db *DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		notification_status TEXT NOT NULL DEFAULT 'sent',
		subject TEXT,
		content TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(notification_status, created_at);

	CREATE TABLE IF NOT EXISTS session_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// NotificationStats summarizes the local notification log.
type NotificationStats struct {
	Total     int
	ByStatus  map[string]int
	ByType    map[string]int
	Last24h   int
	Failed24h int
}

func (db *DB) GetNotificationStats() (*NotificationStats, error) {
	stats := &NotificationStats{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&stats.Total); err != nil {
		return nil, err
	}

	if err := countGrouped(db.DB, "notification_status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := countGrouped(db.DB, "notification_type", stats.ByType); err != nil {
		return nil, err
	}

	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM notifications
		WHERE created_at > datetime('now', '-24 hours')
	`).Scan(&stats.Last24h)
	if err != nil {
		return nil, err
	}

	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM notifications
		WHERE notification_status = 'failed'
		AND created_at > datetime('now', '-24 hours')
	`).Scan(&stats.Failed24h)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func countGrouped(db *sql.DB, column string, into map[string]int) error {
	rows, err := db.Query(`SELECT ` + column + `, COUNT(*) FROM notifications GROUP BY ` + column)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}
