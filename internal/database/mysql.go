package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/voicetel/helpdesk-board/internal/config"
	"github.com/voicetel/helpdesk-board/internal/models"
)

// MySQL error numbers mapped onto the Authority sentinels. The first three
// are raised in strict mode when a status does not fit the ENUM or CHECK.
const (
	mysqlErrDataTruncated     = 1265
	mysqlErrIncorrectValue    = 1366
	mysqlErrCheckConstraint   = 3819
	mysqlErrTableAccessDenied = 1142
	mysqlErrRowIsReferenced   = 1451
)

// MySQL is an Authority backed by the helpdesk MySQL database.
type MySQL struct {
	db *sql.DB
}

func ConnectMySQL(cfg config.AuthorityConfig) (*MySQL, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Duration)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &MySQL{db: db}, nil
}

// NewMySQL wraps an already opened handle.
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

func (m *MySQL) FetchTickets(ctx context.Context, scope models.RoleScope) ([]models.RawTicket, error) {
	query := `
		SELECT
			t.id,
			COALESCE(u.name, ''),
			COALESCE(u.email, ''),
			COALESCE(u.nim, ''),
			t.created_at,
			COALESCE(t.subject, ''),
			COALESCE(t.status, ''),
			COALESCE(CAST(t.category_id AS CHAR), ''),
			COALESCE(c.name, ''),
			COALESCE(t.sub_category, ''),
			COALESCE(t.priority, ''),
			t.anonymous,
			t.read_by_admin,
			t.read_by_student,
			COALESCE(t.assigned_to, ''),
			t.user_id,
			(
				SELECT COUNT(*)
				FROM ticket_chats ch
				WHERE ch.ticket_id = t.id
					AND ch.sender_role <> ?
					AND ch.is_read = 0
			) AS unread_chats
		FROM tickets t
		LEFT JOIN users u ON u.id = t.user_id
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE (? = 'admin' OR t.user_id = ?)
		ORDER BY t.created_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query, string(scope.Role), string(scope.Role), scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", classifyMySQL(err))
	}
	defer rows.Close()

	return scanRawTickets(rows)
}

func (m *MySQL) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = NOW() WHERE id = ?`,
		status, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update status %q: %w", status, classifyMySQL(err))
	}
	return m.requireRow(ctx, res, ticketID)
}

func (m *MySQL) DeleteTicket(ctx context.Context, ticketID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", classifyMySQL(err))
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MySQL) CreateNotification(ctx context.Context, req models.NotificationRequest) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, subject, content, ticket_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, NOW())
	`, req.RecipientID, string(req.Type), req.Subject, req.Content, nullIfEmpty(req.TicketID))
	if err != nil {
		return fmt.Errorf("create notification: %w", classifyMySQL(err))
	}
	return nil
}

func (m *MySQL) FetchCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", classifyMySQL(err))
	}
	defer rows.Close()
	return scanCategories(rows)
}

// requireRow distinguishes "no such ticket" from "value unchanged": MySQL
// reports zero affected rows for both.
func (m *MySQL) requireRow(ctx context.Context, res sql.Result, ticketID string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}
	var one int
	err = m.db.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE id = ?`, ticketID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup ticket: %w", err)
	}
	return nil
}

func classifyMySQL(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlErrDataTruncated, mysqlErrIncorrectValue, mysqlErrCheckConstraint:
		return fmt.Errorf("%w: %s", ErrRejected, me.Message)
	case mysqlErrTableAccessDenied, mysqlErrRowIsReferenced:
		return fmt.Errorf("%w: %s", ErrForbidden, me.Message)
	}
	return err
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRawTickets(rows rowScanner) ([]models.RawTicket, error) {
	var tickets []models.RawTicket

	for rows.Next() {
		var t models.RawTicket
		var createdAt sql.NullString

		err := rows.Scan(
			&t.ID,
			&t.SenderName,
			&t.SenderEmail,
			&t.StudentID,
			&createdAt,
			&t.Subject,
			&t.Status,
			&t.CategoryID,
			&t.CategoryName,
			&t.SubCategory,
			&t.Priority,
			&t.Anonymous,
			&t.ReadByAdmin,
			&t.ReadByStudent,
			&t.AssignedTo,
			&t.OwnerID,
			&t.UnreadChats,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		t.CreatedAt = createdAt.String

		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

func scanCategories(rows rowScanner) ([]models.Category, error) {
	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
