package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicetel/helpdesk-board/internal/config"
	"github.com/voicetel/helpdesk-board/internal/models"
)

// SQLSTATE codes mapped onto the Authority sentinels.
const (
	pgCheckViolation        = "23514"
	pgInvalidTextRepr       = "22P02"
	pgForeignKeyViolation   = "23503"
	pgInsufficientPrivilege = "42501"
)

// Postgres is an Authority backed by a PostgreSQL helpdesk schema.
type Postgres struct {
	pool *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, cfg config.AuthorityConfig) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) FetchTickets(ctx context.Context, scope models.RoleScope) ([]models.RawTicket, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT
			t.id::text,
			COALESCE(u.name, ''),
			COALESCE(u.email, ''),
			COALESCE(u.nim, ''),
			COALESCE(to_char(t.created_at, 'YYYY-MM-DD"T"HH24:MI:SSOF'), ''),
			COALESCE(t.subject, ''),
			COALESCE(t.status, ''),
			COALESCE(t.category_id::text, ''),
			COALESCE(c.name, ''),
			COALESCE(t.sub_category, ''),
			COALESCE(t.priority, ''),
			t.anonymous,
			t.read_by_admin,
			t.read_by_student,
			COALESCE(t.assigned_to, ''),
			COALESCE(t.user_id::text, ''),
			(
				SELECT COUNT(*)
				FROM ticket_chats ch
				WHERE ch.ticket_id = t.id
					AND ch.sender_role <> $1
					AND NOT ch.is_read
			)
		FROM tickets t
		LEFT JOIN users u ON u.id = t.user_id
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE ($1 = 'admin' OR t.user_id::text = $2)
		ORDER BY t.created_at DESC
	`, string(scope.Role), scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", classifyPostgres(err))
	}
	defer rows.Close()

	var out []models.RawTicket
	for rows.Next() {
		var t models.RawTicket
		var anonymous, readByAdmin, readByStudent bool
		var unread int64
		if err := rows.Scan(
			&t.ID, &t.SenderName, &t.SenderEmail, &t.StudentID, &t.CreatedAt,
			&t.Subject, &t.Status, &t.CategoryID, &t.CategoryName, &t.SubCategory,
			&t.Priority, &anonymous, &readByAdmin, &readByStudent,
			&t.AssignedTo, &t.OwnerID, &unread,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		t.Anonymous = models.Flag(anonymous)
		t.ReadByAdmin = models.Flag(readByAdmin)
		t.ReadByStudent = models.Flag(readByStudent)
		t.UnreadChats = int(unread)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	ct, err := p.pool.Exec(ctx,
		`UPDATE tickets SET status = $1, updated_at = now() WHERE id::text = $2`,
		status, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update status %q: %w", status, classifyPostgres(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteTicket(ctx context.Context, ticketID string) error {
	ct, err := p.pool.Exec(ctx, `DELETE FROM tickets WHERE id::text = $1`, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", classifyPostgres(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateNotification(ctx context.Context, req models.NotificationRequest) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, type, subject, content, ticket_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, req.RecipientID, string(req.Type), req.Subject, req.Content, req.TicketID)
	if err != nil {
		return fmt.Errorf("create notification: %w", classifyPostgres(err))
	}
	return nil
}

func (p *Postgres) FetchCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := p.pool.Query(ctx, `SELECT id::text, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", classifyPostgres(err))
	}
	defer rows.Close()

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

func classifyPostgres(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code {
	case pgCheckViolation, pgInvalidTextRepr:
		return fmt.Errorf("%w: %s", ErrRejected, pe.Message)
	case pgInsufficientPrivilege, pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrForbidden, pe.Message)
	}
	return err
}
