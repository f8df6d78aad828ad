// Package transform normalizes remote ticket records into board tickets.
package transform

import (
	"strings"
	"time"

	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

// Placeholders used when a record is anonymous or a field is missing.
const (
	AnonymousSender = "Anonim"
	UnknownSender   = "Tidak diketahui"
	DefaultSubject  = "(Tanpa subjek)"
	DefaultPriority = "medium"
	DefaultCategory = "Lainnya"
)

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type Transformer struct {
	// Role of the viewer; its read flag becomes IsReadByRecipient.
	Role models.Role
	// Categories maps category ids to display names.
	Categories map[string]string
	Location   *time.Location
}

func New(role models.Role, categories []models.Category, loc *time.Location) *Transformer {
	byID := make(map[string]string, len(categories))
	for _, c := range categories {
		if name := strings.TrimSpace(c.Name); name != "" {
			byID[strings.TrimSpace(c.ID)] = name
		}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Transformer{Role: role, Categories: byID, Location: loc}
}

// Normalize converts a raw record. It never fails: missing or malformed
// fields fall back to the package defaults.
func (tr *Transformer) Normalize(raw models.RawTicket) models.Ticket {
	t := models.Ticket{
		ID:              strings.TrimSpace(raw.ID),
		Sender:          orDefault(raw.SenderName, UnknownSender),
		Email:           strings.TrimSpace(raw.SenderEmail),
		StudentID:       strings.TrimSpace(raw.StudentID),
		CreatedAt:       tr.parseTime(raw.CreatedAt),
		Subject:         orDefault(raw.Subject, DefaultSubject),
		RawStatus:       strings.TrimSpace(raw.Status),
		CategoryRaw:     strings.TrimSpace(raw.CategoryName),
		SubCategory:     strings.TrimSpace(raw.SubCategory),
		Priority:        strings.ToLower(orDefault(raw.Priority, DefaultPriority)),
		Anonymous:       bool(raw.Anonymous),
		AssignedTo:      strings.TrimSpace(raw.AssignedTo),
		OwnerID:         strings.TrimSpace(raw.OwnerID),
		UnreadChatCount: raw.UnreadChats,
	}
	t.Column = status.ToColumn(t.RawStatus)
	t.Category = tr.categoryLabel(raw)
	if t.UnreadChatCount < 0 {
		t.UnreadChatCount = 0
	}

	if t.Anonymous {
		t.Sender = AnonymousSender
		t.Email = ""
		t.StudentID = ""
	}

	t.IsReadByRecipient = bool(raw.IsRead) || raw.ReadFlag(tr.Role)
	for _, role := range models.Roles {
		if role != tr.Role && raw.ReadFlag(role) {
			t.IsReadByOtherRoles = append(t.IsReadByOtherRoles, role)
		}
	}
	return t
}

// NormalizeAll converts a fetch result. Records without an id are dropped and
// duplicate ids keep their first occurrence.
func (tr *Transformer) NormalizeAll(raws []models.RawTicket) []models.Ticket {
	out := make([]models.Ticket, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		t := tr.Normalize(raw)
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

func (tr *Transformer) categoryLabel(raw models.RawTicket) string {
	if name, ok := tr.Categories[strings.TrimSpace(raw.CategoryID)]; ok {
		return name
	}
	return orDefault(raw.CategoryName, DefaultCategory)
}

func (tr *Transformer) parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	loc := tr.Location
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
