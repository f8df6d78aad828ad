package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Roles lists every role that carries a read flag on a ticket.
var Roles = []Role{RoleAdmin, RoleStudent}

// RoleScope selects which tickets the remote authority returns.
type RoleScope struct {
	Role   Role
	UserID string
}

type Ticket struct {
	ID                 string
	Sender             string
	Email              string
	StudentID          string // NIM
	CreatedAt          time.Time
	Subject            string
	Column             Column
	RawStatus          string
	Category           string
	CategoryRaw        string
	SubCategory        string
	Priority           string
	IsReadByRecipient  bool
	IsReadByOtherRoles []Role
	Anonymous          bool
	AssignedTo         string
	OwnerID            string
	UnreadChatCount    int
	Updating           bool
}

// ReadBy reports whether the ticket was read by the given non-recipient role.
func (t Ticket) ReadBy(role Role) bool {
	for _, r := range t.IsReadByOtherRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RawTicket is a ticket record as delivered by the remote authority.
type RawTicket struct {
	ID            string `json:"id"`
	SenderName    string `json:"sender_name"`
	SenderEmail   string `json:"sender_email"`
	StudentID     string `json:"nim"`
	CreatedAt     string `json:"created_at"`
	Subject       string `json:"subject"`
	Status        string `json:"status"`
	CategoryID    string `json:"category_id"`
	CategoryName  string `json:"category_name"`
	SubCategory   string `json:"sub_category"`
	Priority      string `json:"priority"`
	Anonymous     Flag   `json:"anonymous"`
	IsRead        Flag   `json:"is_read"`
	ReadByAdmin   Flag   `json:"read_by_admin"`
	ReadByStudent Flag   `json:"read_by_student"`
	AssignedTo    string `json:"assigned_to"`
	UnreadChats   int    `json:"unread_chat_count"`
	OwnerID       string `json:"user_id"`
}

// ReadFlag returns the read flag the record carries for role.
func (r RawTicket) ReadFlag(role Role) bool {
	switch role {
	case RoleAdmin:
		return bool(r.ReadByAdmin)
	case RoleStudent:
		return bool(r.ReadByStudent)
	}
	return false
}

// Flag is a boolean that the remote side may encode as true/false, 1/0 or
// their string forms.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	*f = Flag(parseFlag(s))
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// Scan implements sql.Scanner for TINYINT, BOOLEAN and text columns.
func (f *Flag) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(v)
	case int64:
		*f = v != 0
	case int32:
		*f = v != 0
	case int16:
		*f = v != 0
	case []byte:
		*f = Flag(parseFlag(string(v)))
	case string:
		*f = Flag(parseFlag(v))
	default:
		return fmt.Errorf("unsupported flag value %T", src)
	}
	return nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y":
		return true
	case "", "false", "no", "n", "null":
		return false
	}
	n, err := strconv.ParseFloat(s, 64)
	return err == nil && n != 0
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NotificationType string

const (
	NotificationStatusChanged NotificationType = "status_changed"
)

type NotificationRequest struct {
	RecipientID string
	Type        NotificationType
	Subject     string
	Content     string
	TicketID    string
}

// ReadState selects read or unread tickets in a filter.
type ReadState string

const (
	ReadStateAny    ReadState = ""
	ReadStateUnread ReadState = "unread"
	ReadStateRead   ReadState = "read"
)

// Criteria is a set of independent filter predicates combined by AND.
type Criteria struct {
	Category  string    `json:"category,omitempty"`
	DateRange string    `json:"date_range,omitempty"`
	ReadState ReadState `json:"read_state,omitempty"`
	Search    string    `json:"search,omitempty"`
}

func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.Category) == "" &&
		strings.TrimSpace(c.DateRange) == "" &&
		c.ReadState == ReadStateAny &&
		strings.TrimSpace(c.Search) == ""
}
