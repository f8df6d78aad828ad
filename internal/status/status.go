// Package status maps remote ticket status strings onto board columns and
// back, including the fallback chain tried when the remote authority rejects
// the canonical status for a column.
package status

import (
	"strings"

	"github.com/voicetel/helpdesk-board/internal/models"
)

// Remote status strings understood by the ticket authority.
const (
	Pending    = "pending"
	New        = "new"
	Open       = "open"
	InProgress = "in_progress"
	Processing = "processing"
	Assigned   = "assigned"
	Completed  = "completed"
	Resolved   = "resolved"
	Closed     = "closed"
)

var synonyms = map[string]models.Column{
	Pending:       models.ColumnNew,
	New:           models.ColumnNew,
	Open:          models.ColumnNew,
	InProgress:    models.ColumnInProgress,
	"in progress": models.ColumnInProgress,
	"in-progress": models.ColumnInProgress,
	Processing:    models.ColumnInProgress,
	Assigned:      models.ColumnInProgress,
	Completed:     models.ColumnDone,
	Resolved:      models.ColumnDone,
	Closed:        models.ColumnDone,
}

var primary = [models.NumColumns]string{
	models.ColumnNew:        Open,
	models.ColumnInProgress: InProgress,
	models.ColumnDone:       Closed,
}

// fallbacks is tried in order when the primary string is rejected.
var fallbacks = map[models.Column][]string{
	models.ColumnDone: {Completed, Resolved},
}

var labels = [models.NumColumns]string{
	models.ColumnNew:        "Baru",
	models.ColumnInProgress: "Diproses",
	models.ColumnDone:       "Selesai",
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ToColumn maps a remote status to its column. Unknown or empty statuses
// land in the new column.
func ToColumn(raw string) models.Column {
	if col, ok := synonyms[normalize(raw)]; ok {
		return col
	}
	return models.ColumnNew
}

// Known reports whether raw is one of the recognised status synonyms.
func Known(raw string) bool {
	_, ok := synonyms[normalize(raw)]
	return ok
}

// ToCategoryLabel returns the display label for a remote status.
func ToCategoryLabel(raw string) string {
	return Label(ToColumn(raw))
}

// Label returns the display label of a column.
func Label(col models.Column) string {
	if !col.Valid() {
		return labels[models.ColumnNew]
	}
	return labels[col]
}

// ToRemoteStatus returns the canonical status string sent first when moving
// a ticket into col.
func ToRemoteStatus(col models.Column) string {
	if !col.Valid() {
		return primary[models.ColumnNew]
	}
	return primary[col]
}

// FallbackStatuses returns the alternates for col in retry order.
func FallbackStatuses(col models.Column) []string {
	return append([]string(nil), fallbacks[col]...)
}

// Chain returns the primary status followed by its fallbacks.
func Chain(col models.Column) []string {
	return append([]string{ToRemoteStatus(col)}, fallbacks[col]...)
}
