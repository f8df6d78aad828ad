package models

import "fmt"

type Column int

const (
	ColumnNew Column = iota
	ColumnInProgress
	ColumnDone
)

// NumColumns is the number of workflow columns on a board.
const NumColumns = 3

// Columns lists the board columns in display order.
var Columns = [NumColumns]Column{ColumnNew, ColumnInProgress, ColumnDone}

func (c Column) String() string {
	switch c {
	case ColumnNew:
		return "new"
	case ColumnInProgress:
		return "in_progress"
	case ColumnDone:
		return "done"
	default:
		return fmt.Sprintf("column(%d)", int(c))
	}
}

func (c Column) Valid() bool {
	return c >= ColumnNew && c <= ColumnDone
}

func ParseColumn(s string) (Column, error) {
	switch s {
	case "new":
		return ColumnNew, nil
	case "in_progress":
		return ColumnInProgress, nil
	case "done":
		return ColumnDone, nil
	}
	return 0, fmt.Errorf("unknown column %q", s)
}

// Board holds the ordered tickets of each column.
type Board [NumColumns][]Ticket

// Find returns the column and index holding the ticket with id.
func (b Board) Find(id string) (Column, int, bool) {
	for col := range b {
		for i := range b[col] {
			if b[col][i].ID == id {
				return Column(col), i, true
			}
		}
	}
	return 0, -1, false
}

func (b Board) Index(col Column, id string) int {
	for i := range b[col] {
		if b[col][i].ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the ticket ids of a column in order.
func (b Board) IDs(col Column) []string {
	ids := make([]string, 0, len(b[col]))
	for _, t := range b[col] {
		ids = append(ids, t.ID)
	}
	return ids
}

func (b Board) Len() int {
	n := 0
	for col := range b {
		n += len(b[col])
	}
	return n
}

// All flattens the board in column order.
func (b Board) All() []Ticket {
	out := make([]Ticket, 0, b.Len())
	for col := range b {
		out = append(out, b[col]...)
	}
	return out
}

// Clone copies the column slices so the result can be mutated independently.
func (b Board) Clone() Board {
	var out Board
	for col := range b {
		if b[col] == nil {
			continue
		}
		out[col] = make([]Ticket, len(b[col]))
		for i, t := range b[col] {
			if t.IsReadByOtherRoles != nil {
				t.IsReadByOtherRoles = append([]Role(nil), t.IsReadByOtherRoles...)
			}
			out[col][i] = t
		}
	}
	return out
}
