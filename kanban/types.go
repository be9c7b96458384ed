// Package kanban provides the data model and storage contract for task boards.
// Boards own ordered columns, columns own ordered cards, and cards reference labels.
package kanban

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Priority is the urgency of a card.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium" // Default when a card is created without one
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every valid priority in ascending urgency.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// TicketType classifies the work a card represents.
type TicketType string

const (
	TicketTypeBug         TicketType = "bug"
	TicketTypeFeature     TicketType = "feature"
	TicketTypeEnhancement TicketType = "enhancement"
	TicketTypeTask        TicketType = "task"
)

// TicketTypes lists every valid ticket type.
var TicketTypes = []TicketType{TicketTypeBug, TicketTypeFeature, TicketTypeEnhancement, TicketTypeTask}

var lower = cases.Lower(language.Und)

// Normalize trims and lowercases an enum-like value.
func Normalize(s string) string {
	return lower.String(strings.TrimSpace(s))
}

// ParsePriority normalizes s and checks it against the known priorities.
// An empty input yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	n := Normalize(s)
	if n == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if string(p) == n {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
}

// ParseTicketType normalizes s and checks it against the known ticket types.
// Unlike priority there is no default: an empty input is rejected.
func ParseTicketType(s string) (TicketType, error) {
	n := Normalize(s)
	if n == "" {
		return "", &ValidationError{Field: "ticketType", Reason: "is required"}
	}
	for _, t := range TicketTypes {
		if string(t) == n {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "ticketType", Reason: "must be one of bug, feature, enhancement, task"}
}

// Board is the top-level container. Columns and cards reference it by id.
type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Column is an ordered lane within a board.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Position  int       `json:"position"` // Zero-based, dense within BoardID
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Card is a unit of work positioned within a column.
type Card struct {
	ID                   string     `json:"id"`
	BoardID              string     `json:"boardId"`
	ColumnID             string     `json:"columnId"`
	Position             int        `json:"position"` // Zero-based, dense within ColumnID
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	AssigneeID           string     `json:"assigneeId"`
	ReporterID           string     `json:"reporterId"`
	Priority             Priority   `json:"priority"`
	TicketType           TicketType `json:"ticketType"`
	LabelIDs             []string   `json:"labelIds"`
	Labels               []Label    `json:"labels"` // Resolved from LabelIDs on read
	ActualTimeToComplete float64    `json:"actualTimeToComplete"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	if c.LabelIDs != nil {
		c.LabelIDs = append(make([]string, 0, len(c.LabelIDs)), c.LabelIDs...)
	}
	if c.Labels != nil {
		c.Labels = append(make([]Label, 0, len(c.Labels)), c.Labels...)
	}
	return c
}

// Label tags cards. Name is the canonical lowercase form used for lookups.
type Label struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"boardId,omitempty"` // Empty for unscoped labels
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CanonicalLabelName folds a user supplied label name to its lookup key.
func CanonicalLabelName(name string) string {
	return Normalize(name)
}

// ColumnView is a column with its cards attached, as served to clients.
type ColumnView struct {
	Column
	Cards []Card `json:"cards"`
}

// BoardView is the denormalized read model for a single board.
type BoardView struct {
	Board   Board        `json:"board"`
	Columns []ColumnView `json:"columns"`
	Cards   []Card       `json:"cards"`
	Labels  []Label      `json:"labels"`
	Orphans int          `json:"orphans,omitempty"` // Cards whose column is not on the board
}
