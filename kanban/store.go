package kanban

import "context"

// Store is the entity store the board services are built on.
// Both the JSON file-based State and the SQLite Store implement this interface.
//
// Find methods return records ordered by position ascending (ties broken by
// creation time, then id). Get methods return a *NotFoundError when the id does
// not resolve.
type Store interface {
	// Boards
	InsertBoard(ctx context.Context, b *Board) error
	GetBoard(ctx context.Context, id string) (*Board, error)
	ListBoards(ctx context.Context) ([]Board, error)

	// Columns
	InsertColumn(ctx context.Context, c *Column) error
	GetColumn(ctx context.Context, id string) (*Column, error)
	FindColumns(ctx context.Context, f ColumnFilter) ([]Column, error)
	CountColumns(ctx context.Context, f ColumnFilter) (int, error)
	SetColumnPosition(ctx context.Context, id string, position int) error

	// Cards
	InsertCard(ctx context.Context, c *Card) error
	GetCard(ctx context.Context, id string) (*Card, error)
	FindCards(ctx context.Context, f CardFilter) ([]Card, error)
	CountCards(ctx context.Context, f CardFilter) (int, error)
	UpdateCard(ctx context.Context, id string, p CardPatch) (*Card, error)
	ShiftCards(ctx context.Context, f CardFilter, delta int) (int, error)
	DeleteCard(ctx context.Context, id string) error

	// Labels
	FindLabels(ctx context.Context, f LabelFilter) ([]Label, error)
	UpsertLabel(ctx context.Context, l *Label) (*Label, error)

	// Atomic runs fn against a view of the store whose writes are committed
	// together when fn returns nil and discarded otherwise. Nested calls join
	// the outer unit.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// ColumnFilter selects columns. Zero fields do not constrain.
type ColumnFilter struct {
	BoardID string
}

// CardFilter selects cards for find, count and range updates.
// Zero fields do not constrain; MinPosition and MaxPosition are inclusive.
type CardFilter struct {
	BoardID     string
	ColumnID    string
	ExcludeID   string
	MinPosition *int
	MaxPosition *int
}

// Matches reports whether c satisfies the filter.
func (f CardFilter) Matches(c *Card) bool {
	if f.BoardID != "" && c.BoardID != f.BoardID {
		return false
	}
	if f.ColumnID != "" && c.ColumnID != f.ColumnID {
		return false
	}
	if f.ExcludeID != "" && c.ID == f.ExcludeID {
		return false
	}
	if f.MinPosition != nil && c.Position < *f.MinPosition {
		return false
	}
	if f.MaxPosition != nil && c.Position > *f.MaxPosition {
		return false
	}
	return true
}

// Empty reports whether the position range cannot match anything.
func (f CardFilter) Empty() bool {
	return f.MinPosition != nil && f.MaxPosition != nil && *f.MinPosition > *f.MaxPosition
}

// CardPatch is a partial card update. Nil fields are left unchanged.
type CardPatch struct {
	Title                *string
	Description          *string
	AssigneeID           *string
	ReporterID           *string
	Priority             *Priority
	TicketType           *TicketType
	LabelIDs             *[]string
	ActualTimeToComplete *float64
	ColumnID             *string
	Position             *int
}

// Apply merges the patch into c.
func (p CardPatch) Apply(c *Card) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.AssigneeID != nil {
		c.AssigneeID = *p.AssigneeID
	}
	if p.ReporterID != nil {
		c.ReporterID = *p.ReporterID
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.TicketType != nil {
		c.TicketType = *p.TicketType
	}
	if p.LabelIDs != nil {
		c.LabelIDs = append([]string{}, (*p.LabelIDs)...)
	}
	if p.ActualTimeToComplete != nil {
		c.ActualTimeToComplete = *p.ActualTimeToComplete
	}
	if p.ColumnID != nil {
		c.ColumnID = *p.ColumnID
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
}

// LabelFilter selects labels. With BoardID set, IncludeUnscoped also returns
// labels that carry no board.
type LabelFilter struct {
	BoardID         string
	IncludeUnscoped bool
	Name            string
	IDs             []string
}

// Matches reports whether l satisfies the filter.
func (f LabelFilter) Matches(l *Label) bool {
	if f.BoardID != "" && l.BoardID != f.BoardID && !(f.IncludeUnscoped && l.BoardID == "") {
		return false
	}
	if f.Name != "" && l.Name != f.Name {
		return false
	}
	if f.IDs != nil {
		for _, id := range f.IDs {
			if id == l.ID {
				return true
			}
		}
		return false
	}
	return true
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
