package taskboard

import (
	"context"
	"strings"

	"github.com/madhatter5501/taskboard/kanban"
)

// ColumnInput is the request body for creating a column.
type ColumnInput struct {
	BoardID string `json:"boardId"`
	Title   string `json:"title"`
}

// CreateColumn appends a column to the end of a board.
func (s *Service) CreateColumn(ctx context.Context, in ColumnInput) (*kanban.Column, error) {
	if err := required("boardId", in.BoardID); err != nil {
		return nil, err
	}
	if err := required("title", in.Title); err != nil {
		return nil, err
	}

	now := s.now()
	column := &kanban.Column{
		ID:        s.newID(),
		BoardID:   canonicalID(in.BoardID),
		Title:     strings.TrimSpace(in.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.withBoardLock(ctx, column.BoardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			if _, err := tx.GetBoard(ctx, column.BoardID); err != nil {
				return err
			}

			n, err := tx.CountColumns(ctx, kanban.ColumnFilter{BoardID: column.BoardID})
			if err != nil {
				return err
			}
			column.Position = n

			return tx.InsertColumn(ctx, column)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Column created", "id", column.ID, "board", column.BoardID, "position", column.Position)
	return column, nil
}

// ListColumns returns the columns of one board, or of every board when
// boardID is empty, ordered by position.
func (s *Service) ListColumns(ctx context.Context, boardID string) ([]kanban.Column, error) {
	if boardID != "" {
		boardID = canonicalID(boardID)
	}
	return s.store.FindColumns(ctx, kanban.ColumnFilter{BoardID: boardID})
}
