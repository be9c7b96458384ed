package taskboard

import (
	"context"
	"strings"

	"github.com/madhatter5501/taskboard/kanban"
)

// BoardInput is the request body for creating a board.
type BoardInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateBoard creates an empty board.
func (s *Service) CreateBoard(ctx context.Context, in BoardInput) (*kanban.Board, error) {
	if err := required("title", in.Title); err != nil {
		return nil, err
	}

	now := s.now()
	board := &kanban.Board{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return nil, err
	}

	s.logger.Info("Board created", "id", board.ID, "title", board.Title)
	return board, nil
}

// ListBoards returns every board.
func (s *Service) ListBoards(ctx context.Context) ([]kanban.Board, error) {
	return s.store.ListBoards(ctx)
}
