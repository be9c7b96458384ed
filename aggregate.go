package taskboard

import (
	"context"

	"github.com/madhatter5501/taskboard/kanban"

	"golang.org/x/sync/errgroup"
)

// GetBoardView builds the denormalized view of a board: its columns in
// position order, each carrying its cards in position order, plus the flat
// card list and the labels visible on the board.
func (s *Service) GetBoardView(ctx context.Context, boardID string) (*kanban.BoardView, error) {
	boardID = canonicalID(boardID)

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	var (
		columns []kanban.Column
		cards   []kanban.Card
		labels  []kanban.Label
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		columns, err = s.store.FindColumns(gctx, kanban.ColumnFilter{BoardID: boardID})
		return err
	})
	g.Go(func() error {
		var err error
		cards, err = s.store.FindCards(gctx, kanban.CardFilter{BoardID: boardID})
		return err
	})
	g.Go(func() error {
		var err error
		labels, err = s.ListLabels(gctx, boardID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolveLabels(cards, labels)

	view := &kanban.BoardView{
		Board:   *board,
		Columns: make([]kanban.ColumnView, len(columns)),
		Cards:   cards,
		Labels:  labels,
	}
	view.Orphans = groupCards(view.Columns, columns, cards)

	if view.Orphans > 0 {
		s.logger.Warn("Board has cards outside its columns", "board", boardID, "orphans", view.Orphans)
	}
	return view, nil
}

// groupCards fills views with columns and attaches each card to its column,
// keeping the incoming card order. It returns the number of cards whose
// column is not among columns.
func groupCards(views []kanban.ColumnView, columns []kanban.Column, cards []kanban.Card) int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		views[i] = kanban.ColumnView{Column: c, Cards: []kanban.Card{}}
		index[c.ID] = i
	}

	orphans := 0
	for _, card := range cards {
		i, ok := index[card.ColumnID]
		if !ok {
			orphans++
			continue
		}
		views[i].Cards = append(views[i].Cards, card)
	}
	return orphans
}
