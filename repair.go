package taskboard

import (
	"context"

	"github.com/madhatter5501/taskboard/kanban"
)

// RepairResult describes what a repair found and how many records it renumbered.
type RepairResult struct {
	Before     kanban.IntegrityReport `json:"before"`
	Renumbered int                    `json:"renumbered"`
}

// BoardCheck is the integrity of a board's column order and of every column's
// card order.
type BoardCheck struct {
	Columns kanban.IntegrityReport   `json:"columns"`
	Cards   []kanban.IntegrityReport `json:"cards"`
}

// OK reports whether every position on the board is dense and unique.
func (c *BoardCheck) OK() bool {
	if !c.Columns.OK() {
		return false
	}
	for _, r := range c.Cards {
		if !r.OK() {
			return false
		}
	}
	return true
}

// BoardRepair is the result of repairing a board.
type BoardRepair struct {
	Columns RepairResult   `json:"columns"`
	Cards   []RepairResult `json:"cards"`
}

// Renumbered is the total number of columns and cards that moved.
func (r *BoardRepair) Renumbered() int {
	n := r.Columns.Renumbered
	for _, c := range r.Cards {
		n += c.Renumbered
	}
	return n
}

// CheckColumn reports gaps and duplicates in a column's card positions.
func (s *Service) CheckColumn(ctx context.Context, columnID string) (*kanban.IntegrityReport, error) {
	columnID = canonicalID(columnID)
	if _, err := s.store.GetColumn(ctx, columnID); err != nil {
		return nil, err
	}

	cards, err := s.store.FindCards(ctx, kanban.CardFilter{ColumnID: columnID})
	if err != nil {
		return nil, err
	}
	report := kanban.CheckCards(columnID, cards)
	return &report, nil
}

// CheckBoard reports on the column order of a board and the card order of
// each of its columns.
func (s *Service) CheckBoard(ctx context.Context, boardID string) (*BoardCheck, error) {
	boardID = canonicalID(boardID)
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}

	columns, err := s.store.FindColumns(ctx, kanban.ColumnFilter{BoardID: boardID})
	if err != nil {
		return nil, err
	}

	check := &BoardCheck{
		Columns: kanban.CheckColumns(boardID, columns),
		Cards:   make([]kanban.IntegrityReport, 0, len(columns)),
	}
	for _, c := range columns {
		cards, err := s.store.FindCards(ctx, kanban.CardFilter{ColumnID: c.ID})
		if err != nil {
			return nil, err
		}
		check.Cards = append(check.Cards, kanban.CheckCards(c.ID, cards))
	}
	return check, nil
}

// RepairColumn renumbers a column's cards to 0..n-1, keeping their current
// order (position, then creation time, then id).
func (s *Service) RepairColumn(ctx context.Context, columnID string) (*RepairResult, error) {
	columnID = canonicalID(columnID)

	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}

	var result *RepairResult
	err = s.withBoardLock(ctx, column.BoardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			r, err := repairColumn(ctx, tx, columnID)
			result = r
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Renumbered > 0 {
		s.logger.Info("Column repaired", "column", columnID, "renumbered", result.Renumbered)
	}
	return result, nil
}

// RepairBoard renumbers a board's columns and then every column's cards.
func (s *Service) RepairBoard(ctx context.Context, boardID string) (*BoardRepair, error) {
	boardID = canonicalID(boardID)
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}

	result := &BoardRepair{}
	err := s.withBoardLock(ctx, boardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			columns, err := tx.FindColumns(ctx, kanban.ColumnFilter{BoardID: boardID})
			if err != nil {
				return err
			}

			result.Columns.Before = kanban.CheckColumns(boardID, columns)
			for i, c := range columns {
				if c.Position == i {
					continue
				}
				if err := tx.SetColumnPosition(ctx, c.ID, i); err != nil {
					return err
				}
				result.Columns.Renumbered++
			}

			result.Cards = make([]RepairResult, 0, len(columns))
			for _, c := range columns {
				r, err := repairColumn(ctx, tx, c.ID)
				if err != nil {
					return err
				}
				result.Cards = append(result.Cards, *r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if n := result.Renumbered(); n > 0 {
		s.logger.Info("Board repaired", "board", boardID, "renumbered", n)
	}
	return result, nil
}

func repairColumn(ctx context.Context, tx kanban.Store, columnID string) (*RepairResult, error) {
	cards, err := tx.FindCards(ctx, kanban.CardFilter{ColumnID: columnID})
	if err != nil {
		return nil, err
	}

	result := &RepairResult{Before: kanban.CheckCards(columnID, cards)}
	if result.Before.OK() {
		return result, nil
	}

	for i, c := range cards {
		if c.Position == i {
			continue
		}
		if _, err := tx.UpdateCard(ctx, c.ID, kanban.CardPatch{Position: kanban.Ptr(i)}); err != nil {
			return nil, err
		}
		result.Renumbered++
	}
	return result, nil
}
