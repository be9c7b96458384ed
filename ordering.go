package taskboard

import (
	"context"
	"time"

	"github.com/madhatter5501/taskboard/kanban"
)

// MoveRequest describes a drag-and-drop move. Every field is required; the
// positions are the ones the client observed before and after the drop.
type MoveRequest struct {
	FromColumnID *string `json:"fromColumnId"`
	ToColumnID   *string `json:"toColumnId"`
	FromPosition *int    `json:"fromPosition"`
	ToPosition   *int    `json:"toPosition"`
}

// Validate checks that every field is present and positions are not negative.
func (r MoveRequest) Validate() error {
	switch {
	case r.FromColumnID == nil || *r.FromColumnID == "":
		return kanban.Invalid("fromColumnId", "is required")
	case r.ToColumnID == nil || *r.ToColumnID == "":
		return kanban.Invalid("toColumnId", "is required")
	case r.FromPosition == nil:
		return kanban.Invalid("fromPosition", "is required")
	case r.ToPosition == nil:
		return kanban.Invalid("toPosition", "is required")
	case *r.FromPosition < 0:
		return kanban.Invalid("fromPosition", "must not be negative")
	case *r.ToPosition < 0:
		return kanban.Invalid("toPosition", "must not be negative")
	}
	return nil
}

// MoveResult is the outcome of a move.
type MoveResult struct {
	Card       kanban.Card `json:"card"`
	SameColumn bool        `json:"sameColumn"`
	Shifted    int         `json:"shifted"` // Other cards whose position changed
}

// Message is the human readable summary returned to clients.
func (r *MoveResult) Message() string {
	if r.SameColumn {
		return "Card reordered"
	}
	return "Card moved"
}

// MoveCard moves a card within its column or into another column and shifts
// the neighbouring cards so both columns stay densely numbered.
//
// Within one column, moving down pulls the cards in (from, to] up by one and
// moving up pushes the cards in [to, from) down by one. Across columns, the
// cards after the old slot close the gap and the cards at or after the new
// slot make room. The destination position is not range checked; a value past
// the end leaves a gap that RepairColumn closes.
func (s *Service) MoveCard(ctx context.Context, cardID string, req MoveRequest) (*MoveResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cardID = canonicalID(cardID)
	from := canonicalID(*req.FromColumnID)
	to := canonicalID(*req.ToColumnID)
	fromPos, toPos := *req.FromPosition, *req.ToPosition

	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *MoveResult
	err = s.withBoardLock(ctx, card.BoardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			r, err := s.move(ctx, tx, cardID, from, to, fromPos, toPos)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("Card move failed", "card", cardID, "from", from, "to", to, "error", err)
		return nil, err
	}

	cards := []kanban.Card{result.Card}
	if err := s.attachLabels(ctx, cards); err != nil {
		return nil, err
	}
	result.Card = cards[0]

	s.logger.Debug("Card moved",
		"card", cardID,
		"from", from, "fromPosition", fromPos,
		"to", to, "toPosition", toPos,
		"shifted", result.Shifted,
		"duration", time.Since(start))
	return result, nil
}

func (s *Service) move(ctx context.Context, tx kanban.Store, cardID, from, to string, fromPos, toPos int) (*MoveResult, error) {
	card, err := tx.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.ColumnID != from {
		s.logger.Warn("Move source column does not match card",
			"card", cardID, "column", card.ColumnID, "fromColumnId", from)
	}

	result := &MoveResult{SameColumn: from == to}

	if result.SameColumn {
		var n int
		switch {
		case fromPos < toPos:
			n, err = tx.ShiftCards(ctx, kanban.CardFilter{
				ColumnID:    from,
				ExcludeID:   cardID,
				MinPosition: kanban.Ptr(fromPos + 1),
				MaxPosition: kanban.Ptr(toPos),
			}, -1)
		case fromPos > toPos:
			n, err = tx.ShiftCards(ctx, kanban.CardFilter{
				ColumnID:    from,
				ExcludeID:   cardID,
				MinPosition: kanban.Ptr(toPos),
				MaxPosition: kanban.Ptr(fromPos - 1),
			}, 1)
		}
		if err != nil {
			return nil, err
		}
		result.Shifted = n
	} else {
		dest, err := tx.GetColumn(ctx, to)
		if err != nil {
			return nil, err
		}
		if dest.BoardID != card.BoardID {
			return nil, kanban.Invalid("toColumnId", "belongs to a different board")
		}

		closed, err := tx.ShiftCards(ctx, kanban.CardFilter{
			ColumnID:    from,
			ExcludeID:   cardID,
			MinPosition: kanban.Ptr(fromPos + 1),
		}, -1)
		if err != nil {
			return nil, err
		}
		opened, err := tx.ShiftCards(ctx, kanban.CardFilter{
			ColumnID:    to,
			ExcludeID:   cardID,
			MinPosition: kanban.Ptr(toPos),
		}, 1)
		if err != nil {
			return nil, err
		}
		result.Shifted = closed + opened
	}

	// A cancelled caller must not leave the neighbours shifted without the card.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updated, err := tx.UpdateCard(ctx, cardID, kanban.CardPatch{
		ColumnID: kanban.Ptr(to),
		Position: kanban.Ptr(toPos),
	})
	if err != nil {
		return nil, err
	}
	result.Card = *updated
	return result, nil
}
