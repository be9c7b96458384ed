package taskboard

import (
	"context"
	"strings"

	"github.com/madhatter5501/taskboard/kanban"
)

// CardInput is the request body for creating a card.
type CardInput struct {
	BoardID              string   `json:"boardId"`
	ColumnID             string   `json:"columnId"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	AssigneeID           string   `json:"assigneeId"`
	ReporterID           string   `json:"reporterId"`
	Priority             string   `json:"priority"`
	TicketType           string   `json:"ticketType"`
	Labels               []string `json:"labels"`
	ActualTimeToComplete *float64 `json:"actualTimeToComplete"`
}

// CardUpdate is a partial card update. Nil fields are left unchanged.
// ColumnID and Position are accepted only so they can be rejected: position
// changes go through MoveCard.
type CardUpdate struct {
	Title                *string   `json:"title"`
	Description          *string   `json:"description"`
	AssigneeID           *string   `json:"assigneeId"`
	ReporterID           *string   `json:"reporterId"`
	Priority             *string   `json:"priority"`
	TicketType           *string   `json:"ticketType"`
	Labels               *[]string `json:"labels"`
	ActualTimeToComplete *float64  `json:"actualTimeToComplete"`
	ColumnID             *string   `json:"columnId"`
	Position             *int      `json:"position"`
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return kanban.Invalid(field, "is required")
	}
	return nil
}

// CreateCard validates in and appends a new card to the end of its column.
func (s *Service) CreateCard(ctx context.Context, in CardInput) (*kanban.Card, error) {
	for _, f := range []struct{ name, value string }{
		{"boardId", in.BoardID},
		{"columnId", in.ColumnID},
		{"title", in.Title},
		{"assigneeId", in.AssigneeID},
		{"reporterId", in.ReporterID},
		{"ticketType", in.TicketType},
	} {
		if err := required(f.name, f.value); err != nil {
			return nil, err
		}
	}

	priority, err := kanban.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	ticketType, err := kanban.ParseTicketType(in.TicketType)
	if err != nil {
		return nil, err
	}

	var actual float64
	if in.ActualTimeToComplete != nil {
		actual = *in.ActualTimeToComplete
		if actual < 0 {
			return nil, kanban.Invalid("actualTimeToComplete", "must not be negative")
		}
	}

	now := s.now()
	card := &kanban.Card{
		ID:                   s.newID(),
		BoardID:              canonicalID(in.BoardID),
		ColumnID:             canonicalID(in.ColumnID),
		Title:                strings.TrimSpace(in.Title),
		Description:          in.Description,
		AssigneeID:           strings.TrimSpace(in.AssigneeID),
		ReporterID:           strings.TrimSpace(in.ReporterID),
		Priority:             priority,
		TicketType:           ticketType,
		LabelIDs:             normalizeLabelIDs(in.Labels),
		ActualTimeToComplete: actual,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.withBoardLock(ctx, card.BoardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			column, err := tx.GetColumn(ctx, card.ColumnID)
			if err != nil {
				return err
			}
			if column.BoardID != card.BoardID {
				return kanban.Invalid("columnId", "does not belong to board "+card.BoardID)
			}

			n, err := tx.CountCards(ctx, kanban.CardFilter{ColumnID: card.ColumnID})
			if err != nil {
				return err
			}
			card.Position = n

			return tx.InsertCard(ctx, card)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Card created", "id", card.ID, "column", card.ColumnID, "position", card.Position)

	created := []kanban.Card{*card}
	if err := s.attachLabels(ctx, created); err != nil {
		return nil, err
	}
	return &created[0], nil
}

// GetCard returns a card with its labels resolved.
func (s *Service) GetCard(ctx context.Context, id string) (*kanban.Card, error) {
	card, err := s.store.GetCard(ctx, canonicalID(id))
	if err != nil {
		return nil, err
	}

	cards := []kanban.Card{*card}
	if err := s.attachLabels(ctx, cards); err != nil {
		return nil, err
	}
	return &cards[0], nil
}

func (u CardUpdate) patch() (kanban.CardPatch, error) {
	var p kanban.CardPatch

	if u.ColumnID != nil {
		return p, kanban.Invalid("columnId", "cannot be changed by update, move the card instead")
	}
	if u.Position != nil {
		return p, kanban.Invalid("position", "cannot be changed by update, move the card instead")
	}

	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return p, kanban.Invalid("title", "must not be empty")
		}
		p.Title = &title
	}
	p.Description = u.Description
	p.AssigneeID = u.AssigneeID
	p.ReporterID = u.ReporterID

	if u.Priority != nil {
		priority, err := kanban.ParsePriority(*u.Priority)
		if err != nil {
			return p, err
		}
		p.Priority = &priority
	}
	if u.TicketType != nil {
		ticketType, err := kanban.ParseTicketType(*u.TicketType)
		if err != nil {
			return p, err
		}
		p.TicketType = &ticketType
	}
	if u.Labels != nil {
		ids := normalizeLabelIDs(*u.Labels)
		p.LabelIDs = &ids
	}
	if u.ActualTimeToComplete != nil {
		if *u.ActualTimeToComplete < 0 {
			return p, kanban.Invalid("actualTimeToComplete", "must not be negative")
		}
		p.ActualTimeToComplete = u.ActualTimeToComplete
	}
	return p, nil
}

// UpdateCard merges u into the card's metadata.
func (s *Service) UpdateCard(ctx context.Context, id string, u CardUpdate) (*kanban.Card, error) {
	p, err := u.patch()
	if err != nil {
		return nil, err
	}

	card, err := s.store.UpdateCard(ctx, canonicalID(id), p)
	if err != nil {
		return nil, err
	}

	cards := []kanban.Card{*card}
	if err := s.attachLabels(ctx, cards); err != nil {
		return nil, err
	}
	return &cards[0], nil
}

// DeleteCard removes a card and closes the gap it leaves in its column. It
// returns the card as it was before deletion.
func (s *Service) DeleteCard(ctx context.Context, id string) (*kanban.Card, error) {
	id = canonicalID(id)

	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.withBoardLock(ctx, card.BoardID, func() error {
		return s.store.Atomic(ctx, func(tx kanban.Store) error {
			current, err := tx.GetCard(ctx, id)
			if err != nil {
				return err
			}
			if err := tx.DeleteCard(ctx, id); err != nil {
				return err
			}
			_, err = tx.ShiftCards(ctx, kanban.CardFilter{
				ColumnID:    current.ColumnID,
				MinPosition: kanban.Ptr(current.Position + 1),
			}, -1)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Card deleted", "id", id, "column", card.ColumnID)
	return card, nil
}
