package taskboard

import (
	"context"
	"strings"

	"github.com/madhatter5501/taskboard/kanban"
)

// LabelInput is the request body for creating or finding a label.
type LabelInput struct {
	Name    string `json:"name"`
	BoardID string `json:"boardId"`
}

// FindOrCreateLabel returns the label whose canonical name matches in.Name,
// creating it if needed. The display name always takes the casing of the
// latest request.
func (s *Service) FindOrCreateLabel(ctx context.Context, in LabelInput) (*kanban.Label, error) {
	display := strings.TrimSpace(in.Name)
	if display == "" {
		return nil, kanban.Invalid("name", "is required")
	}

	boardID := ""
	if s.config.LabelScope == LabelScopeBoard {
		if strings.TrimSpace(in.BoardID) == "" {
			return nil, kanban.Invalid("boardId", "is required")
		}
		boardID = canonicalID(in.BoardID)
		if _, err := s.store.GetBoard(ctx, boardID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	label, err := s.store.UpsertLabel(ctx, &kanban.Label{
		ID:          s.newID(),
		BoardID:     boardID,
		Name:        kanban.CanonicalLabelName(display),
		DisplayName: display,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Label upserted", "id", label.ID, "name", label.Name, "board", boardID)
	return label, nil
}

// ListLabels returns the labels visible on a board: those scoped to it plus
// unscoped ones. An empty boardID lists every label.
func (s *Service) ListLabels(ctx context.Context, boardID string) ([]kanban.Label, error) {
	if boardID == "" {
		return s.store.FindLabels(ctx, kanban.LabelFilter{})
	}
	return s.store.FindLabels(ctx, kanban.LabelFilter{
		BoardID:         canonicalID(boardID),
		IncludeUnscoped: true,
	})
}

// attachLabels resolves the label ids of each card from the store.
func (s *Service) attachLabels(ctx context.Context, cards []kanban.Card) error {
	seen := make(map[string]bool)
	ids := []string{}
	for i := range cards {
		for _, id := range cards[i].LabelIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	labels := []kanban.Label{}
	if len(ids) > 0 {
		var err error
		labels, err = s.store.FindLabels(ctx, kanban.LabelFilter{IDs: ids})
		if err != nil {
			return err
		}
	}

	resolveLabels(cards, labels)
	return nil
}

// resolveLabels fills Card.Labels from labels in LabelIDs order. Ids without a
// matching label are dropped from the resolved list but kept in LabelIDs.
func resolveLabels(cards []kanban.Card, labels []kanban.Label) {
	byID := make(map[string]kanban.Label, len(labels))
	for _, l := range labels {
		byID[l.ID] = l
	}

	for i := range cards {
		resolved := make([]kanban.Label, 0, len(cards[i].LabelIDs))
		for _, id := range cards[i].LabelIDs {
			if l, ok := byID[id]; ok {
				resolved = append(resolved, l)
			}
		}
		cards[i].Labels = resolved
	}
}

// normalizeLabelIDs canonicalizes and de-duplicates label ids, keeping order.
func normalizeLabelIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = canonicalID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
