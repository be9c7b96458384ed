// Package storetest holds the behavioural tests every kanban.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/madhatter5501/taskboard/kanban"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) kanban.Store

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Run runs the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Boards", func(t *testing.T) { testBoards(t, newStore(t)) })
	t.Run("Columns", func(t *testing.T) { testColumns(t, newStore(t)) })
	t.Run("Cards", func(t *testing.T) { testCards(t, newStore(t)) })
	t.Run("ShiftCards", func(t *testing.T) { testShiftCards(t, newStore(t)) })
	t.Run("UpdateCard", func(t *testing.T) { testUpdateCard(t, newStore(t)) })
	t.Run("Labels", func(t *testing.T) { testLabels(t, newStore(t)) })
	t.Run("AtomicCommit", func(t *testing.T) { testAtomicCommit(t, newStore(t)) })
	t.Run("AtomicRollback", func(t *testing.T) { testAtomicRollback(t, newStore(t)) })
}

// --- Fixtures ---

func board(id string, offset int) *kanban.Board {
	at := base.Add(time.Duration(offset) * time.Minute)
	return &kanban.Board{ID: id, Title: "Board " + id, CreatedAt: at, UpdatedAt: at}
}

func column(id, boardID string, position int) *kanban.Column {
	return &kanban.Column{
		ID:        id,
		BoardID:   boardID,
		Title:     "Column " + id,
		Position:  position,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func card(id, boardID, columnID string, position int) *kanban.Card {
	at := base.Add(time.Duration(position) * time.Second)
	return &kanban.Card{
		ID:         id,
		BoardID:    boardID,
		ColumnID:   columnID,
		Position:   position,
		Title:      "Card " + id,
		AssigneeID: "alice",
		ReporterID: "bob",
		Priority:   kanban.PriorityMedium,
		TicketType: kanban.TicketTypeTask,
		LabelIDs:   []string{},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// seedColumn inserts board b1 with column c and cards named prefix0..n-1.
func seedColumn(t *testing.T, s kanban.Store, columnID, prefix string, n int) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.GetBoard(ctx, "b1"); errors.Is(err, kanban.ErrNotFound) {
		require.NoError(t, s.InsertBoard(ctx, board("b1", 0)))
	}
	count, err := s.CountColumns(ctx, kanban.ColumnFilter{BoardID: "b1"})
	require.NoError(t, err)
	require.NoError(t, s.InsertColumn(ctx, column(columnID, "b1", count)))

	for i := 0; i < n; i++ {
		require.NoError(t, s.InsertCard(ctx, card(fmt.Sprintf("%s%d", prefix, i), "b1", columnID, i)))
	}
}

func positions(t *testing.T, s kanban.Store, columnID string) map[string]int {
	t.Helper()
	cards, err := s.FindCards(context.Background(), kanban.CardFilter{ColumnID: columnID})
	require.NoError(t, err)

	out := make(map[string]int, len(cards))
	for _, c := range cards {
		out[c.ID] = c.Position
	}
	return out
}

// --- Contract ---

func testBoards(t *testing.T, s kanban.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBoard(ctx, board("b2", 1)))
	require.NoError(t, s.InsertBoard(ctx, board("b1", 0)))

	got, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Board b1", got.Title)
	assert.True(t, base.Equal(got.CreatedAt))

	boards, err := s.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, "b1", boards[0].ID)
	assert.Equal(t, "b2", boards[1].ID)

	_, err = s.GetBoard(ctx, "missing")
	assert.ErrorIs(t, err, kanban.ErrNotFound)
	var nf *kanban.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "board", nf.Kind)
}

func testColumns(t *testing.T, s kanban.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBoard(ctx, board("b1", 0)))
	require.NoError(t, s.InsertBoard(ctx, board("b2", 1)))
	require.NoError(t, s.InsertColumn(ctx, column("c2", "b1", 1)))
	require.NoError(t, s.InsertColumn(ctx, column("c1", "b1", 0)))
	require.NoError(t, s.InsertColumn(ctx, column("x1", "b2", 0)))

	cols, err := s.FindColumns(ctx, kanban.ColumnFilter{BoardID: "b1"})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "c1", cols[0].ID)
	assert.Equal(t, "c2", cols[1].ID)

	all, err := s.FindColumns(ctx, kanban.ColumnFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := s.CountColumns(ctx, kanban.ColumnFilter{BoardID: "b2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.SetColumnPosition(ctx, "c2", 5))
	got, err := s.GetColumn(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Position)

	assert.ErrorIs(t, s.SetColumnPosition(ctx, "missing", 0), kanban.ErrNotFound)
	_, err = s.GetColumn(ctx, "missing")
	assert.ErrorIs(t, err, kanban.ErrNotFound)
}

func testCards(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	seedColumn(t, s, "c1", "a", 3)
	seedColumn(t, s, "c2", "x", 2)

	c := card("z", "b1", "c1", 3)
	c.LabelIDs = []string{"l1", "l2"}
	c.ActualTimeToComplete = 2.5
	c.Description = "## Notes"
	require.NoError(t, s.InsertCard(ctx, c))

	got, err := s.GetCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, got.LabelIDs)
	assert.Equal(t, 2.5, got.ActualTimeToComplete)
	assert.Equal(t, "## Notes", got.Description)
	assert.Equal(t, kanban.TicketTypeTask, got.TicketType)

	cards, err := s.FindCards(ctx, kanban.CardFilter{ColumnID: "c1"})
	require.NoError(t, err)
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a0", "a1", "a2", "z"}, ids)

	board, err := s.FindCards(ctx, kanban.CardFilter{BoardID: "b1"})
	require.NoError(t, err)
	assert.Len(t, board, 6)

	n, err := s.CountCards(ctx, kanban.CardFilter{ColumnID: "c1", MinPosition: kanban.Ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountCards(ctx, kanban.CardFilter{ColumnID: "c1", ExcludeID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.DeleteCard(ctx, "a1"))
	_, err = s.GetCard(ctx, "a1")
	assert.ErrorIs(t, err, kanban.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCard(ctx, "a1"), kanban.ErrNotFound)
}

func testShiftCards(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	seedColumn(t, s, "c1", "a", 5)
	seedColumn(t, s, "c2", "x", 2)

	n, err := s.ShiftCards(ctx, kanban.CardFilter{
		ColumnID:    "c1",
		ExcludeID:   "a2",
		MinPosition: kanban.Ptr(1),
		MaxPosition: kanban.Ptr(3),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]int{"a0": 0, "a1": 2, "a2": 2, "a3": 4, "a4": 4}, positions(t, s, "c1"))

	// Other columns are untouched.
	assert.Equal(t, map[string]int{"x0": 0, "x1": 1}, positions(t, s, "c2"))

	n, err = s.ShiftCards(ctx, kanban.CardFilter{ColumnID: "c1", MinPosition: kanban.Ptr(4)}, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// An inverted range matches nothing.
	n, err = s.ShiftCards(ctx, kanban.CardFilter{
		ColumnID:    "c1",
		MinPosition: kanban.Ptr(3),
		MaxPosition: kanban.Ptr(2),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testUpdateCard(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	seedColumn(t, s, "c1", "a", 2)
	seedColumn(t, s, "c2", "x", 0)

	labels := []string{"l9"}
	got, err := s.UpdateCard(ctx, "a1", kanban.CardPatch{
		Title:      kanban.Ptr("Renamed"),
		Priority:   kanban.Ptr(kanban.PriorityUrgent),
		LabelIDs:   &labels,
		ColumnID:   kanban.Ptr("c2"),
		Position:   kanban.Ptr(0),
		AssigneeID: kanban.Ptr("carol"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, kanban.PriorityUrgent, got.Priority)
	assert.Equal(t, []string{"l9"}, got.LabelIDs)
	assert.Equal(t, "c2", got.ColumnID)
	assert.Equal(t, 0, got.Position)
	assert.Equal(t, "carol", got.AssigneeID)
	assert.Equal(t, "bob", got.ReporterID, "unpatched fields are kept")

	stored, err := s.GetCard(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, got.Title, stored.Title)
	assert.Equal(t, "c2", stored.ColumnID)

	_, err = s.UpdateCard(ctx, "missing", kanban.CardPatch{Title: kanban.Ptr("x")})
	assert.ErrorIs(t, err, kanban.ErrNotFound)
}

func testLabels(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertBoard(ctx, board("b1", 0)))

	first, err := s.UpsertLabel(ctx, &kanban.Label{
		ID: "l1", Name: "backend", DisplayName: "Backend", CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	assert.Equal(t, "l1", first.ID)

	again, err := s.UpsertLabel(ctx, &kanban.Label{
		ID: "l2", Name: "backend", DisplayName: "BACKEND", CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	assert.Equal(t, "l1", again.ID, "same name resolves to the existing label")
	assert.Equal(t, "BACKEND", again.DisplayName)

	scoped, err := s.UpsertLabel(ctx, &kanban.Label{
		ID: "l3", BoardID: "b1", Name: "backend", DisplayName: "backend", CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	assert.Equal(t, "l3", scoped.ID, "board scoped labels are distinct from unscoped ones")

	_, err = s.UpsertLabel(ctx, &kanban.Label{
		ID: "l4", BoardID: "b1", Name: "api", DisplayName: "API", CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)

	all, err := s.FindLabels(ctx, kanban.LabelFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "api", all[0].Name)

	onlyBoard, err := s.FindLabels(ctx, kanban.LabelFilter{BoardID: "b1"})
	require.NoError(t, err)
	assert.Len(t, onlyBoard, 2)

	visible, err := s.FindLabels(ctx, kanban.LabelFilter{BoardID: "b1", IncludeUnscoped: true})
	require.NoError(t, err)
	assert.Len(t, visible, 3)

	byID, err := s.FindLabels(ctx, kanban.LabelFilter{IDs: []string{"l1", "l4", "nope"}})
	require.NoError(t, err)
	assert.Len(t, byID, 2)

	none, err := s.FindLabels(ctx, kanban.LabelFilter{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	byName, err := s.FindLabels(ctx, kanban.LabelFilter{Name: "api"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "API", byName[0].DisplayName)
}

func testAtomicCommit(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	seedColumn(t, s, "c1", "a", 3)

	err := s.Atomic(ctx, func(tx kanban.Store) error {
		if _, err := tx.ShiftCards(ctx, kanban.CardFilter{ColumnID: "c1", MinPosition: kanban.Ptr(1)}, 1); err != nil {
			return err
		}
		// Nested units join the outer one.
		return tx.Atomic(ctx, func(inner kanban.Store) error {
			_, err := inner.UpdateCard(ctx, "a0", kanban.CardPatch{Position: kanban.Ptr(1)})
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a0": 1, "a1": 2, "a2": 3}, positions(t, s, "c1"))
}

func testAtomicRollback(t *testing.T, s kanban.Store) {
	ctx := context.Background()
	seedColumn(t, s, "c1", "a", 3)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx kanban.Store) error {
		if _, err := tx.ShiftCards(ctx, kanban.CardFilter{ColumnID: "c1"}, 10); err != nil {
			return err
		}
		if err := tx.DeleteCard(ctx, "a1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]int{"a0": 0, "a1": 1, "a2": 2}, positions(t, s, "c1"))
}
