package kanban_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madhatter5501/taskboard/kanban"
	"github.com/madhatter5501/taskboard/kanban/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kanban.Store {
		return kanban.NewMemoryState()
	})
}

func TestFileStateContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kanban.Store {
		s := kanban.NewState(filepath.Join(t.TempDir(), "board.json"))
		require.NoError(t, s.Load())
		return s
	})
}

func TestStatePersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "board.json")
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s := kanban.NewState(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.InsertBoard(ctx, &kanban.Board{ID: "b1", Title: "Ops", CreatedAt: at, UpdatedAt: at}))
	require.NoError(t, s.InsertColumn(ctx, &kanban.Column{ID: "c1", BoardID: "b1", Title: "Todo"}))
	require.NoError(t, s.InsertCard(ctx, &kanban.Card{
		ID: "k1", BoardID: "b1", ColumnID: "c1", Title: "Card",
		LabelIDs: []string{"l1"},
		Labels:   []kanban.Label{{ID: "l1", Name: "x"}},
	}))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed into place")

	reloaded := kanban.NewState(path)
	require.NoError(t, reloaded.Load())

	b, err := reloaded.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, at.Equal(b.CreatedAt))

	c, err := reloaded.GetCard(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, c.LabelIDs)
	assert.Empty(t, c.Labels, "resolved labels are not persisted")
}

func TestStateLoadMissingFile(t *testing.T) {
	s := kanban.NewState(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, s.Load())

	boards, err := s.ListBoards(context.Background())
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestStateLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	assert.Error(t, kanban.NewState(path).Load())
}

func TestStateAtomicRollbackLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.json")

	s := kanban.NewState(path)
	require.NoError(t, s.InsertBoard(ctx, &kanban.Board{ID: "b1", Title: "B"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx kanban.Store) error {
		if err := tx.InsertBoard(ctx, &kanban.Board{ID: "b2", Title: "B2"}); err != nil {
			return err
		}
		return kanban.Invalid("title", "rejected")
	})
	assert.ErrorIs(t, err, kanban.ErrValidation)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = s.GetBoard(ctx, "b2")
	assert.ErrorIs(t, err, kanban.ErrNotFound)
}

func TestStateReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := kanban.NewMemoryState()
	require.NoError(t, s.InsertCard(ctx, &kanban.Card{ID: "k1", ColumnID: "c1", LabelIDs: []string{"a"}}))

	c, err := s.GetCard(ctx, "k1")
	require.NoError(t, err)
	c.LabelIDs[0] = "mutated"

	again, err := s.GetCard(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.LabelIDs)
}

func TestStateFailedSaveLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.json")

	s := kanban.NewState(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.InsertBoard(ctx, &kanban.Board{ID: "b1", Title: "B"}))
	require.NoError(t, s.InsertColumn(ctx, &kanban.Column{ID: "c1", BoardID: "b1", Title: "Todo"}))
	require.NoError(t, s.InsertCard(ctx, &kanban.Card{ID: "k1", BoardID: "b1", ColumnID: "c1", Title: "Card"}))
	_, err := s.UpsertLabel(ctx, &kanban.Label{ID: "l1", Name: "backend", DisplayName: "Backend"})
	require.NoError(t, err)

	// A directory in place of the temp file makes every save fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0755))

	var se *kanban.StoreError
	assert.ErrorAs(t, s.InsertBoard(ctx, &kanban.Board{ID: "b2", Title: "B2"}), &se)
	_, err = s.GetBoard(ctx, "b2")
	assert.ErrorIs(t, err, kanban.ErrNotFound)

	_, err = s.UpdateCard(ctx, "k1", kanban.CardPatch{Title: kanban.Ptr("Renamed")})
	assert.ErrorAs(t, err, &se)
	_, err = s.ShiftCards(ctx, kanban.CardFilter{ColumnID: "c1"}, 3)
	assert.ErrorAs(t, err, &se)
	card, err := s.GetCard(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "Card", card.Title)
	assert.Zero(t, card.Position)

	assert.ErrorAs(t, s.DeleteCard(ctx, "k1"), &se)
	_, err = s.GetCard(ctx, "k1")
	assert.NoError(t, err)

	_, err = s.UpsertLabel(ctx, &kanban.Label{ID: "l2", Name: "backend", DisplayName: "BACKEND"})
	assert.ErrorAs(t, err, &se)
	labels, err := s.FindLabels(ctx, kanban.LabelFilter{})
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "Backend", labels[0].DisplayName)

	// Once saving works again, the rejected writes do not reappear on disk.
	require.NoError(t, os.Remove(path+".tmp"))
	require.NoError(t, s.InsertBoard(ctx, &kanban.Board{ID: "b3", Title: "B3"}))

	reloaded := kanban.NewState(path)
	require.NoError(t, reloaded.Load())
	boards, err := reloaded.ListBoards(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, b := range boards {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"b1", "b3"}, ids)
}

func TestStateWritersSharingFileKeepEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.json")

	server := kanban.NewState(path)
	require.NoError(t, server.Load())
	cli := kanban.NewState(path)
	require.NoError(t, cli.Load())

	require.NoError(t, server.InsertBoard(ctx, &kanban.Board{ID: "b1", Title: "From server"}))
	require.NoError(t, cli.InsertBoard(ctx, &kanban.Board{ID: "b2", Title: "From cli"}))
	require.NoError(t, server.Atomic(ctx, func(tx kanban.Store) error {
		return tx.InsertBoard(ctx, &kanban.Board{ID: "b3", Title: "From server again"})
	}))

	reloaded := kanban.NewState(path)
	require.NoError(t, reloaded.Load())
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := reloaded.GetBoard(ctx, id)
		assert.NoError(t, err, id)
	}

	// A writer sees the other process's records after its own next write.
	_, err := server.GetBoard(ctx, "b2")
	assert.NoError(t, err)
}
