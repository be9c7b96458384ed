package taskboard

import (
	"context"
	"testing"

	"github.com/madhatter5501/taskboard/kanban"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardsAndColumns(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()

		_, err := svc.CreateBoard(ctx, BoardInput{Title: " "})
		assert.ErrorIs(t, err, kanban.ErrValidation)

		f := newFixture(t, svc, "Todo", "Doing", "Done")
		other := newFixture(t, svc, "Backlog")

		for i, title := range []string{"Todo", "Doing", "Done"} {
			assert.Equal(t, i, f.columns[title].Position)
		}
		assert.Zero(t, other.columns["Backlog"].Position)

		columns, err := svc.ListColumns(ctx, f.board.ID)
		require.NoError(t, err)
		require.Len(t, columns, 3)
		assert.Equal(t, "Done", columns[2].Title)

		all, err := svc.ListColumns(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)

		boards, err := svc.ListBoards(ctx)
		require.NoError(t, err)
		assert.Len(t, boards, 2)

		_, err = svc.CreateColumn(ctx, ColumnInput{BoardID: "missing", Title: "x"})
		assert.ErrorIs(t, err, kanban.ErrNotFound)

		_, err = svc.CreateColumn(ctx, ColumnInput{BoardID: f.board.ID})
		assert.ErrorIs(t, err, kanban.ErrValidation)
	})
}
