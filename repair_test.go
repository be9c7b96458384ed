package taskboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairColumnClosesGaps(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		f := newFixture(t, svc, "Todo")
		ids := f.addCards(t, svc, "Todo", "A", "B", "C", "D")

		// Deleting straight from the store skips compaction.
		require.NoError(t, svc.Store().DeleteCard(ctx, ids["B"]))

		report, err := svc.CheckColumn(ctx, f.columns["Todo"].ID)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Equal(t, []int{1}, report.Gaps)
		assert.Equal(t, []int{3}, report.OutOfRange)

		res, err := svc.RepairColumn(ctx, f.columns["Todo"].ID)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Renumbered)
		assert.False(t, res.Before.OK())
		assert.Equal(t, []string{"A", "C", "D"}, f.order(t, svc, "Todo"))

		res, err = svc.RepairColumn(ctx, f.columns["Todo"].ID)
		require.NoError(t, err)
		assert.Zero(t, res.Renumbered)
	})
}

func TestRepairBoard(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		f := newFixture(t, svc, "Todo", "Done")
		ids := f.addCards(t, svc, "Todo", "A", "B")
		f.addCards(t, svc, "Done", "C")

		require.NoError(t, svc.Store().SetColumnPosition(ctx, f.columns["Done"].ID, 4))
		require.NoError(t, svc.Store().DeleteCard(ctx, ids["A"]))

		check, err := svc.CheckBoard(ctx, f.board.ID)
		require.NoError(t, err)
		assert.False(t, check.OK())
		assert.False(t, check.Columns.OK())
		assert.Len(t, check.Cards, 2)

		repair, err := svc.RepairBoard(ctx, f.board.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, repair.Columns.Renumbered)
		assert.Equal(t, 2, repair.Renumbered())

		check, err = svc.CheckBoard(ctx, f.board.ID)
		require.NoError(t, err)
		assert.True(t, check.OK())
		assert.Equal(t, []string{"B"}, f.order(t, svc, "Todo"))
	})
}

func TestCheckNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()

		_, err := svc.CheckColumn(ctx, "missing")
		assert.Error(t, err)
		_, err = svc.CheckBoard(ctx, "missing")
		assert.Error(t, err)
		_, err = svc.RepairColumn(ctx, "missing")
		assert.Error(t, err)
		_, err = svc.RepairBoard(ctx, "missing")
		assert.Error(t, err)
	})
}
