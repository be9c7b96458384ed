package taskboard

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/madhatter5501/taskboard/internal/db"
	"github.com/madhatter5501/taskboard/internal/lock"
	"github.com/madhatter5501/taskboard/kanban"

	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type storeCase struct {
	name string
	open func(t *testing.T) kanban.Store
}

var storeCases = []storeCase{
	{"memory", func(t *testing.T) kanban.Store {
		return kanban.NewMemoryState()
	}},
	{"json", func(t *testing.T) kanban.Store {
		s := kanban.NewState(filepath.Join(t.TempDir(), "board.json"))
		require.NoError(t, s.Load())
		return s
	}},
	{"sqlite", func(t *testing.T) kanban.Store {
		database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "board.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { database.Close() })
		return db.NewStore(database)
	}},
}

// forEachStore runs fn once per store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, svc *Service)) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			fn(t, newTestService(t, sc.open(t)))
		})
	}
}

// tickingClock returns a clock that advances one millisecond per call so
// creation order is always observable.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestService(t *testing.T, store kanban.Store, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithLocker(lock.NewLocal()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(tickingClock()),
	}
	return NewService(store, DefaultConfig(), append(base, opts...)...)
}

// fixture is a board with named columns.
type fixture struct {
	board   *kanban.Board
	columns map[string]*kanban.Column
}

func newFixture(t *testing.T, svc *Service, columns ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, BoardInput{Title: "Sprint"})
	require.NoError(t, err)

	f := &fixture{board: board, columns: make(map[string]*kanban.Column)}
	for _, title := range columns {
		col, err := svc.CreateColumn(ctx, ColumnInput{BoardID: board.ID, Title: title})
		require.NoError(t, err)
		f.columns[title] = col
	}
	return f
}

func (f *fixture) cardInput(column, title string) CardInput {
	return CardInput{
		BoardID:    f.board.ID,
		ColumnID:   f.columns[column].ID,
		Title:      title,
		AssigneeID: "alice",
		ReporterID: "bob",
		TicketType: "task",
	}
}

// addCards appends cards with the given titles to column and returns their ids.
func (f *fixture) addCards(t *testing.T, svc *Service, column string, titles ...string) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(titles))
	for _, title := range titles {
		card, err := svc.CreateCard(context.Background(), f.cardInput(column, title))
		require.NoError(t, err)
		ids[title] = card.ID
	}
	return ids
}

// order returns the titles of a column's cards by position, failing if the
// positions are not exactly 0..n-1.
func (f *fixture) order(t *testing.T, svc *Service, column string) []string {
	t.Helper()
	cards, err := svc.Store().FindCards(context.Background(), kanban.CardFilter{ColumnID: f.columns[column].ID})
	require.NoError(t, err)

	titles := make([]string, len(cards))
	for i, c := range cards {
		require.Equal(t, i, c.Position, "card %q in %s", c.Title, column)
		titles[i] = c.Title
	}
	return titles
}
