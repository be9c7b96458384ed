package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/madhatter5501/taskboard"
	"github.com/madhatter5501/taskboard/internal/lock"
	"github.com/madhatter5501/taskboard/kanban"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithTimeout(t, 0)
}

// newTestEnvWithTimeout starts the server with the given http.Server
// WriteTimeout; zero leaves writes unbounded.
func newTestEnvWithTimeout(t *testing.T, writeTimeout time.Duration) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := taskboard.NewService(kanban.NewMemoryState(), taskboard.DefaultConfig(),
		taskboard.WithLocker(lock.NewLocal()),
		taskboard.WithLogger(logger))

	srv := NewServer(svc, logger, Options{WriteTimeout: writeTimeout})
	ts := httptest.NewUnstartedServer(srv.Handler())
	ts.Config.WriteTimeout = writeTimeout
	ts.Start()
	t.Cleanup(ts.Close)
	return &testEnv{t: t, srv: srv, ts: ts}
}

// do sends body as JSON and decodes the response into out when out is not nil.
func (e *testEnv) do(method, path string, body any, out any) int {
	e.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// setup creates a board with two columns and returns their ids.
func (e *testEnv) setup() (boardID, todoID, doneID string) {
	e.t.Helper()

	var board kanban.Board
	require.Equal(e.t, http.StatusCreated, e.do("POST", "/api/boards", map[string]string{"title": "Sprint"}, &board))

	var todo, done kanban.Column
	require.Equal(e.t, http.StatusCreated, e.do("POST", "/api/boards/"+board.ID+"/columns", map[string]string{"title": "Todo"}, &todo))
	require.Equal(e.t, http.StatusCreated, e.do("POST", "/api/columns/boards/"+board.ID, map[string]string{"title": "Done"}, &done))
	return board.ID, todo.ID, done.ID
}

func (e *testEnv) createCard(boardID, columnID, title string) kanban.Card {
	e.t.Helper()
	var card kanban.Card
	code := e.do("POST", "/api/cards", map[string]any{
		"boardId":     boardID,
		"columnId":    columnID,
		"title":       title,
		"description": "Fix the **login** flow",
		"assigneeId":  "alice",
		"reporterId":  "bob",
		"ticketType":  "bug",
	}, &card)
	require.Equal(e.t, http.StatusCreated, code)
	return card
}

func TestAPIBoardLifecycle(t *testing.T) {
	e := newTestEnv(t)
	boardID, todoID, doneID := e.setup()

	a := e.createCard(boardID, todoID, "A")
	b := e.createCard(boardID, todoID, "B")
	assert.Equal(t, 0, a.Position)
	assert.Equal(t, 1, b.Position)

	// Reorder within the column.
	var moved moveResponse
	code := e.do("PATCH", "/api/cards/"+b.ID+"/move", map[string]any{
		"fromColumnId": todoID, "toColumnId": todoID, "fromPosition": 1, "toPosition": 0,
	}, &moved)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Card reordered", moved.Message)
	assert.Equal(t, 0, moved.Card.Position)

	// Move across columns.
	code = e.do("PATCH", "/api/cards/"+a.ID+"/move", map[string]any{
		"fromColumnId": todoID, "toColumnId": doneID, "fromPosition": 1, "toPosition": 0,
	}, &moved)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Card moved", moved.Message)
	assert.Equal(t, doneID, moved.Card.ColumnID)

	var view kanban.BoardView
	require.Equal(t, http.StatusOK, e.do("GET", "/api/boards/"+boardID, nil, &view))
	require.Len(t, view.Columns, 2)
	require.Len(t, view.Columns[0].Cards, 1)
	assert.Equal(t, b.ID, view.Columns[0].Cards[0].ID)
	require.Len(t, view.Columns[1].Cards, 1)
	assert.Equal(t, a.ID, view.Columns[1].Cards[0].ID)

	var deleted map[string]string
	require.Equal(t, http.StatusOK, e.do("DELETE", "/api/cards/"+b.ID, nil, &deleted))
	assert.Equal(t, "Card deleted", deleted["message"])

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, e.do("GET", "/api/cards/"+b.ID, nil, &errBody))
	assert.Contains(t, errBody["error"], "not found")
}

func TestAPIGetCardRendersDescription(t *testing.T) {
	e := newTestEnv(t)
	boardID, todoID, _ := e.setup()
	card := e.createCard(boardID, todoID, "A")

	var got map[string]any
	require.Equal(t, http.StatusOK, e.do("GET", "/api/cards/"+card.ID, nil, &got))
	assert.Equal(t, "Fix the **login** flow", got["description"])
	assert.Contains(t, got["descriptionHtml"], "<strong>login</strong>")
	assert.Equal(t, []any{}, got["labels"])
}

func TestAPIErrors(t *testing.T) {
	e := newTestEnv(t)
	boardID, todoID, _ := e.setup()
	card := e.createCard(boardID, todoID, "A")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		error  string
	}{
		{"malformed body", "POST", "/api/cards", "{", http.StatusBadRequest, "Invalid request body"},
		{"missing title", "POST", "/api/cards", map[string]any{
			"boardId": boardID, "columnId": todoID, "assigneeId": "a", "reporterId": "b", "ticketType": "task",
		}, http.StatusBadRequest, "title is required"},
		{"missing toPosition", "PATCH", "/api/cards/" + card.ID + "/move", map[string]any{
			"fromColumnId": todoID, "toColumnId": todoID, "fromPosition": 0,
		}, http.StatusBadRequest, "toPosition is required"},
		{"unknown card", "PATCH", "/api/cards/missing/move", map[string]any{
			"fromColumnId": todoID, "toColumnId": todoID, "fromPosition": 0, "toPosition": 0,
		}, http.StatusNotFound, `card "missing" not found`},
		{"update position", "PATCH", "/api/cards/" + card.ID, map[string]any{"position": 3},
			http.StatusBadRequest, "position cannot be changed by update, move the card instead"},
		{"unknown board", "GET", "/api/boards/missing", nil, http.StatusNotFound, `board "missing" not found`},
		{"empty label", "POST", "/api/labels", map[string]string{"name": " "}, http.StatusBadRequest, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tt.code, e.do(tt.method, tt.path, tt.body, &body))
			assert.Equal(t, tt.error, body["error"])
		})
	}
}

func TestAPILabelsAndColumns(t *testing.T) {
	e := newTestEnv(t)
	boardID, _, _ := e.setup()

	var first, second kanban.Label
	require.Equal(t, http.StatusCreated, e.do("POST", "/api/labels", map[string]string{"name": " Backend "}, &first))
	require.Equal(t, http.StatusCreated, e.do("POST", "/api/labels", map[string]string{"name": "backend"}, &second))
	assert.Equal(t, first.ID, second.ID)

	var labels []kanban.Label
	require.Equal(t, http.StatusOK, e.do("GET", "/api/labels/board/"+boardID, nil, &labels))
	require.Len(t, labels, 1)
	assert.Equal(t, "backend", labels[0].Name)

	var columns []kanban.Column
	require.Equal(t, http.StatusOK, e.do("GET", "/api/columns?boardId="+boardID, nil, &columns))
	assert.Len(t, columns, 2)

	var report kanban.IntegrityReport
	require.Equal(t, http.StatusOK, e.do("GET", "/api/columns/"+columns[0].ID+"/integrity", nil, &report))
	assert.True(t, report.OK())
}

func TestAPIHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	boardID, todoID, _ := e.setup()
	card := e.createCard(boardID, todoID, "A")
	require.Equal(t, http.StatusOK, e.do("PATCH", "/api/cards/"+card.ID+"/move", map[string]any{
		"fromColumnId": todoID, "toColumnId": todoID, "fromPosition": 0, "toPosition": 0,
	}, nil))

	var health map[string]string
	require.Equal(t, http.StatusOK, e.do("GET", "/healthz", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(data), `taskboard_card_moves_total{kind="reorder"} 1`)
	assert.Contains(t, string(data), `route="/api/cards/{id}/move"`)
}

func TestAPIUnmatchedPathsShareMetricsRoute(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/nope/123", "/nope/456", "/wp-login.php"} {
		assert.Equal(t, http.StatusNotFound, e.do("GET", path, nil, nil))
	}

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `route="unmatched"`)
	assert.NotContains(t, out, "/nope/")
	assert.NotContains(t, out, "wp-login")
}

func TestRenderMarkdown(t *testing.T) {
	assert.Empty(t, renderMarkdown(""))
	assert.Contains(t, renderMarkdown("- [x] done"), `type="checkbox"`)
	assert.NotContains(t, renderMarkdown("<script>alert(1)</script>"), "<script>")
}
