package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/madhatter5501/taskboard/kanban"

	"xorm.io/builder"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements kanban.Store using SQLite.
type Store struct {
	db   *DB
	q    queryer
	now  func() time.Time
	inTx bool
}

var _ kanban.Store = (*Store)(nil)

// NewStore creates a new SQLite-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.DB, now: time.Now}
}

// SetTimeFunc overrides the clock used for timestamps.
func (s *Store) SetTimeFunc(fn func() time.Time) {
	s.now = fn
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Atomic runs fn inside a database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(kanban.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kanban.WrapStore("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, now: s.now, inTx: true}); err != nil {
		return err
	}

	return kanban.WrapStore("commit", tx.Commit())
}

func (s *Store) exec(ctx context.Context, op string, b *builder.Builder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, kanban.WrapStore(op, err)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, kanban.WrapStore(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, kanban.WrapStore(op, err)
	}
	return n, nil
}

func (s *Store) count(ctx context.Context, op, table string, cond builder.Cond) (int, error) {
	query, args, err := builder.Select("COUNT(*)").From(table).Where(cond).ToSQL()
	if err != nil {
		return 0, kanban.WrapStore(op, err)
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, kanban.WrapStore(op, err)
	}
	return n, nil
}

// --- Board Operations ---

var boardCols = []string{"id", "title", "description", "created_at", "updated_at"}

// InsertBoard creates a new board.
func (s *Store) InsertBoard(ctx context.Context, b *kanban.Board) error {
	_, err := s.exec(ctx, "insert board", builder.Insert(builder.Eq{
		"id":          b.ID,
		"title":       b.Title,
		"description": b.Description,
		"created_at":  b.CreatedAt.UTC(),
		"updated_at":  b.UpdatedAt.UTC(),
	}).Into("boards"))
	return err
}

// GetBoard retrieves a board by ID.
func (s *Store) GetBoard(ctx context.Context, id string) (*kanban.Board, error) {
	query, args, err := builder.Select(boardCols...).From("boards").Where(builder.Eq{"id": id}).ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("get board", err)
	}

	var b kanban.Board
	err = s.q.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.Title, &b.Description, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kanban.NotFound("board", id)
	}
	if err != nil {
		return nil, kanban.WrapStore("get board", err)
	}
	return &b, nil
}

// ListBoards retrieves all boards ordered by creation time.
func (s *Store) ListBoards(ctx context.Context) ([]kanban.Board, error) {
	query, args, err := builder.Select(boardCols...).From("boards").OrderBy("created_at, id").ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("list boards", err)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kanban.WrapStore("list boards", err)
	}
	defer rows.Close()

	boards := []kanban.Board{}
	for rows.Next() {
		var b kanban.Board
		if err := rows.Scan(&b.ID, &b.Title, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, kanban.WrapStore("list boards", err)
		}
		boards = append(boards, b)
	}
	return boards, kanban.WrapStore("list boards", rows.Err())
}

// --- Column Operations ---

var columnCols = []string{"id", "board_id", "title", "position", "created_at", "updated_at"}

func columnCond(f kanban.ColumnFilter) builder.Cond {
	cond := builder.NewCond()
	if f.BoardID != "" {
		cond = cond.And(builder.Eq{"board_id": f.BoardID})
	}
	return cond
}

func scanColumn(row scanner) (*kanban.Column, error) {
	var c kanban.Column
	if err := row.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertColumn creates a new column.
func (s *Store) InsertColumn(ctx context.Context, c *kanban.Column) error {
	_, err := s.exec(ctx, "insert column", builder.Insert(builder.Eq{
		"id":         c.ID,
		"board_id":   c.BoardID,
		"title":      c.Title,
		"position":   c.Position,
		"created_at": c.CreatedAt.UTC(),
		"updated_at": c.UpdatedAt.UTC(),
	}).Into("board_columns"))
	return err
}

// GetColumn retrieves a column by ID.
func (s *Store) GetColumn(ctx context.Context, id string) (*kanban.Column, error) {
	query, args, err := builder.Select(columnCols...).From("board_columns").Where(builder.Eq{"id": id}).ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("get column", err)
	}

	c, err := scanColumn(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kanban.NotFound("column", id)
	}
	if err != nil {
		return nil, kanban.WrapStore("get column", err)
	}
	return c, nil
}

// FindColumns retrieves columns ordered by position.
func (s *Store) FindColumns(ctx context.Context, f kanban.ColumnFilter) ([]kanban.Column, error) {
	query, args, err := builder.Select(columnCols...).From("board_columns").
		Where(columnCond(f)).
		OrderBy("position, created_at, id").
		ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("find columns", err)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kanban.WrapStore("find columns", err)
	}
	defer rows.Close()

	columns := []kanban.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, kanban.WrapStore("find columns", err)
		}
		columns = append(columns, *c)
	}
	return columns, kanban.WrapStore("find columns", rows.Err())
}

// CountColumns counts columns matching the filter.
func (s *Store) CountColumns(ctx context.Context, f kanban.ColumnFilter) (int, error) {
	return s.count(ctx, "count columns", "board_columns", columnCond(f))
}

// SetColumnPosition updates a column's position.
func (s *Store) SetColumnPosition(ctx context.Context, id string, position int) error {
	n, err := s.exec(ctx, "set column position", builder.Update(builder.Eq{
		"position":   position,
		"updated_at": s.timestamp(),
	}).From("board_columns").Where(builder.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return kanban.NotFound("column", id)
	}
	return nil
}

// --- Card Operations ---

var cardCols = []string{
	"id", "board_id", "column_id", "position", "title", "description",
	"assignee_id", "reporter_id", "priority", "ticket_type", "labels",
	"actual_time_to_complete", "created_at", "updated_at",
}

func cardCond(f kanban.CardFilter) builder.Cond {
	cond := builder.NewCond()
	if f.BoardID != "" {
		cond = cond.And(builder.Eq{"board_id": f.BoardID})
	}
	if f.ColumnID != "" {
		cond = cond.And(builder.Eq{"column_id": f.ColumnID})
	}
	if f.ExcludeID != "" {
		cond = cond.And(builder.Neq{"id": f.ExcludeID})
	}
	if f.MinPosition != nil {
		cond = cond.And(builder.Gte{"position": *f.MinPosition})
	}
	if f.MaxPosition != nil {
		cond = cond.And(builder.Lte{"position": *f.MaxPosition})
	}
	return cond
}

func scanCard(row scanner) (*kanban.Card, error) {
	var c kanban.Card
	var labels string
	err := row.Scan(
		&c.ID, &c.BoardID, &c.ColumnID, &c.Position, &c.Title, &c.Description,
		&c.AssigneeID, &c.ReporterID, &c.Priority, &c.TicketType, &labels,
		&c.ActualTimeToComplete, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LabelIDs = []string{}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &c.LabelIDs); err != nil {
			return nil, fmt.Errorf("card %s: bad labels column: %w", c.ID, err)
		}
	}
	return &c, nil
}

func encodeLabels(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	return string(data), err
}

// InsertCard creates a new card.
func (s *Store) InsertCard(ctx context.Context, c *kanban.Card) error {
	labels, err := encodeLabels(c.LabelIDs)
	if err != nil {
		return kanban.WrapStore("insert card", err)
	}

	_, err = s.exec(ctx, "insert card", builder.Insert(builder.Eq{
		"id":                      c.ID,
		"board_id":                c.BoardID,
		"column_id":               c.ColumnID,
		"position":                c.Position,
		"title":                   c.Title,
		"description":             c.Description,
		"assignee_id":             c.AssigneeID,
		"reporter_id":             c.ReporterID,
		"priority":                string(c.Priority),
		"ticket_type":             string(c.TicketType),
		"labels":                  labels,
		"actual_time_to_complete": c.ActualTimeToComplete,
		"created_at":              c.CreatedAt.UTC(),
		"updated_at":              c.UpdatedAt.UTC(),
	}).Into("cards"))
	return err
}

// GetCard retrieves a card by ID.
func (s *Store) GetCard(ctx context.Context, id string) (*kanban.Card, error) {
	query, args, err := builder.Select(cardCols...).From("cards").Where(builder.Eq{"id": id}).ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("get card", err)
	}

	c, err := scanCard(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kanban.NotFound("card", id)
	}
	if err != nil {
		return nil, kanban.WrapStore("get card", err)
	}
	return c, nil
}

// FindCards retrieves cards ordered by position.
func (s *Store) FindCards(ctx context.Context, f kanban.CardFilter) ([]kanban.Card, error) {
	if f.Empty() {
		return []kanban.Card{}, nil
	}

	query, args, err := builder.Select(cardCols...).From("cards").
		Where(cardCond(f)).
		OrderBy("position, created_at, id").
		ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("find cards", err)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kanban.WrapStore("find cards", err)
	}
	defer rows.Close()

	cards := []kanban.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, kanban.WrapStore("find cards", err)
		}
		cards = append(cards, *c)
	}
	return cards, kanban.WrapStore("find cards", rows.Err())
}

// CountCards counts cards matching the filter.
func (s *Store) CountCards(ctx context.Context, f kanban.CardFilter) (int, error) {
	if f.Empty() {
		return 0, nil
	}
	return s.count(ctx, "count cards", "cards", cardCond(f))
}

// UpdateCard applies a partial update to a card and returns the stored result.
func (s *Store) UpdateCard(ctx context.Context, id string, p kanban.CardPatch) (*kanban.Card, error) {
	set := builder.Eq{"updated_at": s.timestamp()}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.AssigneeID != nil {
		set["assignee_id"] = *p.AssigneeID
	}
	if p.ReporterID != nil {
		set["reporter_id"] = *p.ReporterID
	}
	if p.Priority != nil {
		set["priority"] = string(*p.Priority)
	}
	if p.TicketType != nil {
		set["ticket_type"] = string(*p.TicketType)
	}
	if p.LabelIDs != nil {
		labels, err := encodeLabels(*p.LabelIDs)
		if err != nil {
			return nil, kanban.WrapStore("update card", err)
		}
		set["labels"] = labels
	}
	if p.ActualTimeToComplete != nil {
		set["actual_time_to_complete"] = *p.ActualTimeToComplete
	}
	if p.ColumnID != nil {
		set["column_id"] = *p.ColumnID
	}
	if p.Position != nil {
		set["position"] = *p.Position
	}

	n, err := s.exec(ctx, "update card", builder.Update(set).From("cards").Where(builder.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, kanban.NotFound("card", id)
	}
	return s.GetCard(ctx, id)
}

// ShiftCards adds delta to the position of every card matching the filter in a
// single UPDATE statement.
func (s *Store) ShiftCards(ctx context.Context, f kanban.CardFilter, delta int) (int, error) {
	if f.Empty() || delta == 0 {
		return 0, nil
	}

	n, err := s.exec(ctx, "shift cards", builder.Update(builder.Eq{
		"position":   builder.Expr("position + ?", delta),
		"updated_at": s.timestamp(),
	}).From("cards").Where(cardCond(f)))
	return int(n), err
}

// DeleteCard deletes a card.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	n, err := s.exec(ctx, "delete card", builder.Delete(builder.Eq{"id": id}).From("cards"))
	if err != nil {
		return err
	}
	if n == 0 {
		return kanban.NotFound("card", id)
	}
	return nil
}

// --- Label Operations ---

var labelCols = []string{"id", "board_id", "name", "display_name", "created_at", "updated_at"}

func labelCond(f kanban.LabelFilter) builder.Cond {
	cond := builder.NewCond()
	if f.BoardID != "" {
		if f.IncludeUnscoped {
			cond = cond.And(builder.In("board_id", f.BoardID, ""))
		} else {
			cond = cond.And(builder.Eq{"board_id": f.BoardID})
		}
	}
	if f.Name != "" {
		cond = cond.And(builder.Eq{"name": f.Name})
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			// Nothing can match an empty id set.
			cond = cond.And(builder.Expr("1 = 0"))
		} else {
			ids := make([]any, len(f.IDs))
			for i, id := range f.IDs {
				ids[i] = id
			}
			cond = cond.And(builder.In("id", ids...))
		}
	}
	return cond
}

func scanLabel(row scanner) (*kanban.Label, error) {
	var l kanban.Label
	if err := row.Scan(&l.ID, &l.BoardID, &l.Name, &l.DisplayName, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// FindLabels retrieves labels ordered by name.
func (s *Store) FindLabels(ctx context.Context, f kanban.LabelFilter) ([]kanban.Label, error) {
	query, args, err := builder.Select(labelCols...).From("labels").
		Where(labelCond(f)).
		OrderBy("name, board_id").
		ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("find labels", err)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kanban.WrapStore("find labels", err)
	}
	defer rows.Close()

	labels := []kanban.Label{}
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, kanban.WrapStore("find labels", err)
		}
		labels = append(labels, *l)
	}
	return labels, kanban.WrapStore("find labels", rows.Err())
}

// UpsertLabel inserts a label or, when one with the same board and name exists,
// overwrites its display name. The stored record is returned either way.
func (s *Store) UpsertLabel(ctx context.Context, l *kanban.Label) (*kanban.Label, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO labels (id, board_id, name, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(board_id, name) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, l.ID, l.BoardID, l.Name, l.DisplayName, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return nil, kanban.WrapStore("upsert label", err)
	}

	query, args, err := builder.Select(labelCols...).From("labels").
		Where(builder.Eq{"board_id": l.BoardID, "name": l.Name}).
		ToSQL()
	if err != nil {
		return nil, kanban.WrapStore("upsert label", err)
	}

	stored, err := scanLabel(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, kanban.WrapStore("upsert label", err)
	}
	return stored, nil
}
