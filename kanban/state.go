package kanban

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// State is a document store that keeps every collection in memory and, when a
// file path is set, persists them to a single JSON file after each write.
// An empty path gives a purely in-memory store.
type State struct {
	mu       sync.RWMutex
	doc      *document
	filePath string
	fileLock *flock.Flock
	now      func() time.Time
	inTx     bool
}

// document is the on-disk layout.
type document struct {
	Boards  []Board  `json:"boards"`
	Columns []Column `json:"columns"`
	Cards   []Card   `json:"cards"`
	Labels  []Label  `json:"labels"`
}

func (d *document) clone() *document {
	c := &document{
		Boards:  append([]Board{}, d.Boards...),
		Columns: append([]Column{}, d.Columns...),
		Cards:   make([]Card, len(d.Cards)),
		Labels:  append([]Label{}, d.Labels...),
	}
	for i := range d.Cards {
		c.Cards[i] = d.Cards[i].Clone()
	}
	return c
}

// NewState creates a new state store backed by filePath.
func NewState(filePath string) *State {
	s := &State{
		filePath: filePath,
		doc:      &document{},
		now:      time.Now,
	}
	if filePath != "" {
		s.fileLock = flock.New(filePath + ".lock")
	}
	return s
}

// NewMemoryState creates a state store that is never written to disk.
func NewMemoryState() *State {
	return NewState("")
}

// SetTimeFunc overrides the clock used for timestamps.
func (s *State) SetTimeFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// Load reads the document from disk. A missing file yields an empty store.
func (s *State) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	return s.withFileLock(func() error {
		doc, err := s.readFile()
		if err != nil {
			return err
		}
		if doc == nil {
			doc = &document{}
		}
		s.doc = doc
		return nil
	})
}

// Save writes the document to disk.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}
	return s.withFileLock(func() error {
		return s.writeFile(s.doc)
	})
}

// readFile parses the store file. It returns nil when the file does not exist.
func (s *State) readFile() (*document, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return &doc, nil
}

func (s *State) writeFile(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize store: %w", err)
	}

	// Write atomically
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename store file: %w", err)
	}
	return nil
}

// withFileLock holds the cross-process lock file while fn runs.
func (s *State) withFileLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := s.fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock store file: %w", err)
	}
	if !locked {
		return fmt.Errorf("store file %s is locked by another process", s.filePath)
	}
	defer s.fileLock.Unlock()

	return fn()
}

// commit applies fn to a copy of the document and keeps the copy only once it
// is persisted. File-backed stores re-read the file under the file lock first,
// so a write never overwrites what another process saved since the last load.
// The caller holds s.mu.
func (s *State) commit(op string, fn func(d *document) error) error {
	if s.inTx {
		return fn(s.doc)
	}

	if s.filePath == "" {
		next := s.doc.clone()
		if err := fn(next); err != nil {
			return err
		}
		s.doc = next
		return nil
	}

	return s.withFileLock(func() error {
		base, err := s.readFile()
		if err != nil {
			return WrapStore(op, err)
		}
		if base == nil {
			base = s.doc
		}
		s.doc = base

		next := base.clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := s.writeFile(next); err != nil {
			return WrapStore(op, err)
		}
		s.doc = next
		return nil
	})
}

// Atomic runs fn against a private copy of the document and swaps it in when fn
// succeeds. The store is write-locked for the duration, and file-backed stores
// also hold the file lock, so units never interleave.
func (s *State) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("commit", func(d *document) error {
		return fn(&State{doc: d, now: s.now, inTx: true})
	})
}

// --- Boards ---

// InsertBoard adds a board.
func (s *State) InsertBoard(ctx context.Context, b *Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("insert board", func(d *document) error {
		for _, existing := range d.Boards {
			if existing.ID == b.ID {
				return WrapStore("insert board", fmt.Errorf("duplicate id %q", b.ID))
			}
		}
		d.Boards = append(d.Boards, *b)
		return nil
	})
}

// GetBoard returns a board by ID.
func (s *State) GetBoard(ctx context.Context, id string) (*Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.doc.Boards {
		if s.doc.Boards[i].ID == id {
			b := s.doc.Boards[i]
			return &b, nil
		}
	}
	return nil, NotFound("board", id)
}

// ListBoards returns every board ordered by creation time.
func (s *State) ListBoards(ctx context.Context) ([]Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	boards := append([]Board{}, s.doc.Boards...)
	sort.SliceStable(boards, func(i, j int) bool {
		if !boards[i].CreatedAt.Equal(boards[j].CreatedAt) {
			return boards[i].CreatedAt.Before(boards[j].CreatedAt)
		}
		return boards[i].ID < boards[j].ID
	})
	return boards, nil
}

// --- Columns ---

// InsertColumn adds a column.
func (s *State) InsertColumn(ctx context.Context, c *Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("insert column", func(d *document) error {
		for _, existing := range d.Columns {
			if existing.ID == c.ID {
				return WrapStore("insert column", fmt.Errorf("duplicate id %q", c.ID))
			}
		}
		d.Columns = append(d.Columns, *c)
		return nil
	})
}

// GetColumn returns a column by ID.
func (s *State) GetColumn(ctx context.Context, id string) (*Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.doc.Columns {
		if s.doc.Columns[i].ID == id {
			c := s.doc.Columns[i]
			return &c, nil
		}
	}
	return nil, NotFound("column", id)
}

// FindColumns returns the matching columns ordered by position.
func (s *State) FindColumns(ctx context.Context, f ColumnFilter) ([]Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Column{}
	for _, c := range s.doc.Columns {
		if f.BoardID != "" && c.BoardID != f.BoardID {
			continue
		}
		result = append(result, c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return columnLess(&result[i], &result[j])
	})
	return result, nil
}

// CountColumns counts the matching columns.
func (s *State) CountColumns(ctx context.Context, f ColumnFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.doc.Columns {
		if f.BoardID == "" || c.BoardID == f.BoardID {
			n++
		}
	}
	return n, nil
}

// SetColumnPosition sets a column's position.
func (s *State) SetColumnPosition(ctx context.Context, id string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("set column position", func(d *document) error {
		for i := range d.Columns {
			if d.Columns[i].ID == id {
				d.Columns[i].Position = position
				d.Columns[i].UpdatedAt = s.now()
				return nil
			}
		}
		return NotFound("column", id)
	})
}

// --- Cards ---

// InsertCard adds a card.
func (s *State) InsertCard(ctx context.Context, c *Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("insert card", func(d *document) error {
		for _, existing := range d.Cards {
			if existing.ID == c.ID {
				return WrapStore("insert card", fmt.Errorf("duplicate id %q", c.ID))
			}
		}
		stored := c.Clone()
		stored.Labels = nil
		d.Cards = append(d.Cards, stored)
		return nil
	})
}

// GetCard returns a card by ID.
func (s *State) GetCard(ctx context.Context, id string) (*Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.doc.cardIndex(id); i >= 0 {
		c := s.doc.Cards[i].Clone()
		return &c, nil
	}
	return nil, NotFound("card", id)
}

// FindCards returns the matching cards ordered by position.
func (s *State) FindCards(ctx context.Context, f CardFilter) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Card{}
	for i := range s.doc.Cards {
		if f.Matches(&s.doc.Cards[i]) {
			result = append(result, s.doc.Cards[i].Clone())
		}
	}
	SortCards(result)
	return result, nil
}

// CountCards counts the matching cards.
func (s *State) CountCards(ctx context.Context, f CardFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.doc.Cards {
		if f.Matches(&s.doc.Cards[i]) {
			n++
		}
	}
	return n, nil
}

// UpdateCard applies a patch to a single card and returns the result.
func (s *State) UpdateCard(ctx context.Context, id string, p CardPatch) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated Card
	err := s.commit("update card", func(d *document) error {
		i := d.cardIndex(id)
		if i < 0 {
			return NotFound("card", id)
		}
		p.Apply(&d.Cards[i])
		d.Cards[i].UpdatedAt = s.now()
		updated = d.Cards[i].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ShiftCards adds delta to the position of every matching card.
func (s *State) ShiftCards(ctx context.Context, f CardFilter, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Empty() || delta == 0 {
		return 0, nil
	}

	n := 0
	err := s.commit("shift cards", func(d *document) error {
		now := s.now()
		n = 0
		for i := range d.Cards {
			if f.Matches(&d.Cards[i]) {
				d.Cards[i].Position += delta
				d.Cards[i].UpdatedAt = now
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteCard removes a card.
func (s *State) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit("delete card", func(d *document) error {
		i := d.cardIndex(id)
		if i < 0 {
			return NotFound("card", id)
		}
		d.Cards = append(d.Cards[:i], d.Cards[i+1:]...)
		return nil
	})
}

func (d *document) cardIndex(id string) int {
	for i := range d.Cards {
		if d.Cards[i].ID == id {
			return i
		}
	}
	return -1
}

// --- Labels ---

// FindLabels returns the matching labels ordered by name.
func (s *State) FindLabels(ctx context.Context, f LabelFilter) ([]Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Label{}
	for i := range s.doc.Labels {
		if f.Matches(&s.doc.Labels[i]) {
			result = append(result, s.doc.Labels[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].BoardID < result[j].BoardID
	})
	return result, nil
}

// UpsertLabel inserts l, or when a label with the same board and name exists,
// overwrites its display name and returns it.
func (s *State) UpsertLabel(ctx context.Context, l *Label) (*Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Label
	err := s.commit("upsert label", func(d *document) error {
		for i := range d.Labels {
			existing := &d.Labels[i]
			if existing.BoardID == l.BoardID && existing.Name == l.Name {
				existing.DisplayName = l.DisplayName
				existing.UpdatedAt = s.now()
				out = *existing
				return nil
			}
		}
		d.Labels = append(d.Labels, *l)
		out = *l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Ordering helpers ---

// SortCards orders cards by position, then creation time, then id.
func SortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cardLess(&cards[i], &cards[j])
	})
}

func cardLess(a, b *Card) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID) < 0
}

func columnLess(a, b *Column) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID) < 0
}
