// Package taskboard implements the board services: card ordering, card and
// column lifecycles, labels, and the aggregated board view.
package taskboard

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/madhatter5501/taskboard/kanban"

	"github.com/google/uuid"
)

// LabelScope controls how label names are made unique.
type LabelScope string

const (
	LabelScopeGlobal LabelScope = "global" // One label per name across all boards
	LabelScopeBoard  LabelScope = "board"  // One label per name within a board
)

// Locker serializes position-changing writes per board.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Config holds service configuration.
type Config struct {
	LabelScope LabelScope `json:"labelScope"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LabelScope: LabelScopeGlobal,
	}
}

// Service coordinates the board services over a single store.
type Service struct {
	store  kanban.Store
	locker Locker
	config Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker sets the per-board lock. Without one, writes are serialized only
// by the store's own atomic units.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides id generation.
func WithIDs(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a service over store.
func NewService(store kanban.Store, config Config, opts ...Option) *Service {
	if config.LabelScope == "" {
		config.LabelScope = LabelScopeGlobal
	}

	s := &Service{
		store:  store,
		config: config,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return s
}

// Store returns the underlying entity store.
func (s *Service) Store() kanban.Store {
	return s.store
}

// withBoardLock runs fn while holding the lock for boardID.
func (s *Service) withBoardLock(ctx context.Context, boardID string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	unlock, err := s.locker.Lock(ctx, "board:"+boardID)
	if err != nil {
		return err
	}
	defer unlock()

	return fn()
}

// canonicalID lowercases and validates a UUID. Ids that do not parse are
// returned trimmed so lookups fail with NotFound rather than a parse error.
func canonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return kanban.Normalize(id)
	}
	return parsed.String()
}
