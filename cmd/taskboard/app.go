package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/madhatter5501/taskboard"
	"github.com/madhatter5501/taskboard/internal/config"
	"github.com/madhatter5501/taskboard/internal/db"
	"github.com/madhatter5501/taskboard/internal/lock"
	"github.com/madhatter5501/taskboard/kanban"
)

// app is an opened store plus the service built over it.
type app struct {
	svc     *taskboard.Service
	closers []func() error
}

// Close releases the store and lock connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(ctx, cfg.Store, logger, a)
	if err != nil {
		return nil, err
	}

	locker, err := openLocker(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = taskboard.NewService(store,
		taskboard.Config{LabelScope: taskboard.LabelScope(cfg.Labels.Scope)},
		taskboard.WithLocker(locker),
		taskboard.WithLogger(logger),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger, a *app) (kanban.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		database, err := db.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		return db.NewStore(database), nil

	case "json":
		state := kanban.NewState(cfg.Path)
		if err := state.Load(); err != nil {
			return nil, err
		}
		return state, nil

	case "memory":
		return kanban.NewMemoryState(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func openLocker(ctx context.Context, cfg *config.Config, a *app) (taskboard.Locker, error) {
	switch cfg.Lock.Driver {
	case "local":
		return lock.NewLocal(), nil

	case "redis":
		r, err := lock.NewRedis(ctx, lock.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Lock.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil

	case "none":
		return lock.None{}, nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
}

// runCheck reports position problems on one board or all of them and, with
// repair set, renumbers them.
func runCheck(ctx context.Context, out io.Writer, svc *taskboard.Service, boardID string, repair bool) error {
	var boardIDs []string
	if boardID != "" {
		boardIDs = []string{boardID}
	} else {
		boards, err := svc.ListBoards(ctx)
		if err != nil {
			return err
		}
		for _, b := range boards {
			boardIDs = append(boardIDs, b.ID)
		}
	}

	broken := 0
	for _, id := range boardIDs {
		check, err := svc.CheckBoard(ctx, id)
		if err != nil {
			return err
		}
		if check.OK() {
			fmt.Fprintf(out, "board %s: ok\n", id)
			continue
		}

		printReport(out, check.Columns)
		for _, r := range check.Cards {
			if !r.OK() {
				printReport(out, r)
			}
		}

		if !repair {
			broken++
			continue
		}
		result, err := svc.RepairBoard(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "board %s: repaired, %d positions renumbered\n", id, result.Renumbered())
	}

	if broken > 0 {
		return fmt.Errorf("%d of %d boards have position problems (run with --repair)", broken, len(boardIDs))
	}
	return nil
}

func printReport(out io.Writer, r kanban.IntegrityReport) {
	if r.OK() {
		return
	}
	fmt.Fprintf(out, "%s %s: %d entries, gaps %v, duplicates %v, out of range %v\n",
		r.Scope, r.ID, r.Count, r.Gaps, r.Duplicates, r.OutOfRange)
}
