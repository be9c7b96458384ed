// Taskboard serves kanban boards over HTTP: ordered columns of ordered cards,
// moved by drag and drop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/madhatter5501/taskboard/internal/config"
	"github.com/madhatter5501/taskboard/internal/db"
	"github.com/madhatter5501/taskboard/internal/seed"
	"github.com/madhatter5501/taskboard/internal/web"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the loaded configuration between cobra hooks and commands.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "taskboard",
		Short:         "Kanban board service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.configFile != "" {
				c.v.SetConfigFile(c.configFile)
			}
			cfg, err := config.Load(c.v)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = cfg.Log.NewLogger(os.Stdout)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (default: ./taskboard.yaml)")
	flags.String("store", "", "Store driver: sqlite|json|memory")
	flags.String("db", "", "Store file path")
	flags.String("log-level", "", "Log level: debug|info|warn|error")
	flags.String("log-format", "", "Log format: text|json")
	bindFlag(c.v, "store.driver", flags.Lookup("store"))
	bindFlag(c.v, "store.path", flags.Lookup("db"))
	bindFlag(c.v, "log.level", flags.Lookup("log-level"))
	bindFlag(c.v, "log.format", flags.Lookup("log-format"))

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.seedCmd(),
		c.checkCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :5000)")
	bindFlag(c.v, "addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := web.NewServer(app.svc, c.logger, web.Options{
		CORSOrigins:  c.cfg.CORS.Origins,
		ReadTimeout:  c.cfg.Server.ReadTimeout,
		WriteTimeout: c.cfg.Server.WriteTimeout,
	})

	go func() {
		<-ctx.Done()
		c.logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("Shutdown failed", "error", err)
		}
	}()

	c.logger.Info("Taskboard ready",
		"addr", c.cfg.Addr,
		"store", c.cfg.Store.Driver,
		"path", c.cfg.Store.Path,
		"lock", c.cfg.Lock.Driver,
		"labels", c.cfg.Labels.Scope)

	if err := server.Start(c.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations and print their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Store.Driver != "sqlite" {
				return fmt.Errorf("migrate needs the sqlite store, not %s", c.cfg.Store.Driver)
			}

			database, err := db.Open(cmd.Context(), c.cfg.Store.Path, c.logger)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			states, err := database.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range states {
				status := "pending"
				if s.Applied {
					status = "applied"
				}
				fmt.Fprintf(out, "%05d  %-8s  %s\n", s.Version, status, s.Path)
			}
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Create boards, columns, labels and cards from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			sum, err := seed.Apply(cmd.Context(), app.svc, fixture)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d boards, %d columns, %d labels, %d cards\n",
				sum.Boards, sum.Columns, sum.Labels, sum.Cards)
			return nil
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var (
		boardID string
		repair  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report (and optionally repair) gaps and duplicates in card and column positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return runCheck(cmd.Context(), cmd.OutOrStdout(), app.svc, boardID, repair)
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "Only check this board")
	cmd.Flags().BoolVar(&repair, "repair", false, "Renumber positions that are not dense")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no config.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskboard %s (commit: %s, built: %s)\n", version, gitCommit, buildTime)
		},
	}
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}
