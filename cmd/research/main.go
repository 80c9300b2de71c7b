package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/report"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/postgres"
	"github.com/urfave/cli/v2"
)

const exitInvalidConfig = 2

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "research",
		Usage:     "Iteratively research a question across the files of a workspace",
		Writer:    stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"DR_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		// exit codes are handled by main
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Research QUERY and print a report",
				ArgsUsage: "QUERY",
				Action:    runCommand(stdout),
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.IntFlag{
						Name:  "max-iterations",
						Usage: "Maximum research iterations (default from config)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Similarity threshold for analysis input, in [0,1]",
					},
					&cli.Float64Flag{
						Name:  "confidence-target",
						Usage: "Stop once confidence reaches this value",
					},
					&cli.StringSliceFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   "Run only these strategies (repeatable)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Per-strategy timeout",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: " + strings.Join(report.Formats, ", "),
						Value:   report.FormatText,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to this file instead of stdout",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Store the report in PostgreSQL",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "Publish a run-completed event to Kafka",
					},
				},
			},
			{
				Name:      "strategies",
				Usage:     "Show which strategies QUERY would run and why",
				ArgsUsage: "QUERY",
				Action:    strategiesCommand(stdout),
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringSliceFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   "Explicit strategy override to validate",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Index the workspace and print its statistics",
				Action: indexCommand(stdout),
				Flags:  []cli.Flag{workspaceFlag()},
			},
		},
	}
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "workspace",
		Aliases: []string{"w"},
		Usage:   "Directory to research",
		Value:   ".",
	}
}

func setupLogger(c *cli.Context) error {
	logger.SetupWriter(os.Stderr, c.String("log-level"), "text")
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitInvalidConfig)
	}
	return cfg, nil
}

// researchConfig overlays the command's flags on the configured defaults.
func researchConfig(c *cli.Context, base config.ResearchConfig) config.ResearchConfig {
	cfg := base
	if c.IsSet("max-iterations") {
		cfg.MaxIterations = c.Int("max-iterations")
	}
	if c.IsSet("threshold") {
		cfg.SimilarityThreshold = c.Float64("threshold")
	}
	if c.IsSet("confidence-target") {
		cfg.ConfidenceTarget = c.Float64("confidence-target")
	}
	if s := c.StringSlice("strategy"); len(s) > 0 {
		cfg.EnabledStrategies = s
	}
	if c.IsSet("timeout") {
		cfg.StrategyTimeout = c.Duration("timeout")
	}
	return cfg
}

func queryArg(c *cli.Context) (string, error) {
	q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if q == "" {
		return "", cli.Exit("a QUERY argument is required", exitInvalidConfig)
	}
	return q, nil
}

func exitError(err error) error {
	if errors.Is(err, apperrors.ErrInvalidConfig) || errors.Is(err, apperrors.ErrInvalidInput) {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}
	return err
}

func newRunner(cfg *config.Config, opts ...research.Option) *research.Runner {
	base := []research.Option{
		research.WithWorkspaceConfig(cfg.Workspace),
		research.WithIndexConfig(cfg.Index),
	}
	return research.NewRunner(append(base, opts...)...)
}

func runCommand(stdout io.Writer) cli.ActionFunc {
	return func(c *cli.Context) error {
		q, err := queryArg(c)
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(c.String("format"))
		if err != nil {
			return exitError(err)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		var opts []research.Option
		if c.Bool("save") {
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return fmt.Errorf("connecting report store: %w", err)
			}
			defer db.Close()
			pg := store.NewPostgres(db)
			if err := pg.Migrate(c.Context); err != nil {
				return err
			}
			opts = append(opts, research.WithObserver(store.NewRecorder(pg)))
		}
		if c.Bool("publish") {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents)
			defer producer.Close()
			collector := events.NewCollector(producer, cfg.Kafka.BufferSize, nil)
			collector.Start(context.Background())
			defer collector.Close()
			opts = append(opts, research.WithObserver(collector))
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		rep, err := newRunner(cfg, opts...).Run(ctx, q, c.String("workspace"), researchConfig(c, cfg.Research))
		if err != nil {
			return exitError(err)
		}

		out := stdout
		if path := c.String("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := report.Render(out, rep, format); err != nil {
			return err
		}
		slog.Debug("report written", "run_id", rep.RunID, "format", format)
		return nil
	}
}

func strategiesCommand(stdout io.Writer) cli.ActionFunc {
	return func(c *cli.Context) error {
		q, err := queryArg(c)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		decision, err := newRunner(cfg).Plan(c.Context, q, c.String("workspace"), researchConfig(c, cfg.Research))
		if err != nil {
			return exitError(err)
		}
		fmt.Fprintf(stdout, "Strategies: %s\n", strings.Join(decision.Strategies, ", "))
		for _, reason := range decision.Reasons {
			fmt.Fprintf(stdout, "- %s\n", reason)
		}
		return nil
	}
}

func indexCommand(stdout io.Writer) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		entry, err := newRunner(cfg).Index(c.Context, c.String("workspace"))
		if err != nil {
			return exitError(err)
		}
		stats := entry.Index.Stats()
		fmt.Fprintf(stdout, "Files:        %d\n", stats.Files)
		fmt.Fprintf(stdout, "Documents:    %d\n", stats.Documents)
		fmt.Fprintf(stdout, "Terms:        %d\n", stats.Terms)
		fmt.Fprintf(stdout, "Tokens:       %d\n", stats.TotalTokens)
		fmt.Fprintf(stdout, "Avg length:   %.1f\n", stats.AvgLength)
		if len(entry.Skipped) > 0 {
			fmt.Fprintf(stdout, "Skipped:      %d\n", len(entry.Skipped))
			for _, s := range entry.Skipped {
				fmt.Fprintf(stdout, "  %s: %v\n", s.Path, s.Err)
			}
		}
		return nil
	}
}
