// Package main provides an offline replay CLI: it feeds a recorded sensor
// stream through the engagement pipeline and prints the session summary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ashureev/attention-labs/internal/api"
	"github.com/ashureev/attention-labs/internal/config"
	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/sensor"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Version information (set at build time)
var version = "dev"

type runOptions struct {
	realtime   bool
	speed      float64
	minDwell   time.Duration
	cooldown   time.Duration
	rotation   string
	events     bool
	dbPath     string
	observerID string
	logLevel   string
}

// replayClock follows the timestamps of the recorded samples, falling back
// to wall time until the first timestamp is seen.
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}

func (c *replayClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "replay",
		Short:         "Replay recorded attention samples through the engagement monitor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts := runOptions{}
	runCmd := &cobra.Command{
		Use:   "run [file.ndjson]",
		Short: "Replay an NDJSON sample file and print the session summary",
		Long: `Replay reads one sensor event per line, in the same shapes the live
sample endpoint accepts, and drives a session monitor with the recorded
timestamps. Prompts fire exactly as they would have live. The summary is
printed to stdout as JSON; with --events every engagement event is written
to stderr as NDJSON first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	runCmd.Flags().BoolVar(&opts.realtime, "realtime", false, "sleep between samples for their recorded gap")
	runCmd.Flags().Float64Var(&opts.speed, "speed", 1, "playback speed multiplier for --realtime")
	runCmd.Flags().DurationVar(&opts.minDwell, "min-dwell", 6*time.Second, "continuous needs-help duration before an automatic prompt")
	runCmd.Flags().DurationVar(&opts.cooldown, "cooldown", 15*time.Second, "minimum gap between automatic prompts")
	runCmd.Flags().StringVar(&opts.rotation, "rotation", "poll,summary,break,recap", "automatic prompt rotation")
	runCmd.Flags().BoolVar(&opts.events, "events", false, "write engagement events to stderr as NDJSON")
	runCmd.Flags().StringVar(&opts.dbPath, "save", "", "archive the summary as a report in this SQLite database")
	runCmd.Flags().StringVar(&opts.observerID, "observer", "replay", "observer ID recorded on the archived report")
	runCmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	var (
		reportsDB    string
		reportsOwner string
		reportsLimit int
	)
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "List archived session reports as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := store.NewSQLite(reportsDB)
			if err != nil {
				return err
			}
			defer repo.Close()

			reports, err := repo.ListReports(cmd.Context(), reportsOwner, reportsLimit)
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), reports)
		},
	}
	reportsCmd.Flags().StringVar(&reportsDB, "db", "./data/engagement.db", "SQLite database path")
	reportsCmd.Flags().StringVar(&reportsOwner, "observer", "replay", "observer whose reports to list")
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "maximum number of reports")

	rootCmd.AddCommand(runCmd, reportsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runReplay(ctx context.Context, path string, opts runOptions, stdout, stderr io.Writer) error {
	level, err := config.ParseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	rotation, err := domain.ParseRotation(opts.rotation)
	if err != nil {
		return fmt.Errorf("invalid --rotation: %w", err)
	}
	if opts.minDwell <= 0 || opts.cooldown <= 0 {
		return fmt.Errorf("--min-dwell and --cooldown must be positive")
	}

	var repo store.Repository
	if opts.dbPath != "" {
		repo, err = store.NewSQLite(opts.dbPath)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	src, err := sensor.OpenFile(ctx, path, sensor.ReplayOptions{
		Realtime: opts.realtime,
		Speed:    opts.speed,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer src.Stop()

	var (
		events  chan engagement.Event
		printed sync.WaitGroup
	)
	if opts.events {
		events = make(chan engagement.Event, 256)
		printed.Add(1)
		go func() {
			defer printed.Done()
			enc := json.NewEncoder(stderr)
			for ev := range events {
				if err := enc.Encode(ev); err != nil {
					logger.Warn("[REPLAY] Failed to write event", "error", err)
				}
			}
		}()
	}

	clock := &replayClock{}
	m := engagement.NewMonitor(uuid.NewString(), opts.observerID, engagement.MonitorConfig{
		Trigger: engagement.TriggerConfig{
			MinDwell: opts.minDwell,
			Cooldown: opts.cooldown,
			Rotation: rotation,
		},
		Clock:  clock.Now,
		Logger: logger,
		Events: events,
	})

	started := false
	for raw := range src.Samples() {
		if !raw.At.IsZero() {
			clock.Set(raw.At)
		}
		if !started {
			m.Start()
			started = true
		}
		if _, err := m.Ingest(raw); err != nil {
			return err
		}
	}
	if err := src.Err(); err != nil {
		return err
	}
	if !started {
		m.Start()
	}

	summary, _ := m.End()
	if events != nil {
		close(events)
		printed.Wait()
	}

	delivered, skipped := src.Stats()
	logger.Info("[REPLAY] Replay complete",
		"session_id", m.ID(),
		"samples", delivered,
		"skipped_lines", skipped,
	)

	if repo != nil {
		api.NewArchiveHook(repo)(m, summary)
	}
	return writeJSON(stdout, summary)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
