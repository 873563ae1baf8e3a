package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/iepscribe/internal/api"
	"github.com/MikeSquared-Agency/iepscribe/internal/config"
	"github.com/MikeSquared-Agency/iepscribe/internal/hermes"
	"github.com/MikeSquared-Agency/iepscribe/internal/processor"
	"github.com/MikeSquared-Agency/iepscribe/internal/weekly"
)

const (
	httpShutdownTimeout = 15 * time.Second
	natsDrainTimeout    = 20 * time.Second
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	rootCmd := &cobra.Command{
		Use:   "iepscribe",
		Short: "Turn teacher transcripts into suggested IEP sessions",
		Long: `iepscribe extracts session events from free-form teacher transcripts, resolves
them against the teacher's students and IEP objectives, and estimates progress.
Configuration is read from the environment.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand(cfg))
	rootCmd.AddCommand(newAnalyzeCommand(cfg))
	rootCmd.AddCommand(newSummarizeCommand(cfg))
	rootCmd.AddCommand(newWeeklyCommand(cfg))
	rootCmd.AddCommand(newParseIEPCommand(cfg))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newServeCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("iepscribe starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Analyzer:  a.pipeline,
		Catalog:   a.db,
		Narrative: a.narrative,
		Weekly:    a.weekly,
		IEP:       a.iep,
		Metrics:   a.metrics,
		Logger:    logger,
	}

	// NATS is optional: without it the API still serves, with no async triggers.
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		// Runs before a.Close: handlers finish with the database still open.
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), natsDrainTimeout)
			defer cancel()
			if err := hermesClient.Drain(drainCtx); err != nil {
				logger.Warn("NATS drain failed", "error", err)
			}
		}()
		logger.Info("NATS connected", "url", cfg.NatsURL)

		proc := processor.New(a.narrative, a.pipeline, hermesClient, logger)
		if err := hermesClient.QueueSubscribe(hermes.SubjectSessionMutated, proc.HandleSessionMutated); err != nil {
			return fmt.Errorf("subscribe to session mutations: %w", err)
		}
		if err := hermesClient.QueueSubscribe(hermes.SubjectTranscriptSubmitted, proc.HandleTranscriptSubmitted); err != nil {
			return fmt.Errorf("subscribe to transcript submissions: %w", err)
		}
		deps.Publisher = hermesClient
	} else {
		logger.Warn("NATS not configured, running without event triggers")
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, deps)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("iepscribe ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("iepscribe stopped")
	return nil
}

func newAnalyzeCommand(cfg config.Config) *cobra.Command {
	var teacher, file string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a transcript and print suggested sessions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			teacherID, err := uuid.Parse(teacher)
			if err != nil {
				return fmt.Errorf("--teacher: %w", err)
			}
			transcript, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.pipeline.ExtractAndResolve(cmd.Context(), transcript, teacherID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().StringVarP(&teacher, "teacher", "t", "", "teacher ID")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "transcript file, - for stdin")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func newSummarizeCommand(cfg config.Config) *cobra.Command {
	var teacher, student string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Regenerate and store a student's narrative summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			teacherID, err := uuid.Parse(teacher)
			if err != nil {
				return fmt.Errorf("--teacher: %w", err)
			}
			studentID, err := uuid.Parse(student)
			if err != nil {
				return fmt.Errorf("--student: %w", err)
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.narrative.Summarize(cmd.Context(), teacherID, studentID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&teacher, "teacher", "t", "", "teacher ID")
	cmd.Flags().StringVarP(&student, "student", "s", "", "student ID")
	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func newWeeklyCommand(cfg config.Config) *cobra.Command {
	var teacher, week string

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Print the weekly objective coverage report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			teacherID, err := uuid.Parse(teacher)
			if err != nil {
				return fmt.Errorf("--teacher: %w", err)
			}
			period, err := weekly.ParsePeriod(week)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.weekly.Summarize(cmd.Context(), teacherID, period)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&teacher, "teacher", "t", "", "teacher ID")
	cmd.Flags().StringVarP(&week, "week", "w", string(weekly.ThisWeek), "this or last")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func newParseIEPCommand(cfg config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "parse-iep",
		Short: "Parse IEP document text and print its structure as JSON",
		Long: `parse-iep reads the plain text of an IEP document and prints the student,
areas of need, goals and objectives the model found. Nothing is saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			parser, err := newIEPParser(cfg, slog.Default())
			if err != nil {
				return err
			}

			doc, err := parser.Parse(cmd.Context(), text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "IEP text file, - for stdin")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "" || path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
