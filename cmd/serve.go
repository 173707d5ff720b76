package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloodei/apt-attendance/internal/attendance"
	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/inference"
	"github.com/cloodei/apt-attendance/internal/notify"
	"github.com/cloodei/apt-attendance/internal/roster"
	"github.com/cloodei/apt-attendance/internal/store"
	"github.com/cloodei/apt-attendance/internal/store/postgres"
	"github.com/cloodei/apt-attendance/internal/stream"
	"github.com/cloodei/apt-attendance/internal/web"
	"github.com/cloodei/apt-attendance/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the attendance server: the HTTP API for session management
and frame ingest plus one recognition stream per live session.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// buildResolver picks the gallery backend: a persisted HNSW index when one is
// configured, otherwise pgvector nearest-neighbor queries in PostgreSQL.
func buildResolver(cfg *config.Config, pool *postgres.Pool) (gallery.Resolver, error) {
	if cfg.Gallery.IndexPath != "" {
		idx, err := gallery.Load(cfg.Gallery.IndexPath, cfg.Pipeline.Match.MinSimilarity)
		if err != nil {
			return nil, fmt.Errorf("failed to load gallery index: %w", err)
		}
		fmt.Printf("Gallery index loaded: %d embeddings, %d students\n", idx.Count(), idx.Students())
		return idx, nil
	}
	if pool != nil {
		fmt.Println("Using PostgreSQL gallery resolver")
		return gallery.NewPgResolver(pool.DB(), cfg.Pipeline.Match.MinSimilarity), nil
	}
	return nil, errors.New("no gallery configured: set GALLERY_INDEX_PATH or DATABASE_URL")
}

// buildSink assembles the attendance event fan-out: persistence always (when
// a store exists), HTTP pings when an attendance API is configured.
func buildSink(cfg *config.Config, st store.Store, logger *log.Logger) attendance.Sink {
	sinks := attendance.MultiSink{store.NewAttendanceSink(st)}
	if cfg.Notify.BaseURL != "" {
		fmt.Printf("Attendance pings enabled (%s)\n", cfg.Notify.BaseURL)
		sinks = append(sinks, notify.New(cfg.Notify.BaseURL, logger))
	}
	return sinks
}

// buildRosterLoader exposes the student information system as a roster
// source, if one is configured.
func buildRosterLoader(cfg *config.Config) handlers.RosterLoader {
	if cfg.Roster.SISDSN == "" {
		return nil
	}
	dsn := cfg.Roster.SISDSN
	fmt.Println("Roster lookups enabled (student information system)")
	return func(ctx context.Context, classID int64) (map[int64]string, error) {
		r, err := roster.LoadFromSIS(ctx, dsn, classID)
		if err != nil {
			return nil, err
		}
		return r.Names(), nil
	}
}

func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := log.Default()

	var pool *postgres.Pool
	var st store.Store
	if cfg.Database.URL != "" {
		fmt.Println("Connecting to PostgreSQL database...")
		p, err := postgres.Initialize(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer p.Close()
		pool = p
		st = postgres.NewRepositories(pool)
		fmt.Println("Using PostgreSQL storage")
	} else {
		st = store.NewMemory()
		fmt.Println("DATABASE_URL not set, using in-memory storage")
	}

	resolver, err := buildResolver(cfg, pool)
	if err != nil {
		return err
	}

	client := inference.NewClient(cfg.ModelServer.URL)
	manager := stream.NewManager(stream.Deps{
		Locator:  client,
		Spoof:    client,
		Embedder: client,
		Resolver: resolver,
		Sink:     buildSink(cfg, st, logger),
		Config:   cfg.Pipeline,
		Logger:   logger,
	})

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(st, manager, buildRosterLoader(cfg), cfg.Web.AllowedOrigins, port, host, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendance server on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
