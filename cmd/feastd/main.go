// Feastd is the UniFeast recommendation daemon: a conversational API that
// answers "what should I eat" with allergy-safe, budget-aware menu
// suggestions backed by filtered vector search.
//
// Usage:
//
//	feastd serve                  Start the HTTP server
//	feastd index menu.json        Index menu items from a JSON file
//	feastd purge                  Remove sessions past the retention window
//	feastd version                Show version information
//
// Configuration is loaded from ~/.config/feastd/config.yaml, then
// overridden by FEASTD_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/chat"
	"github.com/unifeast/feastd/internal/config"
	"github.com/unifeast/feastd/internal/embeddings"
	feasthttp "github.com/unifeast/feastd/internal/http"
	"github.com/unifeast/feastd/internal/filter"
	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/memory"
	"github.com/unifeast/feastd/internal/retrieval"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "feastd",
		Short:         "UniFeast conversational food recommendation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(serveCmd(), indexCmd(), purgeCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("feastd\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the feastd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting feastd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
	)

	deps, err := buildDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Sweep on startup so a long-stopped daemon does not serve stale
	// history, then periodically while running.
	if purged, err := deps.store.PurgeExpired(ctx); err != nil {
		logger.Error(ctx, "startup purge failed", zap.Error(err))
	} else if purged > 0 {
		logger.Info(ctx, "startup purge complete", zap.Int("sessions", purged))
	}
	go runPurgeLoop(ctx, deps.store, cfg.Memory.PurgeInterval, logger)

	providers := chat.BuildProviders(deps.searcher, cfg.Search.TopK, cfg.Search.RetrievalTimeout, logger)
	chatSvc, err := chat.NewService(providers, deps.store, filter.NewBuilder(logger), chat.Options{
		HistoryLimit:  cfg.Search.HistoryLimit,
		DefaultUserID: cfg.Search.DefaultUserID,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating chat service: %w", err)
	}

	server, err := feasthttp.NewServer(chatSvc, deps.store, logger, feasthttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info(nil, "shutdown complete")
	return nil
}

// runPurgeLoop sweeps expired sessions until the context is canceled.
func runPurgeLoop(ctx context.Context, store *memory.Store, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "periodic purge failed", zap.Error(err))
			}
		}
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove sessions idle past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := openMemory(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			purged, err := store.PurgeExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("purging sessions: %w", err)
			}
			fmt.Printf("Purged %d expired session(s)\n", purged)
			return nil
		},
	}
}

// menuItem is the ingest file format for the index command.
type menuItem struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Restaurant         string   `json:"restaurant"`
	Category           string   `json:"category"`
	CuisineType        string   `json:"cuisine_type"`
	Available          *bool    `json:"available"`
	MilkAllergy        bool     `json:"milk_allergy"`
	EggsAllergy        bool     `json:"eggs_allergy"`
	PeanutsAllergy     bool     `json:"peanuts_allergy"`
	TreeNutsAllergy    bool     `json:"tree_nuts_allergy"`
	ShellfishAllergy   bool     `json:"shellfish_allergy"`
	OtherAllergies     []string `json:"other_allergies"`
	DietaryPreferences []string `json:"dietary_preferences"`
	StudentPrice       *float64 `json:"student_price"`
	StaffPrice         *float64 `json:"staff_price"`
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <menu.json>",
		Short: "Index menu items from a JSON file into the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading menu file: %w", err)
			}
			var items []menuItem
			if err := json.Unmarshal(raw, &items); err != nil {
				return fmt.Errorf("parsing menu file: %w", err)
			}
			if len(items) == 0 {
				return fmt.Errorf("menu file contains no items")
			}

			deps, err := buildDependencies(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.searcher.Index(cmd.Context(), toRetrievalItems(items)); err != nil {
				return fmt.Errorf("indexing menu items: %w", err)
			}
			fmt.Printf("Indexed %d menu item(s) into %s\n", len(items), cfg.VectorStore.Provider)
			return nil
		},
	}
}

func toRetrievalItems(items []menuItem) []retrieval.Item {
	out := make([]retrieval.Item, len(items))
	for i, m := range items {
		content := m.Name
		if m.Description != "" {
			content += ". " + m.Description
		}

		metadata := map[string]any{
			"name":                         m.Name,
			"description":                  m.Description,
			"restaurant":                   m.Restaurant,
			"category":                     m.Category,
			filter.FieldCuisineType:        m.CuisineType,
			filter.FieldMilkAllergy:        m.MilkAllergy,
			filter.FieldEggsAllergy:        m.EggsAllergy,
			filter.FieldPeanutsAllergy:     m.PeanutsAllergy,
			filter.FieldTreeNutsAllergy:    m.TreeNutsAllergy,
			filter.FieldShellfishAllergy:   m.ShellfishAllergy,
			filter.FieldOtherAllergies:     m.OtherAllergies,
			filter.FieldDietaryPreferences: m.DietaryPreferences,
		}
		if m.StudentPrice != nil {
			metadata[filter.FieldStudentPrice] = *m.StudentPrice
		}
		if m.StaffPrice != nil {
			metadata[filter.FieldStaffPrice] = *m.StaffPrice
		}
		available := true
		if m.Available != nil {
			available = *m.Available
		}
		metadata["available"] = available

		out[i] = retrieval.Item{ID: m.ID, Content: content, Metadata: metadata}
	}
	return out
}

// dependencies holds the infrastructure shared by serve and index.
type dependencies struct {
	searcher retrieval.Searcher
	store    *memory.Store
}

func (d *dependencies) Close() {
	if d.searcher != nil {
		_ = d.searcher.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func buildDependencies(cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	embedSvc, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	searcher, err := retrieval.NewSearcher(cfg.VectorStore, embedSvc)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	store, err := openMemory(cfg, logger)
	if err != nil {
		_ = searcher.Close()
		return nil, err
	}

	return &dependencies{searcher: searcher, store: store}, nil
}

func openMemory(cfg *config.Config, logger *logging.Logger) (*memory.Store, error) {
	path, err := config.ExpandPath(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving memory path: %w", err)
	}
	store, err := memory.Open(path, cfg.Memory.RetentionWindow(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	return store, nil
}

func loadConfigAndLogger() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, nil
}
