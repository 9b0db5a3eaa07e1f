package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/maltedev/catalog-scraper/pkg/logger"
)

var (
	selectorsFile string
	storageFile   string
	useDatabase   bool
	headful       bool

	maxPages    int
	limit       int
	withReviews bool
	productID   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Catalog scraper",
		Long:          "Collects product URLs from category pages, extracts product details and review images.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	collectCmd := &cobra.Command{
		Use:   "collect [category-url]",
		Short: "Collect product URLs from a category listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), jobs.Request{
				Type:        jobs.TypeCollect,
				CategoryURL: args[0],
				MaxPages:    maxPages,
			})
		},
	}

	detailsCmd := &cobra.Command{
		Use:   "details",
		Short: "Extract details for pending product URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), jobs.Request{
				Type:    jobs.TypeDetails,
				Limit:   limit,
				Reviews: withReviews,
			})
		},
	}

	reviewsCmd := &cobra.Command{
		Use:   "reviews [product-url]",
		Short: "Collect review images for one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), jobs.Request{
				Type:       jobs.TypeReviews,
				ProductURL: args[0],
				ProductID:  productID,
			})
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored URL, product and review counts",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	rootCmd.PersistentFlags().StringVar(&selectorsFile, "selectors", "", "Selector YAML file (default: embedded)")
	rootCmd.PersistentFlags().StringVar(&storageFile, "storage", "", "JSON storage file (default: SCRAPER_STORAGE_FILE)")
	rootCmd.PersistentFlags().BoolVar(&useDatabase, "db", false, "Store results in PostgreSQL instead of the JSON file")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "Show the browser window")

	collectCmd.Flags().IntVarP(&maxPages, "max-pages", "p", 0, "Maximum listing pages to walk (0 = all)")
	detailsCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum URLs to process (0 = all pending)")
	detailsCmd.Flags().BoolVar(&withReviews, "reviews", false, "Also collect review images for each product")
	reviewsCmd.Flags().StringVar(&productID, "product-id", "", "Product id the reviews belong to")

	rootCmd.AddCommand(collectCmd, detailsCmd, reviewsCmd, migrateCmd, statsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if selectorsFile != "" {
		cfg.Browser.SelectorsFile = selectorsFile
	}
	if storageFile != "" {
		cfg.Scraper.StorageFile = storageFile
	}
	if useDatabase {
		cfg.Database.Enabled = true
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

// openStore returns the PostgreSQL store when the database is enabled and
// the JSON file store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (scraper.Store, io.Closer, error) {
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return database.NewStore(db), closeFunc(db.Close), nil
	}

	fs, err := storage.NewFileStore(cfg.Scraper.StorageFile)
	if err != nil {
		return nil, nil, err
	}
	return fs, closeFunc(func() {}), nil
}

func runJob(ctx context.Context, req jobs.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	sel, err := config.LoadSelectors(cfg.Browser.SelectorsFile)
	if err != nil {
		return err
	}

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	runner, err := jobs.NewDefaultRunner(cfg, sel, store)
	if err != nil {
		return err
	}

	log.Info("starting run", "type", req.Type)
	result, err := runner.Run(ctx, req)
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", req.Type, err)
	}

	log.Info("run finished", "type", req.Type)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.New(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("schema applied", "database", cfg.Database.DBName)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	printJSON(stats)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode output", "error", err)
	}
}
