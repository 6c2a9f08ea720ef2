package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/collect"
	"github.com/TobiSchelling/sprintlog/internal/config"
	"github.com/TobiSchelling/sprintlog/internal/database"
	"github.com/TobiSchelling/sprintlog/internal/ledger"
	"github.com/TobiSchelling/sprintlog/internal/logging"
	"github.com/TobiSchelling/sprintlog/internal/report"
	"github.com/TobiSchelling/sprintlog/internal/server"
	"github.com/TobiSchelling/sprintlog/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sprintlog",
	Short:   "Reconcile sprint progress reports into story activity logs",
	Long:    "sprintlog parses generated progress reports and merges their activity records into a per-story log that never loses or duplicates an entry.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case err == nil:
			cfg, err = config.Load(path)
		case configPath == "":
			// No config file anywhere: run on defaults plus SPRINTLOG_* overrides.
			cfg, err = config.Default()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(purgeCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sprintlog", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/sprintlog/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose a store driver and configure report feeds.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and journal status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		lastRun, err := db.GetLastRunAt(ctx)
		if err != nil {
			return fmt.Errorf("getting last run: %w", err)
		}

		fmt.Printf("Store driver: %s\n", cfg.Store.Driver)
		fmt.Printf("Database: %s\n\n", db.Path())
		if cfg.Store.Driver == config.DriverSQLite {
			fmt.Println("Keys:")
			fmt.Printf("  Stored: %d\n", stats.Keys)
			fmt.Printf("  Expired: %d\n", stats.ExpiredKeys)
			fmt.Println()
		}
		fmt.Println("Journal:")
		fmt.Printf("  Passes: %d\n", stats.Runs)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)
		fmt.Printf("  Stories: %d\n", stats.Stories)
		if lastRun == "" {
			fmt.Println("  Last pass: never")
		} else {
			fmt.Printf("  Last pass: %s\n", lastRun)
		}
		return nil
	},
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <story-id> [file|-]",
	Short: "Reconcile a progress report into a story's activity log",
	Long:  "Reads the report from the given file, or from stdin when the file is omitted or \"-\".",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readReport(cmd, args[1:])
		if err != nil {
			return err
		}

		return withService(cmd.Context(), func(svc *ledger.Service) error {
			res, err := svc.Ingest(cmd.Context(), args[0], text, ledger.WithSource("cli"))
			if res != nil {
				for i, step := range res.Steps {
					fmt.Printf("Step %d/%d: %s\n", i+1, len(res.Steps), step.Name)
					if step.Err != nil {
						fmt.Printf("  Error: %v\n", step.Err)
					} else {
						fmt.Printf("  %s\n", step.Summary)
					}
				}
			}
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(res.Message())
			return nil
		})
	},
}

func readReport(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading report from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	return string(data), nil
}

// --- parse command ---

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse a report and print its records without storing them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("reading report: %w", err)
			}
			defer f.Close()
			in = f
		}

		records, stats, err := report.ParseReader(in)
		if err != nil {
			return fmt.Errorf("parsing report: %w", err)
		}
		if parseJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		for _, r := range records {
			fmt.Printf("  %s  %-12s %-10s [%s] %s\n", r.Date, r.User, r.ItemID, r.Tag, r.Text)
		}
		fmt.Printf("\n%d lines, %d records, %d dropped bullets\n", stats.Lines, stats.Emitted, stats.Gaps)
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print the records as JSON")
}

// --- show command ---

var (
	showCycle string
	showJSON  bool
)

var showCmd = &cobra.Command{
	Use:   "show <story-id>",
	Short: "Show the reconciled activity log of a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(svc *ledger.Service) error {
			view, err := svc.Story(cmd.Context(), args[0], showCycle)
			if errors.Is(err, ledger.ErrNotFound) {
				fmt.Printf("No activity recorded for %s.\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}

			if showJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printStory(view)
			return nil
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showCycle, "cycle", "", "Cycle to read (default: last ingested cycle)")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the story as JSON")
}

func printStory(view *ledger.StoryView) {
	fmt.Printf("%s (%s)\n", view.StoryID, view.CycleID)
	if len(view.Tags) > 0 {
		groups := make([]string, 0, len(view.Tags))
		for g := range view.Tags {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			fmt.Printf("  %s: %v\n", g, view.Tags[g])
		}
	}
	if view.Summary != nil {
		fmt.Printf("\n%s\n", *view.Summary)
	}
	fmt.Printf("\n%d records:\n", len(view.Records))
	for _, r := range view.Records {
		fmt.Printf("  %s  %-12s %-10s [%s] %s\n", r.Date, r.User, r.ItemID, r.Tag, r.Text)
	}
}

// --- history command ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <story-id>",
	Short: "List journaled ingest passes of a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(svc *ledger.Service) error {
			runs, err := svc.History(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No passes journaled.")
				return nil
			}
			for _, run := range runs {
				status := "unchanged"
				switch {
				case run.Error != nil:
					status = "failed: " + *run.Error
				case run.Changed:
					status = fmt.Sprintf("+%d ~%d -%d", run.Inserted, run.Updated, run.DuplicatesRemoved)
				}
				source := "-"
				if run.Source != nil {
					source = *run.Source
				}
				fmt.Printf("  %s  %-24s %-6s %s\n", run.CreatedAt, run.CycleID, source, status)
			}
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of passes to list")
}

// --- tags command ---

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage story tags",
}

var tagsImportCmd = &cobra.Command{
	Use:   "import [file|-]",
	Short: "Import story tags from a board listing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listing, err := readReport(cmd, args)
		if err != nil {
			return err
		}
		return withService(cmd.Context(), func(svc *ledger.Service) error {
			n, err := svc.ImportBoard(cmd.Context(), listing)
			if err != nil {
				return err
			}
			fmt.Printf("Imported tags for %d stories.\n", n)
			return nil
		})
	},
}

func init() {
	tagsCmd.AddCommand(tagsImportCmd)
}

// --- collect command ---

var daysBack int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Ingest reports published on the configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Sources.Feeds) == 0 {
			fmt.Println("No feeds configured.")
			return nil
		}
		window := cfg.Sources.DaysBack
		if daysBack > 0 {
			window = daysBack
		}

		return withService(cmd.Context(), func(svc *ledger.Service) error {
			feeds := make([]collect.FeedConfig, 0, len(cfg.Sources.Feeds))
			for _, f := range cfg.Sources.Feeds {
				feeds = append(feeds, collect.FeedConfig{URL: f.URL, Name: f.Name})
			}
			subs := collect.NewFeedSource(feeds, logger.Named("feed")).Fetch(cmd.Context(), window)
			fmt.Printf("Found %d reports in the last %d day(s).\n", len(subs), window)

			result, err := collect.NewRunner(svc, cfg.Sources.Concurrency, logger.Named("collect")).Run(cmd.Context(), subs)
			if err != nil {
				return err
			}

			fmt.Println("\nCollection complete:")
			fmt.Printf("  Submitted: %d\n", result.Submitted)
			fmt.Printf("  Changed: %d\n", result.Changed)
			fmt.Printf("  Unchanged: %d\n", result.Unchanged)
			fmt.Printf("  Failed: %d\n", result.Failed)

			if len(result.Stories) > 0 {
				fmt.Println("\nReports by story:")
				// Sort stories by count descending
				type kv struct {
					key string
					val int
				}
				var sorted []kv
				for k, v := range result.Stories {
					sorted = append(sorted, kv{k, v})
				}
				sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
				for _, s := range sorted {
					fmt.Printf("  %s: %d\n", s.key, s.val)
				}
			}
			return nil
		})
	},
}

func init() {
	collectCmd.Flags().IntVar(&daysBack, "days-back", 0, "Override lookback window (days)")
}

// --- watch command ---

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest reports dropped into the inbox directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withService(ctx, func(svc *ledger.Service) error {
			dir := cfg.GetInboxDir()
			if len(args) == 1 {
				dir = args[0]
			}
			fmt.Printf("Watching %s\n", dir)
			fmt.Println("Press Ctrl+C to stop")
			w := collect.NewWatcher(dir, svc, cfg.Sources.Inbox.Debounce, logger.Named("watch"))
			return w.Run(ctx)
		})
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		return withService(ctx, func(svc *ledger.Service) error {
			fmt.Printf("Starting server at http://localhost:%d\n", port)
			fmt.Println("Press Ctrl+C to stop")
			return server.Serve(ctx, svc, port, logger.Named("server"))
		})
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- purge command ---

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired entries from the sqlite store",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeExpired(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("purging expired entries: %w", err)
		}
		fmt.Printf("Purged %d expired entries.\n", n)
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath(), logger.Named("database"))
}

// withService opens the database and the configured store, runs fn and
// closes both.
func withService(ctx context.Context, fn func(*ledger.Service) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := store.Open(ctx, cfg, db, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	opts := ledger.Options{
		Logger: logger.Named("ledger"),
		TagTTL: cfg.Store.TagTTL,
	}
	if cfg.Ingest.Journal {
		opts.Journal = db
	}
	return fn(ledger.NewService(s, opts))
}
