package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jwhan-dev/selfheal/internal/config"
	"github.com/jwhan-dev/selfheal/internal/database"
	"github.com/jwhan-dev/selfheal/internal/engine"
	"github.com/jwhan-dev/selfheal/internal/process"
	"github.com/jwhan-dev/selfheal/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "selfheal",
	Short:   "Self-healing reconciliation for the content admin",
	Long:    "selfheal reconciles AI-extracted facts against canonical artist and group records: fill, reconcile, enroll, or flag for human review.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("selfheal", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/selfheal/",
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
		fmt.Println("Edit it to tune reconciliation thresholds and the server port.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and automation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Entities:")
		fmt.Printf("  Total: %d (%d artists, %d groups)\n", stats.Entities, stats.Artists, stats.Groups)
		fmt.Printf("  Articles referenced: %d\n", stats.Articles)
		fmt.Println("\nAutomation:")
		fmt.Printf("  Decisions logged: %d\n", stats.Decisions)
		fmt.Printf("  Open conflicts: %d\n", stats.OpenConflicts)
		fmt.Printf("  Resolved conflicts: %d\n", stats.ResolvedConflicts)

		summary, err := db.AutomationSummary(24)
		if err != nil {
			return fmt.Errorf("getting summary: %w", err)
		}
		fmt.Println("\nLast 24h:")
		fmt.Printf("  Fill: %d  Reconcile: %d  Enroll: %d\n", summary.FillCount, summary.ReconcileCount, summary.EnrollCount)
		fmt.Printf("  Conflicts resolved: %d\n", summary.ConflictsResolved)
		fmt.Printf("  Avg source reliability: %.2f\n", summary.AvgReliability)
		return nil
	},
}

// --- process command ---

var processWorkers int

var processCmd = &cobra.Command{
	Use:   "process [facts.jsonl]",
	Short: "Run extraction results through the reconciliation engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		workers := cfg.Reconciliation.Workers
		if processWorkers > 0 {
			workers = processWorkers
		}

		eng := engine.New(db, thresholds())
		proc := process.NewProcessor(eng, workers)

		result, err := proc.ProcessFile(args[0])
		if err != nil {
			return err
		}

		fmt.Println("\nReconciliation complete:")
		fmt.Printf("  Processed: %d\n", result.Processed)
		fmt.Printf("  Filled: %d\n", result.Filled)
		fmt.Printf("  Reconciled: %d\n", result.Reconciled)
		fmt.Printf("  Enrolled: %d\n", result.Enrolled)
		fmt.Printf("  Flagged: %d\n", result.Flagged)
		fmt.Printf("  Unchanged: %d\n", result.Unchanged)
		fmt.Printf("  Errors: %d\n", result.Errors)
		if result.Flagged > 0 {
			fmt.Println("\nReview open conflicts with: selfheal conflicts list")
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "Override worker count from config")
}

// --- conflicts command ---

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Review and resolve conflict flags",
}

var conflictsStatus string

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflict flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		flags, err := db.Conflicts(conflictsStatus, 50, 0)
		if err != nil {
			return err
		}

		if len(flags) == 0 {
			fmt.Printf("No %s conflicts.\n", conflictsStatus)
			return nil
		}

		fmt.Printf("%s conflicts (most severe first):\n\n", conflictsStatus)
		for _, f := range flags {
			existing := "(empty)"
			if f.ExistingValue != nil {
				existing = *f.ExistingValue
			}
			fmt.Printf("  [%d] %s %s / %s (score %.2f)\n", f.ID, f.EntityKind, f.EntityName, f.FieldName, f.ConflictScore)
			fmt.Printf("        existing: %s\n", existing)
			fmt.Printf("        candidate: %s\n", f.ConflictingValue)
		}
		return nil
	},
}

var (
	resolveAction string
	resolveBy     string
	resolveValue  string
)

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Resolve or dismiss a conflict flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conflict ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var chosen *string
		if resolveValue != "" {
			chosen = &resolveValue
		}

		flag, err := db.ResolveConflict(id, resolveAction, resolveBy, chosen)
		if err != nil {
			return err
		}

		fmt.Printf("Conflict [%d] %s by %s\n", flag.ID, flag.Status, resolveBy)
		if flag.Status == database.ConflictResolved {
			fmt.Printf("  %s %s / %s set to: %s\n", flag.EntityKind, flag.EntityName, flag.FieldName, resolveValue)
		}
		return nil
	},
}

func init() {
	conflictsListCmd.Flags().StringVar(&conflictsStatus, "status", database.ConflictOpen, "Filter by status: OPEN, RESOLVED or DISMISSED")
	conflictsResolveCmd.Flags().StringVar(&resolveAction, "action", database.ConflictResolved, "RESOLVED or DISMISSED")
	conflictsResolveCmd.Flags().StringVar(&resolveBy, "by", "", "Name/ID of the resolving staff member")
	conflictsResolveCmd.Flags().StringVar(&resolveValue, "value", "", "Value to write into the entity (required for RESOLVED)")

	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}

		eng := engine.New(db, thresholds())
		fmt.Printf("Starting review API at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, eng, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override server port from config")
}

func thresholds() engine.Thresholds {
	return engine.Thresholds{
		Enroll:          cfg.Reconciliation.EnrollThreshold,
		Reconcile:       cfg.Reconciliation.ReconcileThreshold,
		ConfidenceFloor: cfg.Reconciliation.ConfidenceFloor,
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "selfheal.db")
	return database.Open(dbPath)
}
