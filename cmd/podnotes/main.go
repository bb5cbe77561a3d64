package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"podnotes/internal/config"
	"podnotes/internal/feed"
	"podnotes/internal/interview"
	"podnotes/internal/pipeline"
	"podnotes/internal/render"
	"podnotes/internal/store"
	"podnotes/internal/template"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "podnotes",
	Short:   "Turn podcast episodes into structured notes",
	Long:    "Podnotes fetches podcast episodes, acquires transcripts, extracts structured notes with an LLM, and optionally interviews you about what you heard.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
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
		if !verbose && cfg.Logging.Level != "" {
			os.Setenv("LOG_LEVEL", cfg.Logging.Level)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(interviewCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(costsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(statusCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("podnotes", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/podnotes/",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
		} else {
			if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Created config: %s\n", target)
		}

		templates := filepath.Join(config.ConfigDir(), "templates.yaml")
		if _, err := os.Stat(templates); err == nil {
			fmt.Printf("Templates already exist: %s\n", templates)
		} else {
			if err := os.WriteFile(templates, template.DefaultTemplatesYAML, 0o644); err != nil {
				return fmt.Errorf("writing templates: %w", err)
			}
			fmt.Printf("Created templates: %s\n", templates)
		}

		fmt.Println("Edit the config to set the transcription service and LLM provider.")
		return nil
	},
}

// --- process command ---

var (
	episodeIndex  int
	templateNames []string
	withInterview bool
	dryRun        bool
)

var processCmd = &cobra.Command{
	Use:   "process <feed-url>",
	Short: "Process a podcast episode into structured notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ep, err := feed.NewSource().GetEpisode(ctx, args[0], episodeIndex)
		if err != nil {
			return fmt.Errorf("fetching episode: %w", err)
		}
		fmt.Printf("Episode: %s\n", ep.Title)

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		if dryRun {
			planned := pipe.DryRun(*ep, templateNames)
			fmt.Printf("\nWould process into %s\n", pipe.Workspace(*ep))
			fmt.Println("Templates:")
			for _, p := range planned {
				fmt.Printf("  %s (provider: %s, tier: %s)\n", p.Name, p.Provider, p.CostTier)
			}
			return nil
		}

		opts := pipeline.Options{
			Templates: templateNames,
			Progress:  consoleProgress{},
		}
		if withInterview {
			opts.Interview = true
			opts.Ask = askTerminal
		}

		summary, err := pipe.Run(ctx, *ep, opts)
		printSummary(summary)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVarP(&episodeIndex, "episode", "e", 0, "Episode index, 0 = latest")
	processCmd.Flags().StringSliceVarP(&templateNames, "templates", "t", nil, "Override template selection")
	processCmd.Flags().BoolVarP(&withInterview, "interview", "i", false, "Run the reflection interview after extraction")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// consoleProgress prints pipeline stage transitions.
type consoleProgress struct{}

func (consoleProgress) Emit(stage, status, detail string) {
	switch status {
	case pipeline.StatusStart:
		fmt.Printf("%s...\n", stage)
	case pipeline.StatusFailed:
		fmt.Printf("  %s failed: %s\n", stage, detail)
	case pipeline.StatusSkipped:
	default:
		if detail != "" {
			fmt.Printf("  %s: %s\n", stage, detail)
		}
	}
}

func printSummary(s *pipeline.Summary) {
	if s == nil {
		return
	}
	fmt.Println("\nRun summary:")
	for name, t := range s.Templates {
		line := fmt.Sprintf("  %s: %s", name, t.Status)
		if t.Cached {
			line += " (cached)"
		}
		if t.Error != "" {
			line += " (" + t.Error + ")"
		}
		fmt.Println(line)
	}
	if len(s.FailedFiles) > 0 {
		fmt.Printf("  failed files: %s\n", strings.Join(s.FailedFiles, ", "))
	}
	if s.Interview != nil {
		fmt.Printf("  interview: %d turns (%s)\n", s.Interview.Turns, s.Interview.State)
	}
	if s.InterviewErr != nil {
		fmt.Printf("  interview failed: %v\n", s.InterviewErr)
	}
	if s.Workspace != "" {
		fmt.Printf("  notes: %s\n", s.Workspace)
	}
	fmt.Printf("  total cost: $%.4f\n", s.TotalCost)
}

// askTerminal prompts on stdout and reads one answer line from stdin.
// "done" ends the interview early, "quit" abandons it.
func askTerminal(question string) (string, error) {
	fmt.Printf("\n? %s\n> ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", interview.ErrAbort
	}
	answer = strings.TrimSpace(answer)
	switch strings.ToLower(answer) {
	case "done":
		return "", interview.ErrDone
	case "quit", "q":
		return "", interview.ErrAbort
	}
	return answer, nil
}

// --- interview command ---

var interviewCmd = &cobra.Command{
	Use:   "interview <feed-url>",
	Short: "Run the reflection interview for an already-processed episode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ep, err := feed.NewSource().GetEpisode(ctx, args[0], episodeIndex)
		if err != nil {
			return fmt.Errorf("fetching episode: %w", err)
		}

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		summary, err := pipe.Interview(ctx, *ep, askTerminal)
		if err != nil {
			return err
		}
		fmt.Printf("\nInterview %s after %d turns ($%.4f)\n", summary.State, summary.Turns, summary.Cost)
		return nil
	},
}

func init() {
	interviewCmd.Flags().IntVarP(&episodeIndex, "episode", "e", 0, "Episode index, 0 = latest")
}

// --- export command ---

var exportCmd = &cobra.Command{
	Use:   "export <workspace>",
	Short: "Render a workspace's notes as a single HTML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := render.Export(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Exported: %s\n", path)
		return nil
	},
}

// --- costs command ---

var costsEpisode string

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show recorded spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.GetCosts(costsEpisode, "")
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No cost records.")
			return nil
		}

		for _, r := range records {
			fmt.Printf("  %s  %-13s %-10s $%.4f  %s\n", r.CreatedAt, r.Kind, r.Provider, r.Amount, r.EpisodeID)
		}

		total, err := db.TotalCost(costsEpisode)
		if err != nil {
			return err
		}
		fmt.Printf("\nTotal: $%.4f\n", total)
		return nil
	},
}

var costsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cost records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearCosts()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d cost records.\n", n)
		return nil
	},
}

func init() {
	costsCmd.Flags().StringVar(&costsEpisode, "episode", "", "Filter by episode ID")
	costsCmd.AddCommand(costsClearCmd)
}

// --- cache command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the transcript and extraction cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CachePruneExpired()
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d expired entries.\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CacheClear()
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d entries.\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status",
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

		fmt.Printf("Store: %s\n\n", db.Path())
		fmt.Println("Cache:")
		fmt.Printf("  Live entries: %d\n", stats.CacheLive)
		fmt.Printf("  Expired entries: %d\n", stats.CacheExpired)
		fmt.Println("\nCosts:")
		fmt.Printf("  Records: %d\n", stats.CostRecords)
		fmt.Printf("  Total spend: $%.4f\n", stats.TotalSpend)
		fmt.Println("\nInterviews:")
		fmt.Printf("  Sessions: %d\n", stats.Sessions)
		return nil
	},
}

func openDB() (*store.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "podnotes.db"))
}
