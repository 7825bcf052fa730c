// edgarprofiles — SEC EDGAR company profile engine.
//
// Main CLI entrypoint using the cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgarprofiles/engine/internal/aggregator"
	"github.com/edgarprofiles/engine/internal/ai"
	"github.com/edgarprofiles/engine/internal/api"
	"github.com/edgarprofiles/engine/internal/batch"
	"github.com/edgarprofiles/engine/internal/cache"
	"github.com/edgarprofiles/engine/internal/config"
	"github.com/edgarprofiles/engine/internal/edgar"
	"github.com/edgarprofiles/engine/internal/logging"
	"github.com/edgarprofiles/engine/internal/parsers"
	"github.com/edgarprofiles/engine/internal/relationship"
	"github.com/edgarprofiles/engine/internal/store"
	"github.com/edgarprofiles/engine/internal/validator"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// Exit codes (spec §6): 0 success, 2 config error, 3 store
// unreachable, 4 partial success (some tickers failed), 5 cancelled.
const (
	exitSuccess        = 0
	exitConfigError    = 2
	exitStoreError     = 3
	exitPartialSuccess = 4
	exitCancelled      = 5
)

var (
	version = "dev"
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edgarprofiles:", err)
		os.Exit(exitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edgarprofiles",
	Short: "SEC EDGAR company profile aggregation engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(addTickerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retryFailedCmd)
	rootCmd.AddCommand(retryProblematicCmd)
	rootCmd.AddCommand(pollDiscoveryCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("edgarprofiles", version)
	},
}

// deps bundles every constructed component a command needs, built
// once per invocation from the loaded config.
type deps struct {
	log      *zap.Logger
	edgarCli *edgar.Client
	cache    *cache.Cache
	registry *parsers.Registry
	relExtr  *relationship.Extractor
	store    *store.Store
	tracker  *validator.Tracker
	analyzer *ai.Analyzer
	agg      *aggregator.Aggregator
}

func buildDeps(ctx context.Context) (*deps, error) {
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	edgarCli := edgar.New(edgar.Config{
		UserAgent:         cfg.Edgar.UserAgent,
		RequestsPerSecond: cfg.Edgar.RequestsPerSecond,
		Burst:             cfg.Edgar.Burst,
		MaxRetries:        cfg.Edgar.MaxRetries,
		RequestTimeout:    time.Duration(cfg.Edgar.RequestTimeoutSec) * time.Second,
	}, log)

	fc, err := cache.Open(cfg.Cache.Dir, cfg.Cache.MaxBytes, cfg.Cache.EvictToRatio)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	entries, err := edgarCli.ListCompanyDirectory(ctx)
	if err != nil {
		log.Warn("edgarprofiles: company directory fetch failed, relationship matching degraded", zap.Error(err))
	}
	dirEntries := make([]relationship.CompanyDirectoryEntry, 0, len(entries))
	for _, e := range entries {
		dirEntries = append(dirEntries, relationship.CompanyDirectoryEntry{CIK: e.CIK, Ticker: e.Ticker, CanonicalName: e.Name})
	}
	dir := relationship.NewDirectory(dirEntries)
	relExtr := relationship.NewExtractor(dir, cfg.Relationship.FuzzyThreshold, cfg.Relationship.MinConfidence)
	relExtr.Searcher = edgarCli

	tracker := validator.NewTracker(st)

	var analyzer *ai.Analyzer
	if cfg.AI.Enabled {
		analyzer = ai.NewAnalyzer(cfg.AI.OllamaURL, cfg.AI.Model)
		if err := analyzer.Ping(ctx); err != nil {
			log.Warn("edgarprofiles: ai.enabled is set but ollama is unreachable", zap.Error(err))
		}
	}

	aggCfg := aggregator.Config{
		TaskPoolSize:     cfg.Aggregator.TaskPoolSize,
		TaskTimeoutSec:   cfg.Aggregator.TaskTimeoutSec,
		LookbackYears:    cfg.Edgar.LookbackYears,
		Form4Max:         cfg.Parsers.Form4Max,
		DEF14AMax:        cfg.Parsers.DEF14AMax,
		SC13Max:          cfg.Parsers.SC13Max,
		ReportsPerForm:   cfg.Parsers.ReportsPerForm,
		ProgressInterval: 15,
	}

	var narrativeAnalyzer aggregator.NarrativeAnalyzer
	if analyzer != nil {
		narrativeAnalyzer = analyzer
	}

	reg := parsers.NewRegistry()
	agg := aggregator.New(edgarCli, fc, reg, relExtr, st, tracker, narrativeAnalyzer, aggCfg, log)

	return &deps{
		log:      log,
		edgarCli: edgarCli,
		cache:    fc,
		registry: reg,
		relExtr:  relExtr,
		store:    st,
		tracker:  tracker,
		analyzer: analyzer,
		agg:      agg,
	}, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, used by
// the batch-running commands so an operator can trigger exitCancelled
// (spec §6) cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printProgress(ev aggregator.ProgressEvent) {
	fmt.Printf("[%s] %-12s %3d%%  %s\n", ev.Ticker, ev.Stage, ev.Percent, ev.Message)
}

var addTickerCmd = &cobra.Command{
	Use:   "add-ticker [ticker...]",
	Short: "Aggregate a profile for one or more tickers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force-refresh")
		outputJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Aggregator.ProfileTimeoutSec)*time.Second*time.Duration(len(args)))
		defer cancel()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		failures := 0
		for _, ticker := range args {
			cik, err := d.edgarCli.ResolveCIK(ctx, ticker)
			if err != nil {
				fmt.Fprintf(os.Stderr, "edgarprofiles: resolve %s: %v\n", ticker, err)
				failures++
				continue
			}

			doc, err := d.agg.Aggregate(ctx, ticker, cik, aggregator.Options{ForceRefresh: force}, printProgress)
			if err != nil {
				fmt.Fprintf(os.Stderr, "edgarprofiles: aggregate %s: %v\n", ticker, err)
				failures++
				continue
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(doc)
			} else {
				fmt.Printf("%s: quality=%s score=%.1f tasks_completed=%d/9\n",
					ticker, doc.Quality.Grade, doc.Quality.Score, doc.TasksCompleted)
			}
		}

		if failures > 0 {
			os.Exit(exitPartialSuccess)
		}
		return nil
	},
}

func init() {
	addTickerCmd.Flags().Bool("force-refresh", false, "bypass the filing cache")
	addTickerCmd.Flags().Bool("json", false, "print the full profile document as JSON")
}

var runCmd = &cobra.Command{
	Use:   "run [ticker...]",
	Short: "Run a batch over the given tickers with bounded concurrency",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		ctrl := batch.NewController(d.agg, d.edgarCli, d.store, d.store, cfg.Aggregator.TickerPoolSize, d.log, printProgress)
		for _, ticker := range args {
			ctrl.AddTicker(ticker, aggregator.Options{})
		}

		err = ctrl.Run(ctx)
		failed := 0
		for _, st := range ctrl.Status() {
			fmt.Printf("%-8s %s\n", st.Ticker, st.Status)
			if st.Status == batch.JobFailed {
				failed++
			}
		}

		switch {
		case errors.Is(err, context.Canceled):
			os.Exit(exitCancelled)
		case err != nil:
			return err
		case failed > 0:
			os.Exit(exitPartialSuccess)
		}
		return nil
	},
}

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Re-enqueue every ticker with a recorded failure and run the batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		ctrl := batch.NewController(d.agg, d.edgarCli, d.store, d.store, cfg.Aggregator.TickerPoolSize, d.log, printProgress)
		n, err := ctrl.RetryFailed()
		if err != nil {
			return err
		}
		fmt.Printf("edgarprofiles: requeued %d failed ticker(s)\n", n)
		return ctrl.Run(ctx)
	},
}

var retryProblematicCmd = &cobra.Command{
	Use:   "retry-problematic",
	Short: "Re-enqueue every stored profile at or below the given quality grade",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxGrade, _ := cmd.Flags().GetString("max-grade")

		ctx, stop := signalContext()
		defer stop()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		ctrl := batch.NewController(d.agg, d.edgarCli, d.store, d.store, cfg.Aggregator.TickerPoolSize, d.log, printProgress)
		n, err := ctrl.RetryProblematic(maxGrade)
		if err != nil {
			return err
		}
		fmt.Printf("edgarprofiles: requeued %d problematic profile(s)\n", n)
		return ctrl.Run(ctx)
	},
}

func init() {
	retryProblematicCmd.Flags().String("max-grade", "D", "re-enqueue profiles at or below this quality grade")
}

var pollDiscoveryCmd = &cobra.Command{
	Use:   "poll-discovery [ticker...]",
	Short: "Poll each ticker's EDGAR Atom discovery feed and re-enqueue tickers with new filings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		ctrl := batch.NewController(d.agg, d.edgarCli, d.store, d.store, cfg.Aggregator.TickerPoolSize, d.log, printProgress)
		for _, ticker := range args {
			ctrl.Watch(ticker)
		}

		n, err := ctrl.PollDiscovery(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("edgarprofiles: discovery poll found new filings for %d ticker(s)\n", n)
		if n == 0 {
			return nil
		}
		return ctrl.Run(ctx)
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache [cik]",
	Short: "Clear the filing cache entirely, or for a single CIK",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		if len(args) == 1 {
			return d.cache.ClearCompany(profile.PadCIK(args[0]))
		}
		return d.cache.Clear()
	},
}

var showCmd = &cobra.Command{
	Use:   "show [ticker]",
	Short: "Print the stored profile for a ticker as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		cik, err := d.edgarCli.ResolveCIK(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolve cik: %w", err)
		}
		doc, ok, err := d.store.GetProfile(cik)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "edgarprofiles: no stored profile for %s\n", args[0])
			os.Exit(exitStoreError)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		d, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer d.store.Close()

		srv := api.NewServer(&cfg.API, d.store, d.store, d.edgarCli, nil)
		fmt.Printf("edgarprofiles: listening on %s:%d\n", cfg.API.Host, cfg.API.Port)
		return srv.ListenAndServe()
	},
}
