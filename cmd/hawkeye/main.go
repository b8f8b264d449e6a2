// Package main is the CLI entry point for hawkeye.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/config"
	"github.com/eliteGoblin/hawkeye/internal/daemon"
	"github.com/eliteGoblin/hawkeye/internal/domain"
	"github.com/eliteGoblin/hawkeye/internal/infra"
	"github.com/eliteGoblin/hawkeye/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "hawkeye",
	Short: "Self-updating endpoint guard",
	Long: `hawkeye synchronizes its configuration, deny-list and guard executable
from remote URLs, then runs the guard, which terminates denied processes
and shows operator messages.

With --no-run or --fetch-only it performs a single synchronization pass
and exits.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runLauncher,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local artifact and state status",
	Long: `Shows which artifacts and backups are present in the data directory,
the effective configuration, the remembered message signature and the most
recent synchronization journal entries.`,
	RunE: runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden guard command - the launcher runs this in a child process
var guardCmd = &cobra.Command{
	Use:    daemon.GuardCommandName,
	Hidden: true,
	RunE:   runGuard,
}

var (
	dataDir      string
	settingsPath string
	noRun        bool
	fetchOnly    bool
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", "", "Data directory (default: the executable's directory)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Local settings file (default: <dir>/settings.yaml)")
	rootCmd.Flags().BoolVar(&noRun, "no-run", false, "Synchronize once and exit without starting the guard")
	rootCmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "Alias of --no-run")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	// --NO-RUN and --Fetch-Only are accepted too
	rootCmd.SetGlobalNormalizationFunc(lowerCaseFlags)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(guardCmd)
}

func lowerCaseFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ToLower(name))
}

func runLauncher(cmd *cobra.Command, args []string) error {
	rt, err := openAgent(dataDir, settingsPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("starting",
		zap.String("status", "ok"),
		zap.String("version", Version),
		zap.String("dir", rt.store.Dir()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(rt.logger, cancel)

	rt.newSynchronizer().SyncAll(ctx)
	if err := rt.metrics.Flush(); err != nil {
		rt.logger.Warn("failed to write metrics", zap.String("status", "fail"), zap.Error(err))
	}

	if noRun || fetchOnly {
		rt.logger.Info("fetch-only mode complete", zap.String("status", "ok"))
		return nil
	}

	// The guard opens its own state store
	rt.closeState()

	var guardArgs []string
	if settingsPath != "" {
		guardArgs = append(guardArgs, "--settings", settingsPath)
	}
	code, err := daemon.NewLauncher(rt.store, rt.store.Dir(), rt.logger).Run(ctx, guardArgs)
	if err != nil {
		rt.logger.Error("failed to run guard", zap.String("status", "fail"), zap.Error(err))
	}
	if code != 0 || err != nil {
		return &exitError{code: code, err: err}
	}
	return nil
}

func runGuard(cmd *cobra.Command, args []string) error {
	rt, err := openAgent(dataDir, settingsPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	enforcer := usecase.NewEnforcer(rt.store, infra.NewProcessDirectory(), rt.metrics, rt.logger)
	dispatcher := usecase.NewDispatcher(rt.newNotifier(), rt.signatures, rt.metrics, rt.logger)
	scheduler := daemon.NewScheduler(
		rt.store,
		rt.newSynchronizer(),
		enforcer,
		dispatcher,
		rt.metrics,
		daemon.SystemClock(),
		rt.logger,
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(rt.logger, cancel)

	if err := scheduler.Run(ctx); err != nil {
		rt.logger.Error("guard stopped", zap.String("status", "fail"), zap.Error(err))
		if errors.Is(err, daemon.ErrLoopFailed) {
			return &exitError{code: 1, err: err}
		}
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := resolveDataDir(dataDir)
	if err != nil {
		return err
	}
	settings, settingsErr := config.LoadSettings(resolveSettingsPath(dir, settingsPath))
	store := infra.NewFileStore(dir)

	fmt.Println("\n=== hawkeye Status ===")
	fmt.Printf("Data directory: %s\n", dir)
	if settingsErr != nil {
		fmt.Printf("Settings: defaults (%v)\n", settingsErr)
	}

	fmt.Println("\nArtifacts:")
	for _, kind := range domain.AllKinds {
		fmt.Printf("  %-10s %-8s backup: %s\n", kind, presence(store.Exists(kind)), presence(store.BackupExists(kind)))
	}

	cfg, cfgErr := usecase.LoadConfiguration(store)
	fmt.Println("\nEffective configuration:")
	if cfgErr != nil {
		fmt.Printf("  (defaults: %v)\n", cfgErr)
	}
	fmt.Printf("  Interval: %s\n", cfg.Interval())
	fmt.Printf("  Message poll: %s\n", cfg.PollInterval())
	for _, kind := range domain.AllKinds {
		url := cfg.URLs.For(kind)
		if url == "" {
			url = "(not set)"
		}
		fmt.Printf("  %s URL: %s\n", kind, url)
	}
	if cfg.Message.Requested() {
		fmt.Printf("  Message: %q for %ds\n", cfg.Message.Text, cfg.Message.DurationSeconds)
	} else {
		fmt.Println("  Message: none")
	}

	if !settings.PersistState {
		fmt.Println("\nState: not persisted (persist_state is off)")
		fmt.Println("======================")
		return nil
	}

	state, err := infra.OpenStateStore(dir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer state.Close()
	if state.Recovered() {
		fmt.Println("\nState: unreadable with its key, old database set aside")
	}

	sig, err := state.LastSignature()
	if err != nil {
		return fmt.Errorf("failed to read message signature: %w", err)
	}
	if sig == "" {
		sig = "(none)"
	}
	fmt.Printf("\nLast shown message: %s\n", sig)

	entries, err := state.RecentSyncs(statusJournalEntries)
	if err != nil {
		return fmt.Errorf("failed to read sync journal: %w", err)
	}
	if len(entries) > 0 {
		fmt.Println("\nRecent synchronization:")
		for _, e := range entries {
			line := fmt.Sprintf("  %s  %-10s %-12s", e.RecordedAt.Format("2006-01-02 15:04:05"), e.Artifact, e.Outcome)
			if e.Error != "" {
				line += "  " + e.Error
			}
			fmt.Println(line)
		}
	}

	fmt.Println("======================")
	return nil
}

const statusJournalEntries = 10

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("hawkeye %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// notifyShutdown cancels on SIGINT or SIGTERM.
func notifyShutdown(logger *zap.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal", zap.String("status", "ok"))
		cancel()
	}()
}
