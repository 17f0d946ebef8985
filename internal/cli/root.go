package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/localprobe/internal/control"
	"github.com/vietddude/localprobe/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "localprobe",
	Short: "Local probe relay for a remote status page",
	Long: `localprobe fetches a map of services, nodes and replicas from a remote status
service, probes each replica over ICMP, TCP, HTTP or HTTPS and reports whether
it is healthy, sick or dead.`,
	Run: runAgent,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the probe agent until interrupted",
	Run:   runAgent,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads .env and the config file. On failure the default logger
// is installed so the error can still be reported.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	slogLevel, err := config.ParseLevel(level)
	if err != nil {
		slogLevel = slog.LevelWarn
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Debug("Logger initialized", "level", slogLevel.String())
}

func runAgent(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Server.LogLevel)

	app, err := control.NewAgent(cfg)
	if err != nil {
		slog.Error("Failed to initialize agent", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Agent started", "config", cfgPath)

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Agent stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Received signal, shut down")
}
