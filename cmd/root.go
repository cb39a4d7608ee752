package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/pipscan/internal/config"
	"github.com/andresmejia3/pipscan/internal/store"
	"github.com/andresmejia3/pipscan/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// DB is the exemplar store shared by subcommands
	DB store.ExemplarStore
	// Cfg is the environment configuration, loaded before every command
	Cfg config.Config
	// Log is the structured logger handed down to the engine
	Log = logrus.New()

	storeURL string
	debug    bool
)

// Version is the application version.
const Version = "0.1.0"

// noStore marks commands that never touch persisted cluster sets.
const noStore = "no-store"

var rootCmd = &cobra.Command{
	Use:           "pipscan",
	Short:         "Dice face recognition from a fixed camera",
	Version:       Version, // This enables the --version flag
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		Log = initLogger(debug || Cfg.Debug)

		if cmd.Annotations[noStore] == "true" {
			return nil
		}

		url := config.ResolveStoreURL(storeURL, Cfg)
		scheme, _, _ := strings.Cut(url, "://")
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.Open(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", scheme, err)
		}
		Log.WithField("backend", scheme).Debug("Exemplar store opened")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

// closeStore releases DB. PersistentPostRun does not run when a command fails, so Execute calls it too.
func closeStore() {
	if DB == nil {
		return
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	if err := DB.Close(context.Background()); err != nil {
		Log.WithError(err).Warn("Failed to close exemplar store")
	}
	DB = nil
}

// initLogger builds the process logger: colored text when debugging, JSON otherwise.
// Logs go to stderr so stdout stays reserved for results.
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		closeStore()
		utils.Die("Command failed", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeURL, "store", "", "Exemplar store URL: postgres://..., sqlite://<path> or bolt://<path> (default: PIPSCAN_STORE, POSTGRES_* or "+config.DefaultStoreURL+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
