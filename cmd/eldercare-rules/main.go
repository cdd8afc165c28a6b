package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eldercare-rules/internal/config"
	"eldercare-rules/internal/logger"
	"eldercare-rules/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "eldercare-rules"

var configPath string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Run the eldercare rule engine.",
	Long: `Evaluates inactivity, dwell and heartbeat rules against the telemetry store
every tick, opens and closes alerts, and sends pre-alert commands over MQTT.

Without a subcommand the engine runs until SIGINT or SIGTERM.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runDaemon()
	},
}

func main() {
	rootCmd.AddCommand(newAckCommand(), newCloseCommand(), newListCommand(),
		newResolveCommand(), newPrealertStopCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ELDERCARE_CONFIG"),
		"path to YAML configuration file (env ELDERCARE_CONFIG)")
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}

	return cfg, log, nil
}

func runDaemon() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	// Cancelled on SIGINT/SIGTERM; also aborts the initial store wait.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rulesService, err := service.NewRulesService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create rules service", zap.Error(err))
		return err
	}
	defer rulesService.Stop()

	if err := rulesService.Start(ctx); err != nil {
		log.Error("Rules service error", zap.Error(err))
		return err
	}

	log.Info("Rules service stopped")
	return nil
}
