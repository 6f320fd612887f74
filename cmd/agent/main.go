// Package main is the entry point for the diamond metrics agent.
// It loads the layered configuration, wires collectors to the batching
// publisher and runs the collection loop either in the foreground or as a
// Windows service.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/diamond-agent/internal/autostart"
	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/service"
)

// version is set at build time via -ldflags.
var version = "dev"

type flags struct {
	configPath string
	url        string
	apiKey     string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "diamond-agent",
		Short:        "Collects system metrics and posts them in batches to the ingestion API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to the configuration file (default: search standard locations)")
	root.PersistentFlags().StringVar(&f.url, "url", "", "ingestion endpoint, overrides the configuration")
	root.PersistentFlags().StringVar(&f.apiKey, "api-key", "", "API key, overrides the configuration")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newRunCommand(f),
		newCheckConfigCommand(f),
		newInstallCommand(f),
		newUninstallCommand(),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			logger := initLogger(cfg)
			defer logger.Sync()

			logger.Info("Starting Diamond Agent",
				zap.String("version", version),
				zap.String("server", cfg.Server.URL))

			if err := cfg.Validate(); err != nil {
				logger.Error("Invalid configuration", zap.Error(err))
				return err
			}

			svc := service.New(logger, func(ctx context.Context) error {
				return runAgent(ctx, cfg, logger)
			})
			if service.IsWindowsService() {
				logger.Info("Running as Windows service")
			}
			return svc.Run()
		},
	}
}

func newCheckConfigCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (server %s, batch size %d, interval %s)\n",
				cfg.Server.URL, cfg.Publisher.BatchSize, cfg.Collection.Interval.Duration)
			return nil
		},
	}
}

func newInstallCommand(f *flags) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the agent as a system service started at boot",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable: %w", err)
			}
			configPath := f.configPath
			if configPath == "" {
				configPath = config.Locate()
			}
			if configPath != "" {
				if configPath, err = filepath.Abs(configPath); err != nil {
					return fmt.Errorf("resolving config path: %w", err)
				}
			}

			m := autostart.New()
			if installed, err := m.IsInstalled(); err != nil {
				return err
			} else if installed {
				return fmt.Errorf("service %s is already installed", m.ServiceName())
			}
			if err := m.Install(autostart.Options{ExecPath: exe, ConfigPath: configPath, DataDir: dataDir}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed and started %s\n", m.ServiceName())
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "working directory for the spill buffer")
	return cmd
}

func newUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the system service",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := autostart.New()
			if err := m.Uninstall(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", m.ServiceName())
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "diamond-agent %s\n", version)
		},
	}
}

func loadConfig(f *flags) (*config.Config, error) {
	cli := config.CLIOverrides{URL: f.url, APIKey: f.apiKey, LogLevel: f.logLevel}
	if f.configPath != "" {
		return config.LoadLayered(cli, embeddedConfig, f.configPath)
	}
	return config.LoadLayered(cli, embeddedConfig)
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
