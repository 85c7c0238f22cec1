package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/logging"
	"github.com/sortie/replay/internal/mission"
	"github.com/sortie/replay/internal/otel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "replayctl"

var (
	// Version is set at build time
	Version = "dev"

	sessionStart = time.Now()

	configDir string
	logLevel  string
	logToFile bool

	slogManager    = logging.NewSlogManager()
	otelProvider   *otel.Provider
	missionContext = mission.NewContext()
	logFiles       []*os.File

	// Logger is ready after the root pre-run.
	Logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "Record, store and replay mission attempts",
	Long:         `Inspects mission logs and camera tracks, records attempts from command streams, stores them and plays them back.`,
	Version:      Version,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return setupLogging(cmd.ErrOrStderr())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "write logs to logsDir instead of stderr")
}

// loadConfig reads the config file. A missing file leaves the defaults.
func loadConfig() error {
	viper.Reset()
	err := config.Load(configDir)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(filepath.Join(configDir, config.FileName)); os.IsNotExist(statErr) {
		config.LoadDefaults()
		return nil
	}
	return err
}

func setupLogging(stderr io.Writer) error {
	level := logLevel
	if level == "" {
		level = config.GetString("logLevel")
	}

	out := stderr
	if logToFile {
		logsDir := config.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs dir: %w", err)
		}
		f, err := openLogFile(logging.LogFilePath(logsDir, appName, sessionStart))
		if err != nil {
			return err
		}
		out = f
	}

	otelCfg := config.GetOTelConfig()
	var otelOut io.Writer
	if otelCfg.Enabled && otelCfg.Endpoint == "" {
		logsDir := config.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs dir: %w", err)
		}
		f, err := openLogFile(filepath.Join(logsDir, fmt.Sprintf("%s.%s.otel.jsonl", appName, sessionStart.Format("20060102_150405"))))
		if err != nil {
			return err
		}
		otelOut = f
	}

	var err error
	otelProvider, err = otel.New(otel.FromConfig(otelCfg, otelOut))
	if err != nil {
		return fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}

	opts := []logging.Option{logging.WithContext(missionContext.LogAttrs)}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			fmt.Fprintf(stderr, "graylog disabled: %v\n", err)
		} else {
			opts = append(opts, logging.WithGelf(w))
		}
	}

	slogManager.Setup(out, level, otelProvider.LoggerProvider(), opts...)
	Logger = slogManager.Logger()
	slog.SetDefault(Logger)
	return nil
}

func shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := slogManager.Close(ctx)
	if otelProvider != nil {
		err = errors.Join(err, otelProvider.Shutdown(ctx))
	}
	for _, f := range logFiles {
		err = errors.Join(err, f.Close())
	}
	logFiles = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logFiles = append(logFiles, f)
	return f, nil
}
