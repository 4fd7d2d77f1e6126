package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/username/simcal/internal/config"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/internal/scheduler"
	"github.com/username/simcal/internal/store"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "simcal",
		Short:         "Calendar and availability engine for simulated schedules",
		Long:          "Book meetings, expand recurring events and search common free time on a 13-month simulated calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if cfg.Log.File != "" {
				logger = initFileLogger(cfg.Log)
			} else {
				logger, err = initLogger(cfg.Log)
				if err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: search ./simcal.yaml, $HOME/.simcal, /etc/simcal)")

	rootCmd.AddCommand(
		runCmd(),
		bookCmd(),
		cancelCmd(),
		blockCmd(),
		freeCmd(),
		conflictsCmd(),
		weekCmd(),
		exportCmd(),
		seedCmd(),
		statusCmd(),
	)

	return rootCmd
}

func logLevel(level string) zapcore.Level {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return zapLevel
}

func initLogger(lc config.LogConfig) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(logLevel(lc.Level))
	config.Encoding = lc.Format
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lc.Format == "console" {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stderr"}

	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func initFileLogger(lc config.LogConfig) *zap.Logger {
	// Setup lumberjack for log rotation
	logWriter := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    100,  // MB
		MaxBackups: 3,    // Keep max 3 old log files
		MaxAge:     28,   // days
		Compress:   true, // Compress old logs with gzip
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if lc.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(logWriter), logLevel(lc.Level))
	return zap.New(core)
}

// buildStore creates the configured snapshot store. The returned func
// releases its connections.
func buildStore() (store.SnapshotStore, func(), error) {
	fileStore := func() store.SnapshotStore {
		return store.NewFileStore(cfg.Store.Dir, store.Format(cfg.Store.Format), logger.Named("file-store"))
	}

	switch cfg.Store.Type {
	case "file":
		logger.Debug("Using file snapshot store", zap.String("dir", cfg.Store.Dir))
		return fileStore(), func() {}, nil

	case "redis", "fallback":
		client := store.NewRedisClient(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		redisStore := store.NewRedisStore(client, cfg.Store.GetTTL(), logger.Named("redis-store"))
		if cfg.Store.Type == "redis" {
			logger.Debug("Using redis snapshot store", zap.String("addr", cfg.Store.Redis.Addr))
			return redisStore, closeFn, nil
		}
		logger.Debug("Using redis snapshot store with file fallback",
			zap.String("addr", cfg.Store.Redis.Addr),
			zap.String("dir", cfg.Store.Dir))
		return store.NewFallbackStore(redisStore, fileStore(), logger.Named("fallback-store")), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

// openManager builds the engine and loads the saved state.
func openManager(cmd *cobra.Command, m *metrics.Metrics) (*scheduler.Manager, func(), error) {
	st, closeFn, err := buildStore()
	if err != nil {
		return nil, nil, err
	}

	mgr := scheduler.NewManager(cfg, st, m, logger.Named("scheduler"))
	if err := mgr.Load(cmd.Context()); err != nil {
		closeFn()
		return nil, nil, err
	}
	return mgr, closeFn, nil
}
