package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/givlyn/backupd/internal/config"
	"github.com/givlyn/backupd/internal/server"
	"github.com/givlyn/backupd/internal/utils"
	"github.com/givlyn/backupd/internal/version"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "backupd"
	envPrefix      = "BACKUPD"
)

var home, _ = os.UserHomeDir()

// flag name -> config key
var flagKeys = map[string]string{
	"root":      "walk.root",
	"owner":     "github.owner",
	"repo":      "github.repo",
	"branch":    "github.branch",
	"datadir":   "data_dir",
	"log-level": "log.level",
	"log-file":  "log.file",
	"addr":      "http.addr",
	"cert":      "http.cert_file",
	"key":       "http.key_file",
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "backupd",
		Short:         "Incremental GitHub backups of a working tree",
		Version:       version.Detailed(),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			closeLog, err := setupLogger(&cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("addr", "a", config.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().String("cert", "", "Path to the TLS certificate file")
	rootCmd.Flags().String("key", "", "Path to the TLS key file")

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Config file (default ./backupd.yaml or ~/.config/backupd/backupd.yaml)")
	pf.StringP("root", "r", "", "Directory to back up")
	pf.String("owner", "", "GitHub repository owner")
	pf.String("repo", "", "GitHub repository name")
	pf.StringP("branch", "b", "", "GitHub branch")
	pf.StringP("datadir", "d", "", "Data directory for locks and history")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, .env, BACKUPD_* env vars and flags, in increasing priority
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range config.Defaults() {
		v.SetDefault(key, value)
	}

	// config path
	if f := lookupFlag(cmd, "config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", "backupd"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// only flags set on the command line override the other sources
	for name, key := range flagKeys {
		if f := lookupFlag(cmd, name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger installs the default slog logger and returns a func closing the log file, if any
func setupLogger(cfg *config.LogConfig, console io.Writer) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	noColor := true
	if f, ok := console.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    noColor,
		}),
	}

	closer := func() {}
	if cfg.File != "" {
		if err := utils.EnsureParent(cfg.File); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
		closer = func() { _ = file.Close() }
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
	return closer, nil
}
