package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/faucetdb/widgets/internal/config"
	"github.com/faucetdb/widgets/internal/store"
)

// loadConfig returns the effective configuration: file, WIDGETS_* env vars
// and any flags bound to viper.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger from the logging section. Logs go to
// stderr so stdout stays clean for command output and MCP stdio.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return config.NewLogger(cfg.Logging, os.Stderr)
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, storeConfig(cfg), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	}
}

// setup loads config, builds the logger and opens the store in one go, the
// way most subcommands start. The caller closes the store.
func setup(ctx context.Context) (*config.Config, *slog.Logger, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, st, nil
}

// resolveDataDir returns the directory holding the PID file: WIDGETS_DATA_DIR
// or ~/.widgets.
func resolveDataDir() string {
	if envDir := os.Getenv("WIDGETS_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".widgets")
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "widgets.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

// localHost maps a wildcard listen host to loopback for client connections.
func localHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
