// lazy-bird is the test coordination service for Godot projects: an HTTP
// server that serializes test runs, an issue watcher that queues agent
// tasks, and helpers for the systemd units behind both.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/version"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "lazy-bird",
	Short:   "Godot test coordination service",
	Version: version.Version,
	Long: `lazy-bird coordinates automated test runs for Godot projects.

The serve command runs the coordination server that agents submit test
jobs to. The watch command polls git platforms for ready issues and
drops task files for the coding agents. Both usually run as systemd
user units; the status command shows them.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lazy-bird version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lazy-bird " + version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "project config file (overrides LAZY_BIRD_CONFIG_PATH)")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		cfg.ConfigPath = configPath
	}
	return cfg, nil
}

// applyAddr overrides the listen host and port from a host:port flag value.
func applyAddr(cfg *config.Config, addr string) error {
	if addr == "" {
		return nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parse --addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parse --addr port: %w", err)
	}
	if host != "" {
		cfg.Host = host
	}
	cfg.Port = port
	return nil
}

// newLogger builds the process logger. The verbose flag wins over the
// configured level.
func newLogger(configured string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(configured) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
