// Package main is the entry point for the mug resource API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	run(app, flags.configPath)
}

// parseFlags parses command line flags. Environment variables supply the
// defaults.
func parseFlags(fs *flag.FlagSet, args []string) cliFlags {
	configPath := fs.String("config", getEnvOrDefault("MUG_CONFIG_PATH", "configs/mug.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("MUG_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", getEnvOrDefault("MUG_LOG_FORMAT", observability.FormatJSON),
		"Log format (json, console)")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("mug version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting mug",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded", observability.String("config", cfg.String()))

	return cfg
}
