package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"syllabuscal/internal/config"
	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/scan"
	"syllabuscal/internal/store"
)

const version = "0.3.0"

var (
	configPath string
	dbPath     string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "syllabuscal",
		Short:         "Extract assignment and exam deadlines from course text into a calendar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "event database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies flag overrides and logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logOpts := cfg.LogOptions()
	if debug {
		logOpts.Level = appLog.LevelDebug
	}
	if err := appLog.Configure(logOpts); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

// openPipeline opens the store and builds a scanner over it. Callers close
// the store.
func openPipeline() (*config.Config, *store.Store, *scan.Scanner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	sc, err := scan.New(cfg, st)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	return cfg, st, sc, nil
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
