package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bher20/gmeter/internal/config"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "gmeter",
		Short:        "Gravity observation corrections with IERS pole coordinates",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				os.Setenv(config.FileEnv, configFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides "+config.FileEnv+")")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newPoleCmd(),
		newRefreshCmd(),
		newCorrectCmd(),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}

// env bundles what most commands need: config, storage and the EOP provider.
type env struct {
	cfg      config.Config
	store    storage.Storage
	provider *eop.Provider
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	src, err := cfg.OpenSource()
	if err != nil {
		st.Close()
		return nil, err
	}
	p, err := eop.NewProvider(src, cfg.ProviderConfig(), eop.WithStorage(st))
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{cfg: cfg, store: st, provider: p}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		log.Printf("storage close: %v", err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
