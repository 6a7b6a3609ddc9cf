package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bher20/gmeter/internal/alerting"
	"github.com/bher20/gmeter/internal/api"
	"github.com/bher20/gmeter/internal/auth"
	"github.com/bher20/gmeter/internal/cron"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.provider.Init(ctx); err != nil {
				log.Printf("serve: initial EOP load failed, queries will retry: %v", err)
			}

			opts := api.Options{Provider: e.provider, Storage: e.store, Schedule: e.cfg.Cron.Schedule}
			if e.cfg.Auth.Enabled {
				svc, err := auth.NewService(ctx, e.store)
				if err != nil {
					return err
				}
				opts.Auth = svc
			}

			if withWorker {
				w := cron.NewWorker(e.store, e.provider, alerting.NewAlerter(e.cfg.Alerting), e.cfg.CronConfig())
				go func() {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Printf("serve: worker stopped: %v", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:              ":" + e.cfg.Port,
				Handler:           api.NewMux(opts),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.Printf("gmeter listening on %s", srv.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			log.Printf("gmeter shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the scheduled refresh in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled EOP refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			w := cron.NewWorker(e.store, e.provider, alerting.NewAlerter(e.cfg.Alerting), e.cfg.CronConfig())
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
