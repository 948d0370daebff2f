package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatrelay-ai/chatrelay/pkg/audit"
	"github.com/chatrelay-ai/chatrelay/pkg/cache"
	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/gateway"
	"github.com/chatrelay-ai/chatrelay/pkg/limiter"
	"github.com/chatrelay-ai/chatrelay/pkg/provider"
	"github.com/chatrelay-ai/chatrelay/pkg/relay"
	"github.com/chatrelay-ai/chatrelay/pkg/router"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			adapters := make(map[string]provider.Adapter, len(cfg.Providers))
			for _, pc := range cfg.Providers {
				a, err := provider.FromConfig(pc, cfg.RequestTimeout)
				if err != nil {
					return err
				}
				adapters[pc.Name] = a
				defer func() { _ = a.Close() }()
			}

			rt, err := router.New(cfg.Router, adapters)
			if err != nil {
				return fmt.Errorf("init router: %w", err)
			}

			lim := limiter.New(
				cfg.Limits.Cooldown,
				cfg.Limits.DailyLimit,
				cfg.Limits.DailyLimitAdmin,
				cfg.Limits.MaxConcurrent,
			)
			c := cache.New(cfg.Cache.TTL, cfg.Cache.HashKeys)

			service := relay.New(cfg, lim, c, rt, auditor)
			service.Start()
			defer service.Stop()

			srv := gateway.New(cfg, service)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting chatrelay with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chatrelay.yaml", "path to config file")
	return cmd
}
