package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/internal/httpapi"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consultation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if addrFlag != "" {
			s.Addr = addrFlag
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		adv, err := openAdvisor(ctx, s)
		if err != nil {
			return err
		}
		defer adv.Close()

		srv := httpapi.New(adv, httpapi.Options{
			Logger:         logger,
			AllowedOrigins: s.AllowedOrigins,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return httpapi.Serve(gctx, s.Addr, srv, s.MaxConns, logger)
		})
		g.Go(func() error {
			return adv.Sessions().RunSweeper(gctx, s.SessionTTL/2, s.SessionTTL)
		})

		logger.Info("visa advisor started",
			zap.String("store", s.StoreDriver),
			zap.Int("rules", len(adv.Rules())),
			zap.Strings("categories", adv.Categories()),
			zap.Duration("session_ttl", s.SessionTTL))
		err = g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("visa advisor stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address; overrides VISA_ADDR")
}
