package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"clipforge/internal/server"
	"clipforge/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Fetch yt-dlp ahead of the first request.
		go func() {
			if _, err := a.provisioner.EnsureReady(ctx); err != nil {
				a.logger.Warn("yt-dlp warm-up failed, will retry on first request", "error", err)
			}
		}()

		go service.NewJanitor(a.storage, a.cfg.Storage.CleanupInterval, a.logger).Run(ctx)

		if os.Getenv(gin.EnvGinMode) == "" {
			gin.SetMode(gin.ReleaseMode)
		}
		if a.cfg.Server.APIKey == "" {
			a.logger.Warn("no API key configured, the API is open to anyone who can reach it")
		}

		h := server.NewHandlers(a.orchestrator, a.provisioner, a.storage.Dir(), a.logger)
		router := server.NewRouter(h, a.cfg.Server.APIKey, a.logger)
		srv := server.NewServer(a.cfg.Addr(), router, a.cfg.Server.ReadTimeout, a.cfg.Server.ShutdownTimeout, a.logger)
		return srv.Run(ctx)
	},
}
