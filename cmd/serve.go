package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lightbot/internal/app/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.NewServer(a.engine, cfg.Server.AllowedOrigins).Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Infof("LightBot %s listening on %s", server.Version, cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Infof("Shutting down (timeout %s)", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}
