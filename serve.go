package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp_blog_generator/pipeline"
	"mcp_blog_generator/server"
)

func serveCMD() *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(server.Options{
				Pipeline: a.pipe,
				Store:    &pipeline.ResultStore{},
				Files:    a.files,
				Gatherer: a.registry,
				Logger:   logger.WithPrefix("server"),
			})
			if err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting web server", "addr", cfg.Server.Addr, "artifacts", a.files.Root())
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serve
}
