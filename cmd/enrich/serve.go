package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadscope/enrich/internal/httpapi"
)

// newServeCmd runs the HTTP surface.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, job progress, and the event stream over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = eng.cfg.ListenAddr
			}

			api := httpapi.New(eng.clients.Registry, eng.progress, eng.inst, eng.log)
			server := &http.Server{
				Addr:              addr,
				Handler:           api.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Periodically drop completed trackers past retention.
			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						eng.progress.Sweep()
					}
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				eng.log.Info().Str("addr", addr).Msg("http api listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// newHealthCmd prints every adapter's health snapshot.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print adapter health",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			healths := eng.clients.Registry.Healths(cmd.Context())

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			if err := out.Encode(healths); err != nil {
				return err
			}
			for name, h := range healths {
				if !h.Healthy {
					return fmt.Errorf("adapter %s unhealthy (circuit %s)", name, h.CircuitState)
				}
			}
			return nil
		},
	}
}
