package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/genstats/client/internal/stub"
	"github.com/spf13/cobra"
)

func newStubCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the canned local backend",
		Long: "Serves /upload, /summary/{id}, /generate_insights, /generate_ai, /health and /ws.\n" +
			"Uploads are kept in memory and summaries report stored metadata only.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := c.cfg
			if addr == "" {
				addr = cfg.GetServerAddr()
			}

			var origins []string
			for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					origins = append(origins, o)
				}
			}

			srv := stub.New(stub.Options{
				Version:        Version,
				BodyLimit:      cfg.Server.BodyLimit,
				AllowOrigins:   origins,
				RequestLogging: cfg.Server.EnableRequestLogging,
				Logger:         c.logger,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr,
					time.Duration(cfg.Server.ReadTimeout)*time.Second,
					time.Duration(cfg.Server.WriteTimeout)*time.Second)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Stub backend on http://%s (Ctrl+C to stop)\n", addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
