package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/katu09161004/tel-addapter/internal/api"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// serveCmd starts the read-only status API over the run log.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API over the run log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		router := api.NewRouter(a.runs, a.config, a.logger)
		server := &http.Server{
			Addr:    a.config.Server.Addr,
			Handler: router.Routes(),
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("Status API listening", logger.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
