package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasktime/config"
	"tasktime/web"

	"github.com/spf13/cobra"
)

var (
	servePort   int
	serveDBPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task time-tracking HTTP API",
	Long: `Start the HTTP API for tasks, timers and reports.

Every request must carry "Authorization: Bearer <token>" with a token issued by "tasktime user add".
Top-task reports are cached per user for aggregate.cache_ttl.`,
	Example: `
  # Start on the configured port and database
  tasktime serve

  # Start with explicit port and database
  tasktime serve --port 9090 --db ./tasktime.db
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		a, err := newApp(cfg, resolveDBPath(serveDBPath), os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil {
				a.logger.Error("close services", "error", closeErr)
			}
		}()

		server := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: web.NewServer(web.Deps{
				Auth:    a.store,
				Timers:  a.timers,
				Reports: a.reports,
				Tasks:   a.tasks,
				Clock:   a.clock,
				Logger:  a.logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		a.logger.Info("server started", "addr", server.Addr, "db", resolveDBPath(serveDBPath))
		fmt.Printf("Listening on http://localhost:%d\n", cfg.Server.Port)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-sigCh:
			a.logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			err := <-errCh
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default: server.port from config)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
}
