package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yapay-ai/cloudcost-sentinel/internal/server"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and evaluation scheduler",
	Long: `Start the HTTP API and the periodic alert-evaluation scheduler in one
process. The scheduler skips a tick if the previous pass is still running.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	eng, store, err := initEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	scheduler := engine.NewScheduler(eng, cfg.Scheduler.IntervalDuration(), logger)
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := server.NewServer(eng, store, logger)

	readTimeout, _ := time.ParseDuration(cfg.Server.ReadTimeout)
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout, _ := time.ParseDuration(cfg.Server.WriteTimeout)
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sentinel started", "listen", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
