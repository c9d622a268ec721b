package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-sync/internal/constants"
	"github.com/kozaktomas/face-sync/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the face-sync HTTP API.

The server loads all enrolled templates into memory and checks the store every
TEMPLATE_REFRESH_INTERVAL for templates enrolled or deleted by other
processes. It follows the roster file when ROSTER_SOURCE=file and saves the
HNSW index on shutdown when TEMPLATE_INDEX_PATH is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	logger.WithField("templates", eng.service.TemplateCount()).Info("template catalog ready")

	if interval := cfg.Matching.RefreshInterval; interval > 0 {
		go eng.service.WatchTemplates(ctx, interval)
	}

	if eng.fileRoster != nil {
		go func() {
			if err := eng.fileRoster.Watch(ctx); err != nil {
				logger.WithError(err).Error("roster watcher stopped")
			}
		}()
	}

	server := web.NewServer(cfg.Web, eng.service, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("error during shutdown")
		}
		if err := eng.service.SaveIndex(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to save HNSW index")
		}
	}()

	fmt.Printf("Starting face-sync API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
