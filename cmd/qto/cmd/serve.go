package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildscan/qto/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the quantity extraction API",
	Long: `Start an HTTP server that exposes the quantity extraction pipeline.

The server provides the following endpoints:
  POST /extract    - Extract quantities from an uploaded PDF
  GET  /extract/ws - WebSocket extraction with progress events
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  qto serve
  qto serve --port 8080
  qto serve --host 0.0.0.0 --port 3000 --stub`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		rateLimit := cfg.Server.RateLimitPerMinute
		if cmd.Flags().Changed("rate-limit") {
			rateLimit, _ = cmd.Flags().GetInt("rate-limit")
		}

		dailyUploadMB := cfg.Server.DailyUploadMB
		if cmd.Flags().Changed("daily-upload-mb") {
			dailyUploadMB, _ = cmd.Flags().GetInt64("daily-upload-mb")
		}

		stub, _ := cmd.Flags().GetBool("stub")

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		orch, err := buildOrchestrator(ctx, cfg, stub)
		if err != nil {
			return fmt.Errorf("failed to build extraction pipeline: %w", err)
		}

		serverConfig := server.Config{
			Host:            host,
			Port:            port,
			CORSOrigin:      corsOrigin,
			ShutdownTimeout: time.Duration(shutdownTimeout) * time.Second,

			RateLimitPerMinute: rateLimit,
			DailyUploadBytes:   dailyUploadMB * 1024 * 1024,
		}
		qtoServer := server.NewServer(serverConfig, orch)

		mux := http.NewServeMux()
		qtoServer.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting extraction server", "host", host, "port", port, "stub", stub)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("rate-limit", 0, "per-client extraction requests per minute (0 disables)")
	serveCmd.Flags().Int64("daily-upload-mb", 0, "per-client daily upload quota in MB (0 disables)")
	serveCmd.Flags().Bool("stub", false, "use deterministic stub recognition and mapping services")
}
