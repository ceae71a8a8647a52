package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexus/internal/api"
	documentapi "nexus/internal/api/document"
	llmapi "nexus/internal/api/llm"
	sessionapi "nexus/internal/api/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve ingestion, retrieval, sessions and summaries over HTTP. Answers
and summaries are streamed as plain text.

Examples:
  nexus serve
  nexus serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	a, err := openApp(ctx, GetRootDir(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	router := api.SetupRouter(
		documentapi.NewHandler(a.ingest, a.summarize),
		sessionapi.NewHandler(a.engine),
		llmapi.NewHandler(a.llm),
		log,
		cfg.Server.RequestTimeout,
	)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", addr), zap.String("index", cfg.Index.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		log.Error("Server error", zap.Error(err))
		return err
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	log.Info("Shutting down server gracefully")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
		return err
	}
	log.Info("Server stopped", zap.Int("open_sessions", a.engine.SessionCount()))
	return nil
}
