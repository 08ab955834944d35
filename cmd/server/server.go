package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"declarations/config"
	"declarations/handlers"
	"declarations/logging"
	"declarations/resilience"
	"declarations/services/chat"
	"declarations/tools"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const healthMessage = "Expense declaration assistant is running"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.InitLogger(os.Stderr, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("Configuration loaded", cfg.Summary()...)

	provider, err := newProvider(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize model provider", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry(tools.NewGiphyClient(cfg.GiphyAPIKey, tools.WithGiphyLogger(logger)))
	logger.Info("Tool registry ready", "tools", registry.Names())
	chatService := chat.NewService(provider, registry,
		chat.WithMaxSteps(cfg.MaxSteps),
		chat.WithLogger(logger),
	)
	chatHandler := handlers.NewChatHandler(chatService, cfg.ChatTimeout, logger)

	if err := run(cfg.Port, newRouter(chatHandler), logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newProvider(cfg *config.Config, logger *slog.Logger) (chat.Provider, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return chat.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxRetries, logger), nil
	case config.ProviderAzure:
		retry := resilience.NewRetryPolicy(cfg.MaxRetries, 500*time.Millisecond)
		provider, err := chat.NewAzureProvider(cfg.AIResource, cfg.AIAPIKey, cfg.AIDeployment, cfg.AIAPIVersion, retry, logger)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func newRouter(chatHandler *handlers.ChatHandler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", healthCheckHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("OPTIONS")

	chatHandler.RegisterRoutes(api)

	return router
}

// run serves until SIGINT or SIGTERM, then drains in-flight streams.
func run(port string, handler http.Handler, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(healthMessage))
}
