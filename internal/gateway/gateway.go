// ABOUTME: Gateway wires the store, auth, rate limiter, and HTTP surfaces into one server.
// ABOUTME: It owns the http.Server lifecycle including graceful shutdown.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/todoforai/todod/internal/api"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/config"
	"github.com/todoforai/todod/internal/mcp"
	"github.com/todoforai/todod/internal/ratelimit"
	"github.com/todoforai/todod/internal/store"
)

// Gateway hosts the REST API and the MCP tool-call endpoints on a single
// HTTP listener, sharing one store and one rate limiter.
type Gateway struct {
	config     *config.Config
	store      store.Store
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	logger     *slog.Logger

	cancelEviction context.CancelFunc
}

func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
	}
	return s, nil
}

// New builds a Gateway from configuration. The returned Gateway owns the
// store and must be shut down via Run's return or Shutdown.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	authenticator := auth.NewTokenAuthenticator(s, s, logger)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	registry, err := mcp.NewToolset(s, logger).NewRegistry()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.ServerConfig{
		Registry:      registry,
		Authenticator: authenticator,
		Limiter:       limiter,
		Logger:        logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Store:      s,
		Verifier:   verifier,
		SessionTTL: cfg.Auth.SessionTTL,
		OAuth:      cfg.OAuth.Providers,
		Logger:     logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	gw := &Gateway{
		config:  cfg,
		store:   s,
		limiter: limiter,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mcpServer.RegisterRoutes(mux)
	apiServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	return gw, nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.httpServer.Addr, err)
	}

	evictCtx, cancel := context.WithCancel(context.Background())
	g.cancelEviction = cancel
	g.limiter.StartEviction(evictCtx, time.Minute, 10*g.config.RateLimit.Window)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if g.cancelEviction != nil {
		g.cancelEviction()
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
