// ABOUTME: Gateway orchestrator that wires catalog, access control, mounts, and sessions
// ABOUTME: Manages the shared HTTP server and optional tsnet listener lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/hearthside/agenthub/internal/access"
	"github.com/hearthside/agenthub/internal/auth"
	"github.com/hearthside/agenthub/internal/catalog"
	"github.com/hearthside/agenthub/internal/config"
	"github.com/hearthside/agenthub/internal/manifest"
	"github.com/hearthside/agenthub/internal/mount"
	"github.com/hearthside/agenthub/internal/session"
	"github.com/hearthside/agenthub/internal/store"
)

// Gateway orchestrates the agenthub server components. It is the single
// explicitly-constructed holder of process-wide state: catalog, store,
// evaluator, mount manager, and session orchestrator.
type Gateway struct {
	config       *config.Config
	store        store.Store
	catalog      *catalog.Catalog
	evaluator    *access.Evaluator
	mounts       *mount.Manager
	orchestrator *session.Orchestrator
	verifier     *auth.JWTVerifier
	mux          *http.ServeMux
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger
}

// New constructs a Gateway: opens the store, scans the agents directory,
// syncs the catalog, and prepares the shared server. Individual agent load
// failures are logged and skipped; they never abort startup.
func New(ctx context.Context, cfg *config.Config, modules *mount.ModuleTable, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cat := catalog.New(catalog.Config{
		Store:           st,
		Logger:          logger,
		AutoInstallFree: cfg.Catalog.AutoInstallFree,
	})

	loader := manifest.NewLoader(cfg.Catalog.AgentsDir, logger)
	descriptors, loadErrs, err := loader.LoadAll()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("scanning agents: %w", err)
	}
	for _, le := range loadErrs {
		logger.Error("agent excluded from catalog", "dir", le.Dir, "error", le.Err)
	}
	for _, desc := range descriptors {
		if err := cat.Register(ctx, desc); err != nil {
			logger.Error("agent registration failed", "slug", desc.Slug, "error", err)
		}
	}

	mux := http.NewServeMux()

	g := &Gateway{
		config:    cfg,
		store:     st,
		catalog:   cat,
		evaluator: access.NewEvaluator(st, st, st, logger),
		mounts:    mount.NewManager(cat, modules, mux, logger),
		verifier:  auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		mux:       mux,
		logger:    logger.With("component", "gateway"),
	}

	g.orchestrator = session.NewOrchestrator(session.Config{
		Dispatcher:    &agentDispatcher{catalog: cat, mounts: g.mounts, logger: logger},
		SweepInterval: cfg.Sessions.SweepInterval,
		Logger:        logger,
	})

	g.registerRoutes()
	return g, nil
}

// registerRoutes attaches the gateway's own endpoints to the shared mux.
// Agent modules add theirs through the mount manager.
func (g *Gateway) registerRoutes() {
	g.mux.HandleFunc(RealtimePath, g.handleUpgrade)
	g.mux.HandleFunc("/healthz", g.handleHealth)
	g.registerAPIRoutes()
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails. Listener setup failure is fatal: the process should
// restart rather than limp along without its only ingress.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.listen()
	if err != nil {
		return fmt.Errorf("listener setup: %w", err)
	}

	g.httpServer = &http.Server{
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- g.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return g.shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// listen opens either the configured TCP listener or a tsnet listener when
// Tailscale is enabled.
func (g *Gateway) listen() (net.Listener, error) {
	if !g.config.Tailscale.Enabled {
		return net.Listen("tcp", g.config.Server.HTTPAddr)
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  g.config.Tailscale.Hostname,
		AuthKey:   g.config.Tailscale.AuthKey,
		Dir:       g.config.Tailscale.StateDir,
		Ephemeral: g.config.Tailscale.Ephemeral,
	}
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("tsnet listen: %w", err)
	}
	g.logger.Info("tailscale listener up", "hostname", g.config.Tailscale.Hostname)
	return ln, nil
}

// shutdown drains the HTTP server, closes all live sessions, then the store.
func (g *Gateway) shutdown() error {
	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("http shutdown", "error", err)
	}

	g.orchestrator.Close()

	if g.tsnetServer != nil {
		g.tsnetServer.Close()
	}

	return g.store.Close()
}

// handleHealth reports process liveness and a few counters.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"agents":   g.catalog.Count(),
		"sessions": g.orchestrator.Count(),
	})
}

// agentDispatcher routes session frames to the mounted agent module.
type agentDispatcher struct {
	catalog *catalog.Catalog
	mounts  *mount.Manager
	logger  *slog.Logger
}

// Dispatch hands a frame to the agent's mounted MessageHandler.
func (d *agentDispatcher) Dispatch(ctx context.Context, sess *session.Session, frame *session.ClientFrame) (<-chan *session.ServerFrame, error) {
	entry, ok := d.catalog.Get(sess.AgentSlug)
	if !ok {
		return nil, fmt.Errorf("agent %q not in catalog", sess.AgentSlug)
	}

	handler := entry.Handler()
	if handler == nil {
		// Mounted at handshake time normally; recover if the mount raced.
		if err := d.mounts.Mount(sess.AgentSlug); err != nil {
			return nil, err
		}
		handler = entry.Handler()
	}

	mh, ok := handler.(mount.MessageHandler)
	if !ok {
		return nil, fmt.Errorf("agent %q does not accept live sessions", sess.AgentSlug)
	}

	return mh.HandleMessage(ctx, sess.UserID, sess.SessionID, frame)
}
