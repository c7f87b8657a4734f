// ABOUTME: Gateway orchestrator that wires the bus, store, agent loop, and channels.
// ABOUTME: Manages the HTTP server, scheduler, and Tailscale listener lifecycle.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/warrenlabs/warren-gateway/internal/agent"
	"github.com/warrenlabs/warren-gateway/internal/bus"
	"github.com/warrenlabs/warren-gateway/internal/channel"
	"github.com/warrenlabs/warren-gateway/internal/config"
	"github.com/warrenlabs/warren-gateway/internal/cron"
	"github.com/warrenlabs/warren-gateway/internal/provider"
	"github.com/warrenlabs/warren-gateway/internal/relay"
	"github.com/warrenlabs/warren-gateway/internal/store"
)

// Gateway orchestrates the warren-gateway server components. It owns the
// message bus, the persistent store, the agent loop, the channel manager, and
// the HTTP server that carries health checks, the reminder API, and the relay
// channel's endpoint.
type Gateway struct {
	config      *config.Config
	bus         *bus.MessageBus
	store       store.Store
	channels    *channel.Manager
	relay       *relay.Channel
	agentLoop   *agent.Loop
	scheduler   *cron.Scheduler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// cancelWorkers stops the agent loop and the outbound routing loop
	cancelWorkers context.CancelFunc

	// loopDone is closed when the agent loop goroutine exits
	loopDone chan struct{}
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WARREN_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	return store.NewSQLiteStore(dbPath)
}

// New creates a new Gateway instance with the given configuration. The
// context is used for provider client construction only; Run takes the
// lifecycle context.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	b := bus.New(logger)

	prov, err := provider.ForModel(ctx, cfg.Agent.Model, cfg.Providers, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("configuring provider: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		bus:       b,
		store:     s,
		channels:  channel.NewManager(b.Outbound(), logger),
		agentLoop: agent.NewLoop(cfg.Agent, b.Inbound(), b, s, prov, logger),
		scheduler: cron.NewScheduler(s, b, cron.DefaultPollInterval, logger),
		logger:    logger.With("component", "gateway"),
		serverID:  generateServerID(),
		loopDone:  make(chan struct{}),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Reminder API
	mux.HandleFunc("/api/reminders", gw.handleReminders)
	mux.HandleFunc("/api/reminders/", gw.handleReminderByID)

	if cfg.Channels.HTTP.Enabled {
		gw.relay = relay.New(cfg.Channels.HTTP, b, logger)
		if err := gw.channels.Register(gw.relay); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("registering http relay channel: %w", err)
		}
		gw.relay.RegisterRoutes(mux)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// startWorkers launches the agent loop, the scheduler, and the channels. The
// returned cancel function stops all of them.
func (g *Gateway) startWorkers(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	g.cancelWorkers = cancel

	go func() {
		g.agentLoop.Run(workerCtx)
		close(g.loopDone)
	}()

	if err := g.scheduler.Start(workerCtx); err != nil {
		cancel()
		return fmt.Errorf("starting scheduler: %w", err)
	}

	if err := g.channels.StartAll(workerCtx); err != nil {
		cancel()
		return fmt.Errorf("starting channels: %w", err)
	}
	return nil
}

// setupTCPListener creates a standard TCP listener for the HTTP server.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP addr: %w", err)
	}
	g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer runs the HTTP server on the listener and reports errors on the channel.
func (g *Gateway) startServer(httpLn net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts all gateway components and blocks until the context is canceled
// or a server fails. It always performs a graceful shutdown before returning.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.startWorkers(ctx); err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	httpListener, err := g.setupListener(ctx)
	if err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	errCh := g.startServer(httpListener)
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

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "warren-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns an HTTP listener on it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway components and releases resources.
// The order matters: the HTTP server stops accepting first, then channels
// stop delivering, then the workers and the bus wind down, then the store
// closes.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.channels.StopAll(ctx)
	g.scheduler.Stop()

	workersStarted := g.cancelWorkers != nil
	if workersStarted {
		g.cancelWorkers()
	}
	g.bus.Close()

	if workersStarted {
		select {
		case <-g.loopDone:
		case <-ctx.Done():
			g.logger.Warn("agent loop did not stop before shutdown deadline")
		}
	}
	g.channels.Wait()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one channel is registered.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	names := g.channels.Names()
	if len(names) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no channels registered"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d channels)", len(names))
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("warren-gateway-%d", time.Now().UnixNano()%1000000)
}
