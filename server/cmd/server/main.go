package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relojcausal/relojcausal/server/internal/alerts"
	"github.com/relojcausal/relojcausal/server/internal/api"
	"github.com/relojcausal/relojcausal/server/internal/auth"
	"github.com/relojcausal/relojcausal/server/internal/config"
	"github.com/relojcausal/relojcausal/server/internal/metrics"
	"github.com/relojcausal/relojcausal/server/internal/receiver"
	"github.com/relojcausal/relojcausal/server/internal/settings"
	"github.com/relojcausal/relojcausal/server/internal/store"
	"github.com/relojcausal/relojcausal/server/internal/summary"
	"github.com/relojcausal/relojcausal/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	accessLog := flag.Bool("access-log", false, "write an Apache combined access log to stderr")
	flag.Parse()

	if err := setupLogger(os.Stdout, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	slog.Info("relojcausal-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"store_capacity", cfg.Server.Store.Capacity,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.Key() == "" {
		slog.Warn("auth mode is apikey but the key environment variable is empty; write routes are open",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := newServer(cfg.Server)
	go srv.hub.Run(ctx)

	if *uiDir != "" {
		srv.router.PathPrefix("/").Handler(spaHandler(*uiDir))
		slog.Info("serving UI static files", "dir", *uiDir)
	}
	h := wrap(srv.router, cfg.Server.CORS, cfg.Server.Auth.EffectiveHeader(), *accessLog)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("relojcausal-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	srv.alerts.Wait()
}

// server bundles the wired components behind the HTTP listener.
type server struct {
	router  *mux.Router
	hub     *ws.Hub
	alerts  *alerts.Engine
	store   *store.Store
	metrics *metrics.Metrics
}

// newServer wires store, settings, metrics, alerts, ingest, REST API and the
// WebSocket hub from cfg.
func newServer(cfg config.ServerConfig) *server {
	st := store.New(cfg.Store.Capacity)
	rt := settings.New(cfg.Runtime)
	m := metrics.New()
	engine := alerts.New(cfg.Alerts, m)

	ingest := receiver.New(st, receiver.Options{
		Alerts:        engine,
		AlertsEnabled: rt.AlertsEnabled,
		Metrics:       m,
		History:       cfg.Store.History,
		Thresholds:    summary.DisplayThresholds(cfg.Query),
	})

	a := api.New(api.Deps{
		Store:      st,
		Settings:   rt,
		Alerts:     engine,
		Metrics:    m,
		Ingest:     ingest,
		RequireKey: auth.RequireKey(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key()),
		Retention:  cfg.Store,
		Query:      cfg.Query,
	})
	hub := ws.New(a.Dashboard, cfg.StreamInterval, cfg.CORS.AllowedOrigins, m)

	r := a.Router()
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	r.Handle("/ws/stream", hub)

	return &server{router: r, hub: hub, alerts: engine, store: st, metrics: m}
}

// wrap applies CORS, panic recovery and the optional access log.
func wrap(h http.Handler, cors config.CORSConfig, keyHeader string, accessLog bool) http.Handler {
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if len(cors.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cors.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", keyHeader}),
		)(h)
	}
	if accessLog {
		h = handlers.CombinedLoggingHandler(os.Stderr, h)
	}
	return h
}

// spaHandler serves files from dir, falling back to index.html for unknown
// paths so client-side routes resolve.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func setupLogger(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
