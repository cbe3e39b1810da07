package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ipsguard/engine"
	"ipsguard/geo"
	"ipsguard/logger"
	"ipsguard/manager"
	"ipsguard/middleware"
	"ipsguard/notifier"
	"ipsguard/proxy"
	"ipsguard/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// idleWindows is how many windows an identifier may stay silent before its
// state is swept.
const idleWindows = 10

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "ipsguard"})

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.Error("Invalid engine config", "err", err)
		os.Exit(1)
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		logger.Error("Failed to start engine", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting ipsguard", "listen_port", cfg.ListenPort, "upstream", cfg.UpstreamAddr,
		"window", engCfg.Window, "ban_threshold", engCfg.BanThreshold)

	activeStore := openStore(cfg)
	locator := geo.NewLocator(cfg.GeoIPDBPath)
	defer locator.Close()

	// Ban subscribers: log, mirror into the block list, alert. The mirror
	// also re-blocks flagged identifiers from Observe once their block expires.
	banTTL := time.Duration(cfg.BanTTL)
	eng.Subscribe(func(b engine.BanEvent) {
		logger.Warn("Identifier banned", "identifier", b.Identifier, "score", b.Score, "rules", b.Rules)
	})
	mirror := &middleware.BanMirror{Store: activeStore, TTL: banTTL}
	eng.Subscribe(mirror.OnBan)
	if cfg.WebhookURL != "" {
		wh := notifier.NewWebhook(cfg.WebhookURL, cfg.WebhookPerMin, locator)
		eng.Subscribe(wh.OnBan)
		logger.Info("Webhook alerts enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepLoop(ctx, eng, time.Duration(cfg.SweepInterval), idleWindows*engCfg.Window)

	p, err := proxy.NewReverseProxy(cfg.UpstreamAddr)
	if err != nil {
		logger.Error("Failed to initialize proxy", "err", err)
		os.Exit(1)
	}

	// Security pipeline (outermost first): headers, enforcement, scoring, upstream.
	stack := middleware.SecurityHeaders(
		middleware.Enforce(activeStore, cfg.TrustForwarded,
			middleware.Observe(eng, middleware.ObserveOptions{
				TrustForwarded: cfg.TrustForwarded,
				OnAssess:       mirror.OnAssess,
			}, p),
		),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	mgmtMux := http.NewServeMux()
	manager.NewManagementAPI(activeStore, eng, locator).ServeHTTP(mgmtMux)

	servers := []*http.Server{
		newServer(cfg.ListenPort, stack),
		newServer(cfg.MetricsPort, metricsMux),
		newServer(cfg.ManagementPort, mgmtMux),
	}
	names := []string{"Proxy engine", "Metrics engine", "Management API"}
	for i, srv := range servers {
		go func(name string, s *http.Server) {
			logger.Info(name+" active", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(name+" failed", "addr", s.Addr, "err", err)
				os.Exit(1)
			}
		}(names[i], srv)
	}

	// Graceful shutdown logic
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	<-done
	logger.Info("ipsguard stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			s.Shutdown(shutdownCtx)
		}(srv)
	}
	wg.Wait()

	logger.Info("All servers stopped gracefully", "flagged", len(eng.Flagged()))
}

// openStore prefers Redis when configured and reachable, else the local store.
func openStore(cfg *Config) store.Storer {
	if cfg.RedisAddr != "" {
		rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err := rs.Ping(); err != nil {
			logger.Warn("Redis unreachable, using in-memory block list", "addr", cfg.RedisAddr, "err", err)
		} else {
			logger.Info("Distributed state initialized (Redis)", "addr", cfg.RedisAddr)
			return rs
		}
	}
	logger.Info("In-memory state initialized (Local fallback)")
	return store.NewLocalStore()
}

func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func sweepLoop(ctx context.Context, eng *engine.Engine, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := eng.Sweep(idle); n > 0 {
				logger.Debug("Swept idle identifiers", "dropped", n, "tracked", eng.Tracked())
			}
		case <-ctx.Done():
			return
		}
	}
}
