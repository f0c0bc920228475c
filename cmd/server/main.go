package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/localforge/ollamabridge/internal/admin"
	proxyConfig "github.com/localforge/ollamabridge/internal/config"
	"github.com/localforge/ollamabridge/internal/metrics"
	"github.com/localforge/ollamabridge/internal/proxy"
	"github.com/localforge/ollamabridge/internal/store"
	"github.com/localforge/ollamabridge/internal/upstream/openaicompat"
	"github.com/localforge/ollamabridge/pkg/keygen"
)

func main() {
	logger := log.New(os.Stdout, "[ollamabridge] ", log.LstdFlags|log.Lshortfile)

	configPath := flag.String("config", os.Getenv("OLLAMABRIDGE_CONFIG"), "path to optional YAML config file")
	flag.Parse()

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err == nil {
		logger.Println("Loaded environment from .env")
	}

	logger.Println("Starting ollamabridge...")

	cfg, err := proxyConfig.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Printf("Listen port: %d", cfg.ListenPort)
	logger.Printf("Upstream: %s:%d", cfg.UpstreamHost, cfg.UpstreamPort)

	// Optional per-request log file (truncate on each run).
	var reqLogger *log.Logger
	if cfg.RequestLog != "" {
		reqFile, err := os.Create(cfg.RequestLog)
		if err != nil {
			logger.Fatalf("Failed to create request log %s: %v", cfg.RequestLog, err)
		}
		defer reqFile.Close()
		reqLogger = log.New(reqFile, "", log.LstdFlags)
		logger.Printf("Request log: %s", cfg.RequestLog)
	}

	var st *store.Store
	if cfg.StorePath != "" {
		st, err = store.New(cfg.StorePath)
		if err != nil {
			logger.Fatalf("Failed to open request store: %v", err)
		}
		defer st.Close()
		logger.Printf("Request store: %s", cfg.StorePath)

		retention := store.NewRetention(st, cfg.RetentionSchedule, cfg.RetentionDays, logger)
		if err := retention.Start(); err != nil {
			logger.Fatalf("Failed to start retention: %v", err)
		}
		defer retention.Stop()
	}

	m := metrics.New()
	client := openaicompat.NewClient(cfg.UpstreamHost, cfg.UpstreamPort, cfg.UpstreamDialTimeout)

	srv := proxy.NewServer(cfg.ListenPort, client, logger, proxy.Options{
		RequestLogger: reqLogger,
		Metrics:       m,
		Store:         st,
		MaxConns:      cfg.MaxConns,
	})
	if err := srv.Start(); err != nil {
		logger.Fatalf("Failed to start proxy: %v", err)
	}

	var adminSrv *http.Server
	if cfg.AdminPort > 0 {
		token := cfg.AdminToken
		if token == "" {
			token, err = keygen.GenerateToken()
			if err != nil {
				logger.Fatalf("Failed to generate admin token: %v", err)
			}
			logger.Printf("Admin token (generated): %s", token)
		}

		handler := admin.NewHandler(func() string { return srv.State().String() }, client.Addr(), st, m, token, logger)
		adminSrv = &http.Server{
			Addr:         net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.AdminPort)),
			Handler:      handler.Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Printf("Admin surface listening on http://%s", adminSrv.Addr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Admin server failed: %v", err)
			}
		}()
	}

	logger.Println("Routes:")
	logger.Println("  GET  /, /api, /api/   - Liveness text")
	logger.Println("  GET  /api/tags        - Model list")
	logger.Println("  POST /api/chat        - Chat translation")
	logger.Println("  POST /api/generate    - Generate translation")
	logger.Println("Press Ctrl+C to stop...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down...")
	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Printf("Admin server forced to shutdown: %v", err)
		}
		cancel()
	}
	if err := srv.Stop(); err != nil {
		logger.Printf("Proxy shutdown: %v", err)
	}
	logger.Println("Stopped gracefully")
}
