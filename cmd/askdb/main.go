// Command askdb serves the conversational retail-database assistant, either
// as an HTTP API or as an MCP stdio server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/config"
	"github.com/merchantry/askdb/corpus"
	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/httpapi"
	"github.com/merchantry/askdb/llm"
	"github.com/merchantry/askdb/mcpserver"
	"github.com/merchantry/askdb/metrics"
	"github.com/merchantry/askdb/nlsql"
	"github.com/merchantry/askdb/orchestrator"
	"github.com/merchantry/askdb/retrieval"
	"github.com/merchantry/askdb/session"
	"github.com/merchantry/askdb/sqlagent"
	"github.com/merchantry/askdb/vectordb"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	if err := run(*configPath, *mcpMode); err != nil {
		logger.Errorf("askdb: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(configPath string, mcpMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return err
	}

	ctx := context.Background()
	index, err := vectordb.New(ctx, cfg.VectorDB, embedder)
	if err != nil {
		return err
	}

	generator, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}

	ret := retrieval.NewAdapter(index, generator, corpus.NewSource(db), retrieval.Options{
		TopK:             cfg.Chat.TopK,
		MaxContextTokens: cfg.Chat.MaxContextTokens,
		CacheSize:        cfg.Chat.CacheSize,
		CacheTTL:         time.Duration(cfg.Chat.CacheTTLSeconds) * time.Second,
	})

	pool := sqlagent.NewPool(nlsql.NewAgent(db, generator), cfg.Chat.SQLWorkers)
	defer pool.Close()

	sessions := session.NewStore(cfg.SessionTimeout(), cfg.Session.MaxHistory)
	orch := orchestrator.New(sessions, ret, pool, orchestrator.Options{
		HybridTimeout: cfg.HybridTimeout(),
		SweepEvery:    cfg.Session.SweepEvery,
	})

	if mcpMode {
		logger.Infof("serving MCP on stdio (version %s)", version)
		return mcpserver.New(orch, version).ServeStdio()
	}
	return serveHTTP(cfg, orch)
}

func serveHTTP(cfg *config.Config, orch *orchestrator.Orchestrator) error {
	metrics.Register()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	httpapi.NewHandler(orch).Register(e)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		logger.Infof("metrics listening on %s", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Infof("askdb %s listening on %s", version, addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return metricsSrv.Shutdown(shutdownCtx)
}
