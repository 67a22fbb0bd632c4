// Package main runs the token safety engine as an HTTP service:
// - REST API for composite, honeypot and historical verdict lookups
// - optional launch feed that analyzes new tokens as they appear
// - optional PostgreSQL / ClickHouse persistence of every verdict
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"solana-safety-engine/internal/aggregator"
	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/config"
	"solana-safety-engine/internal/detector"
	"solana-safety-engine/internal/domain"
	"solana-safety-engine/internal/feed"
	"solana-safety-engine/internal/observability"
	"solana-safety-engine/internal/storage"
	chstore "solana-safety-engine/internal/storage/clickhouse"
	"solana-safety-engine/internal/storage/memory"
	"solana-safety-engine/internal/storage/migrations"
	pgstore "solana-safety-engine/internal/storage/postgres"
)

// Server wires the aggregator, verdict stores and optional launch feed
// behind the HTTP API.
type Server struct {
	cfg        *config.Config
	aggregator *aggregator.Aggregator
	verdicts   storage.VerdictStore
	events     *chstore.VerdictEventStore
	listener   *feed.Listener
	logger     *log.Logger

	started  time.Time
	analyzed atomic.Int64
}

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	logger.Printf("RPC endpoint: %s (api key %s)", cfg.RPCURL, cfg.MaskedRPCKey())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := chain.Instrument(chain.NewClient(cfg.RPCURL,
		chain.WithAPIKey(cfg.RPCAPIKey),
		chain.WithTimeout(cfg.RPCTimeout),
		chain.WithMaxRetries(cfg.RPCRetries),
		chain.WithQuoteURL(cfg.QuoteURL),
		chain.WithMarketURL(cfg.MarketURL),
	))

	verdicts, events, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		cfg:        cfg,
		aggregator: newAggregator(provider, cfg, logger),
		verdicts:   verdicts,
		events:     events,
		logger:     logger,
		started:    time.Now(),
	}

	if cfg.FeedEnabled {
		listener := feed.NewListener(feed.DefaultConfig(cfg.WSURL), logger)
		if err := listener.Start(ctx); err != nil {
			logger.Fatalf("Start launch feed: %v", err)
		}
		server.listener = listener
		go server.runFeed(ctx)
		logger.Printf("Launch feed connected to %s", cfg.WSURL)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP API listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Println("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	if server.listener != nil {
		server.listener.Close()
	}
	logger.Println("Shutdown complete")
}

// newAggregator builds detectors with config-derived tuning.
func newAggregator(provider chain.Provider, cfg *config.Config, logger *log.Logger) *aggregator.Aggregator {
	hpCfg := detector.DefaultHoneypotConfig()
	hpCfg.ProbeLamports = cfg.ProbeLamports
	hpCfg.BuyTaxShare = cfg.BuyTaxShare
	hpCfg.RoundTripShareCap = cfg.RoundTripShareCap
	hpCfg.LPLockLiquidityUSD = cfg.LPLockLiquidityUSD
	hpCfg.CacheTTL = cfg.HoneypotTTL

	bundleCfg := detector.DefaultBundleConfig()
	bundleCfg.CacheTTL = cfg.BundleTTL

	holderCfg := detector.DefaultHolderConfig()
	holderCfg.CacheTTL = cfg.HoldersTTL

	washCfg := detector.DefaultWashTradeConfig()
	washCfg.CacheTTL = cfg.WashTTL

	sniperCfg := detector.DefaultSniperConfig()
	sniperCfg.CacheTTL = cfg.SniperTTL

	aggCfg := aggregator.DefaultConfig()
	aggCfg.BatchSize = cfg.BatchSize
	aggCfg.BatchDelay = cfg.BatchDelay

	return aggregator.New(aggregator.Options{
		Honeypot:  detector.NewHoneypotDetector(provider, hpCfg, logger),
		Bundle:    detector.NewBundleDetector(provider, bundleCfg, logger),
		Holders:   detector.NewHolderAnalyzer(provider, holderCfg, logger),
		WashTrade: detector.NewWashTradeDetector(provider, washCfg, logger),
		Sniper:    detector.NewSniperDetector(provider, sniperCfg, logger),
		Config:    aggCfg,
		Logger:    logger,
	})
}

// createStores picks the verdict store backend from configuration. An empty
// POSTGRES_DSN falls back to in-memory storage; ClickHouse is optional and
// only records analytics events.
func createStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.VerdictStore, *chstore.VerdictEventStore, func(), error) {
	cleanup := func() {}

	var verdicts storage.VerdictStore
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		verdicts = pgstore.NewVerdictStore(pool)
		cleanup = pool.Close
		logger.Println("Verdict store: postgres")
	} else {
		verdicts = memory.NewVerdictStore()
		logger.Println("Verdict store: in-memory")
	}

	var events *chstore.VerdictEventStore
	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			cleanup()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		events = chstore.NewVerdictEventStore(conn)
		pgCleanup := cleanup
		cleanup = func() {
			conn.Close()
			pgCleanup()
		}
		logger.Println("Event store: clickhouse")
	}

	return verdicts, events, cleanup, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /api/v1/analyze/{token}", s.handleAnalyze)
	mux.HandleFunc("POST /api/v1/analyze", s.handleAnalyzeBatch)
	mux.HandleFunc("GET /api/v1/honeypot/{token}", s.handleHoneypot)
	mux.HandleFunc("GET /api/v1/verdicts/recent", s.handleRecentVerdicts)
	mux.HandleFunc("GET /api/v1/verdicts/{token}", s.handleVerdictHistory)

	return mux
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Analyzed    int64  `json:"analyzed"`
	FeedEnabled bool   `json:"feed_enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Analyzed:    s.analyzed.Load(),
		FeedEnabled: s.cfg.FeedEnabled,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	verdict, err := s.analyzeAndStore(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, chain.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// BatchRequest is the JSON body for POST /api/v1/analyze.
type BatchRequest struct {
	Tokens []string `json:"tokens"`
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Tokens) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("tokens list is empty"))
		return
	}

	results := s.aggregator.AnalyzeBatch(r.Context(), req.Tokens)
	for i := range results {
		if results[i].Verdict != nil {
			s.analyzed.Add(1)
			s.persist(r.Context(), results[i].Verdict)
		}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHoneypot(w http.ResponseWriter, r *http.Request) {
	verdict, err := s.aggregator.Honeypot().Detect(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, chain.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleRecentVerdicts(w http.ResponseWriter, r *http.Request) {
	verdicts, err := s.verdicts.GetRecent(r.Context(), queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, verdicts)
}

func (s *Server) handleVerdictHistory(w http.ResponseWriter, r *http.Request) {
	verdicts, err := s.verdicts.GetByToken(r.Context(), r.PathValue("token"), queryLimit(r, 20))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(verdicts) == 0 {
		writeError(w, http.StatusNotFound, storage.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, verdicts)
}

// runFeed analyzes every token the launch feed emits.
func (s *Server) runFeed(ctx context.Context) {
	for event := range s.listener.Events() {
		verdict, err := s.analyzeAndStore(ctx, event.Token)
		if err != nil {
			s.logger.Printf("Feed analysis of %s failed: %v", event.Token, err)
			continue
		}
		s.logger.Printf("Feed: %s scored %d [%s] (slot %d)",
			event.Token, verdict.CombinedRiskScore, verdict.OverallRisk, event.Slot)
	}
}

func (s *Server) analyzeAndStore(ctx context.Context, token string) (*domain.CompositeVerdict, error) {
	verdict, err := s.aggregator.AnalyzeFull(ctx, token)
	if err != nil {
		return nil, err
	}
	s.analyzed.Add(1)
	s.persist(ctx, verdict)
	return verdict, nil
}

// persist records a verdict in the configured stores. Storage failures are
// logged, never surfaced to the caller: the verdict itself is already good.
func (s *Server) persist(ctx context.Context, v *domain.CompositeVerdict) {
	if err := s.verdicts.Insert(ctx, v); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		observability.RecordStoreError("verdicts", "insert")
		s.logger.Printf("Store verdict for %s: %v", v.Token, err)
	}
	if s.events != nil {
		if err := s.events.Insert(ctx, v); err != nil {
			observability.RecordStoreError("events", "insert")
			s.logger.Printf("Store verdict event for %s: %v", v.Token, err)
		}
	}
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
