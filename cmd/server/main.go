// Package main runs the guarded swap service: custody intake plus
// guarded execution over an in-process AMM pool or a remote venue,
// with receipt persistence, a settlement stream, and Prometheus
// metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/executor"
	"token-swap-guard/internal/ledger"
	ledgermem "token-swap-guard/internal/ledger/memory"
	ledgerpg "token-swap-guard/internal/ledger/postgres"
	"token-swap-guard/internal/observability"
	"token-swap-guard/internal/storage"
	chstore "token-swap-guard/internal/storage/clickhouse"
	"token-swap-guard/internal/storage/memory"
	"token-swap-guard/internal/storage/migrations"
	pgstore "token-swap-guard/internal/storage/postgres"
	"token-swap-guard/internal/stream"
	"token-swap-guard/internal/venue"
	"token-swap-guard/internal/venue/amm"
	venuerpc "token-swap-guard/internal/venue/rpc"
)

// Server holds the wired components and request counters.
type Server struct {
	exec   *executor.Executor
	venue  venue.Venue
	route  domain.Route
	hub    *stream.Hub
	logger *log.Logger

	mu             sync.Mutex
	started        time.Time
	swapsSettled   int
	swapsAborted   int
	lastSettlement time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and ledger")
	venueEndpoint := flag.String("venue-endpoint", os.Getenv("VENUE_ENDPOINT"), "Remote venue JSON-RPC endpoint (empty runs the in-process pool)")
	inputAsset := flag.String("input-asset", envOr("INPUT_ASSET", "asset-a"), "Input asset of the served pair")
	outputAsset := flag.String("output-asset", envOr("OUTPUT_ASSET", "asset-b"), "Output asset of the served pair")
	caller := flag.String("caller", envOr("SWAP_CALLER", "caller"), "Party swaps are executed for")
	executorParty := flag.String("executor-party", envOr("EXECUTOR_PARTY", "executor"), "Executing custody account")
	poolParty := flag.String("pool-party", envOr("POOL_PARTY", "pool"), "In-process pool custody account")
	feeBps := flag.Uint64("fee-bps", amm.DefaultFeeBps, "In-process pool fee in basis points")
	expiryTolerance := flag.Duration("expiry-tolerance", 0, "Expiry bound added to each invocation's start time")
	seedReserve := flag.Uint64("seed-reserve", 1_000_000, "Initial reserve per pool side (0 disables seeding)")
	seedBalance := flag.Uint64("seed-balance", 100_000, "Initial caller balance and pre-authorization (0 disables seeding)")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *inputAsset == *outputAsset {
		logger.Fatal("--input-asset and --output-asset must differ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger and stores
	ldg, receipts, points, cleanup, err := createBackends(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create backends: %v", err)
	}
	defer cleanup()

	in, out := domain.AssetID(*inputAsset), domain.AssetID(*outputAsset)

	// Venue: remote adapter or in-process pool
	var v venue.Venue
	venueParty := domain.PartyID(*poolParty)
	if *venueEndpoint != "" {
		// A remote venue addresses assets and parties by their real
		// base58 identifiers, so validate them up front.
		if _, err := domain.ParseAssetID(*inputAsset); err != nil {
			logger.Fatalf("Remote venue requires a valid input asset: %v", err)
		}
		if _, err := domain.ParseAssetID(*outputAsset); err != nil {
			logger.Fatalf("Remote venue requires a valid output asset: %v", err)
		}
		if _, err := domain.ParsePartyID(*caller); err != nil {
			logger.Fatalf("Remote venue requires a valid caller: %v", err)
		}
		if !domain.IsOnCurve(*caller) {
			logger.Printf("Caller %s is off-curve (program-derived account)", *caller)
		}
		v = venuerpc.NewClient(*venueEndpoint)
		logger.Printf("Using remote venue at %s", *venueEndpoint)
	} else {
		pool, err := amm.New(amm.Options{
			Party:  venueParty,
			AssetA: in,
			AssetB: out,
			FeeBps: *feeBps,
			Ledger: ldg,
		})
		if err != nil {
			logger.Fatalf("Failed to create pool: %v", err)
		}
		v = pool
		logger.Printf("Using in-process pool %s (%d bps)", venueParty, *feeBps)
	}

	if err := seedLedger(ctx, ldg, domain.PartyID(*caller), domain.PartyID(*executorParty), venueParty,
		in, out, *seedBalance, *seedReserve, *venueEndpoint == ""); err != nil {
		logger.Fatalf("Failed to seed ledger: %v", err)
	}

	hub := stream.NewHub(logger)
	defer hub.Close()

	exec, err := executor.New(executor.Options{
		Party:           domain.PartyID(*executorParty),
		VenueParty:      venueParty,
		InputAsset:      in,
		OutputAsset:     out,
		Caller:          domain.PartyID(*caller),
		Ledger:          ldg,
		Venue:           v,
		Receipts:        receipts,
		Points:          points,
		Stream:          hub,
		ExpiryTolerance: *expiryTolerance,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create executor: %v", err)
	}

	server := &Server{
		exec:    exec,
		venue:   v,
		route:   domain.NewDirectRoute(in, out),
		hub:     hub,
		logger:  logger,
		started: time.Now(),
	}

	httpServer := &http.Server{Addr: *listenAddr, Handler: server.routes()}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	// Uptime counter, ticked once a second until shutdown.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.DefaultMetrics.UptimeSeconds.Inc()
			}
		}
	}()

	logger.Printf("Serving %s -> %s swaps on %s", in, out, *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createBackends wires the ledger and stores: everything in memory, or
// the ledger and receipts on PostgreSQL with settlement history on
// ClickHouse. An empty ClickHouse DSN keeps settlement history in
// memory.
func createBackends(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (ledger.TxLedger, storage.ReceiptStore, storage.SettlementPointStore, func(), error) {
	if useMemory {
		return ledgermem.NewLedger(), memory.NewReceiptStore(), memory.NewSettlementPointStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	var points storage.SettlementPointStore = memory.NewSettlementPointStore()
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		points = chstore.NewSettlementPointStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return ledgerpg.NewLedger(pool), pgstore.NewReceiptStore(pool), points, cleanup, nil
}

// seedLedger funds the caller, raises its pre-authorization for the
// executor, and fills the pool reserves when the in-process venue is
// used. Skipped for already-funded accounts via the zero flags.
func seedLedger(ctx context.Context, ldg ledger.TxLedger, caller, executorParty, poolParty domain.PartyID,
	in, out domain.AssetID, balance, reserve uint64, localPool bool) error {
	if balance > 0 {
		if err := ldg.Mint(ctx, caller, in, balance); err != nil {
			return fmt.Errorf("fund caller: %w", err)
		}
		if err := ldg.Authorize(ctx, caller, executorParty, in, balance); err != nil {
			return fmt.Errorf("pre-authorize executor: %w", err)
		}
	}
	if localPool && reserve > 0 {
		if err := ldg.Mint(ctx, poolParty, in, reserve); err != nil {
			return fmt.Errorf("fund pool input reserve: %w", err)
		}
		if err := ldg.Mint(ctx, poolParty, out, reserve); err != nil {
			return fmt.Errorf("fund pool output reserve: %w", err)
		}
	}
	return nil
}

// routes builds the HTTP surface.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/swap", s.handleSwap)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/ws", s.hub)

	return mux
}

// SwapRequest is the JSON body of POST /swap. MinimumAmountOut is
// forwarded to the venue exactly as received; omitting it means zero,
// which disables the guard.
type SwapRequest struct {
	AmountIn         uint64 `json:"amount_in"`
	MinimumAmountOut uint64 `json:"minimum_amount_out"`
}

// SwapResponse is the JSON response of POST /swap.
type SwapResponse struct {
	Status    string `json:"status"`
	AmountOut uint64 `json:"amount_out,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SwapResponse{Status: "ABORTED", Reason: domain.ReasonInvalidRequest, Error: err.Error()})
		return
	}

	outcome, err := s.exec.Execute(r.Context(), req.AmountIn, req.MinimumAmountOut)
	if err != nil {
		s.mu.Lock()
		s.swapsAborted++
		s.mu.Unlock()
		writeJSON(w, failureStatus(err), SwapResponse{
			Status: "ABORTED",
			Reason: domain.FailureReason(err),
			Error:  err.Error(),
		})
		return
	}

	s.mu.Lock()
	s.swapsSettled++
	s.lastSettlement = time.Now()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, SwapResponse{Status: "SETTLED", AmountOut: outcome.AmountOut})
}

// QuoteResponse is the JSON response of GET /quote.
type QuoteResponse struct {
	InputAsset  string `json:"input_asset"`
	OutputAsset string `json:"output_asset"`
	AmountIn    uint64 `json:"amount_in"`
	AmountOut   uint64 `json:"amount_out"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amountIn, err := strconv.ParseUint(r.URL.Query().Get("amount_in"), 10, 64)
	if err != nil || amountIn == 0 {
		http.Error(w, "amount_in must be a positive integer", http.StatusBadRequest)
		observability.RecordQuote("error")
		return
	}

	amountOut, err := s.venue.Quote(r.Context(), s.route, amountIn)
	if err != nil {
		observability.RecordQuote("error")
		http.Error(w, err.Error(), failureStatus(err))
		return
	}
	observability.RecordQuote("ok")

	writeJSON(w, http.StatusOK, QuoteResponse{
		InputAsset:  string(s.route.Input()),
		OutputAsset: string(s.route.Output()),
		AmountIn:    amountIn,
		AmountOut:   amountOut,
	})
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	SwapsSettled   int       `json:"swaps_settled"`
	SwapsAborted   int       `json:"swaps_aborted"`
	LastSettlement time.Time `json:"last_settlement,omitempty"`
	Subscribers    int       `json:"stream_subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).String(),
		SwapsSettled:   s.swapsSettled,
		SwapsAborted:   s.swapsAborted,
		LastSettlement: s.lastSettlement,
		Subscribers:    s.hub.Subscribers(),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// failureStatus maps the failure taxonomy onto HTTP status codes.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTransferDenied),
		errors.Is(err, domain.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRouteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
