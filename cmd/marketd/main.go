// Package main runs the marketplace daemon: the HTTP intent API, the
// periodic expired-auction sweep, and health/metrics endpoints.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stellar-nft-market/internal/auction"
	"stellar-nft-market/internal/bids"
	"stellar-nft-market/internal/horizon"
	"stellar-nft-market/internal/market"
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
	offmem "stellar-nft-market/internal/offchain/memory"
	"stellar-nft-market/internal/signing"
	"stellar-nft-market/internal/storage"
	chstore "stellar-nft-market/internal/storage/clickhouse"
	"stellar-nft-market/internal/storage/memory"
	"stellar-nft-market/internal/storage/migrations"
	pgstore "stellar-nft-market/internal/storage/postgres"
	"stellar-nft-market/internal/txassemble"
)

func main() {
	configPath := flag.String("config", os.Getenv("MARKETD_CONFIG"), "Path to YAML config file")
	horizonURL := flag.String("horizon-url", os.Getenv("HORIZON_URL"), "Ledger API endpoint")
	streamURL := flag.String("stream-url", os.Getenv("STREAM_URL"), "Ledger trade-stream WebSocket endpoint (empty disables)")
	offchainURL := flag.String("offchain-url", os.Getenv("OFFCHAIN_URL"), "Off-chain pinning service endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	escrowAccount := flag.String("escrow-account", os.Getenv("ESCROW_ACCOUNT"), "Escrow account for fixed-price purchases")
	signingSeed := flag.String("signing-seed", os.Getenv("SIGNING_SEED"), "Hex-encoded 32-byte signing seed")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address")
	sweepInterval := flag.Duration("sweep-interval", 0, "Expired-auction sweep interval (0 disables)")

	flag.Parse()

	logger := log.New(os.Stdout, "[marketd] ", log.LstdFlags|log.Lshortfile)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	applyFlag(&cfg.HorizonURL, *horizonURL)
	applyFlag(&cfg.StreamURL, *streamURL)
	applyFlag(&cfg.OffchainURL, *offchainURL)
	applyFlag(&cfg.PostgresDSN, *postgresDSN)
	applyFlag(&cfg.ClickhouseDSN, *clickhouseDSN)
	applyFlag(&cfg.EscrowAccount, *escrowAccount)
	applyFlag(&cfg.SigningSeedHex, *signingSeed)
	applyFlag(&cfg.ListenAddr, *listenAddr)
	if *useMemory {
		cfg.UseMemory = true
	}
	if *sweepInterval != 0 {
		cfg.SweepInterval = *sweepInterval
	}

	if cfg.HorizonURL == "" {
		logger.Fatal("--horizon-url is required")
	}
	if cfg.EscrowAccount == "" {
		logger.Fatal("--escrow-account is required")
	}
	if cfg.SigningSeedHex == "" {
		logger.Fatal("--signing-seed is required")
	}
	if !cfg.UseMemory && (cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	client := horizon.NewHTTPClient(cfg.HorizonURL)

	var pinStore offchain.Store
	if cfg.OffchainURL != "" {
		pinStore = offchain.NewHTTPStore(cfg.OffchainURL)
	} else {
		logger.Println("No off-chain endpoint configured, using in-memory pin store")
		pinStore = offmem.NewStore()
	}

	seed, err := hex.DecodeString(cfg.SigningSeedHex)
	if err != nil {
		logger.Fatalf("Decode signing seed: %v", err)
	}
	signer, err := signing.NewLocalSigner(seed, client)
	if err != nil {
		logger.Fatalf("Create signer: %v", err)
	}
	logger.Printf("Signing as %s", signer.Address())

	assembler := txassemble.NewAssembler(cfg.EscrowAccount)
	reconciler := bids.New(bids.Options{Client: client, Store: pinStore, Logger: logger})

	manager := auction.New(auction.Options{
		Client:    client,
		Bids:      reconciler,
		Assembler: assembler,
		Signer:    signer,
		Auctions:  stores.auctions,
		Sales:     stores.sales,
		Offchain:  pinStore,
		Logger:    logger,
	})

	var stream *horizon.TradeStream
	if cfg.StreamURL != "" {
		stream, err = horizon.NewTradeStream(ctx, cfg.StreamURL, nil)
		if err != nil {
			logger.Fatalf("Connect trade stream: %v", err)
		}
		defer stream.Close()
	}

	serviceOpts := market.Options{
		Client:      client,
		Assembler:   assembler,
		Signer:      signer,
		Bids:        reconciler,
		Auctions:    manager,
		Listings:    stores.listings,
		AuctionRows: stores.auctions,
		Sales:       stores.sales,
		Offchain:    pinStore,
		BidCacheTTL: cfg.BidCacheTTL,
		Logger:      logger,
	}
	if stream != nil {
		serviceOpts.Stream = stream
	}
	service := market.New(serviceOpts)

	if stream != nil {
		go service.WatchTrades(ctx, stream.Events())
	}

	api := newAPI(service, logger)

	mux := http.NewServeMux()
	api.register(mux)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Printf("Listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if cfg.SweepInterval > 0 {
		go runSweeper(ctx, manager, cfg.SweepInterval, logger)
	}
	go trackUptime(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, shutting down", sig)
	case err := <-errCh:
		logger.Printf("Fatal: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	logger.Println("Shutdown complete")
}

// trackUptime advances the uptime counter once per second.
func trackUptime(ctx context.Context) {
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
}

// runSweeper finalizes expired auctions on a fixed interval.
func runSweeper(ctx context.Context, manager *auction.Manager, interval time.Duration, logger *log.Logger) {
	logger.Printf("Starting auction sweeper (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			finalized, err := manager.Sweep(ctx)
			observability.DefaultMetrics.SweepDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				logger.Printf("Sweep error: %v", err)
				continue
			}
			observability.DefaultMetrics.LastSuccessfulSweep.SetToCurrentTime()
			if finalized > 0 {
				logger.Printf("Sweep finalized %d auctions", finalized)
			}
		}
	}
}

// allStores bundles the three storage backends.
type allStores struct {
	listings storage.ListingStore
	auctions storage.AuctionStore
	sales    storage.SaleArchive
}

// createStores wires the storage layer: PostgreSQL for the live index,
// ClickHouse for sale history, or everything in memory.
func createStores(ctx context.Context, cfg Config) (*allStores, func(), error) {
	if cfg.UseMemory {
		stores := &allStores{
			listings: memory.NewListingStore(),
			auctions: memory.NewAuctionStore(),
			sales:    memory.NewSaleArchive(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	stores := &allStores{
		listings: pgstore.NewListingStore(pool),
		auctions: pgstore.NewAuctionStore(pool),
		sales:    chstore.NewSaleArchive(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// applyFlag overrides dst when the flag was set.
func applyFlag(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
