// Package main provides a standalone expired-auction finalizer. It
// sweeps ACTIVE auctions past their deadline, settles winners, and
// exits (or keeps sweeping with --interval). Useful as a cron job next
// to a marketd that runs with sweeping disabled.
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
	"stellar-nft-market/internal/observability"
	"stellar-nft-market/internal/offchain"
	"stellar-nft-market/internal/signing"
	chstore "stellar-nft-market/internal/storage/clickhouse"
	"stellar-nft-market/internal/storage/migrations"
	pgstore "stellar-nft-market/internal/storage/postgres"
	"stellar-nft-market/internal/txassemble"
)

func main() {
	horizonURL := flag.String("horizon-url", os.Getenv("HORIZON_URL"), "Ledger API endpoint")
	offchainURL := flag.String("offchain-url", os.Getenv("OFFCHAIN_URL"), "Off-chain pinning service endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	escrowAccount := flag.String("escrow-account", os.Getenv("ESCROW_ACCOUNT"), "Escrow account for settlements")
	signingSeed := flag.String("signing-seed", os.Getenv("SIGNING_SEED"), "Hex-encoded 32-byte signing seed")
	interval := flag.Duration("interval", 0, "Sweep interval (0 runs a single sweep and exits)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty disables)")
	flag.Parse()

	logger := log.New(os.Stdout, "[finalizer] ", log.LstdFlags|log.Lshortfile)

	if *horizonURL == "" {
		logger.Fatal("--horizon-url is required")
	}
	if *postgresDSN == "" || *clickhouseDSN == "" {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required")
	}
	if *escrowAccount == "" {
		logger.Fatal("--escrow-account is required")
	}
	if *signingSeed == "" {
		logger.Fatal("--signing-seed is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Migrate postgres: %v", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("Migrate clickhouse: %v", err)
	}
	defer chConn.Close()

	client := horizon.NewHTTPClient(*horizonURL)

	var pinStore offchain.Store
	if *offchainURL != "" {
		pinStore = offchain.NewHTTPStore(*offchainURL)
	}

	seed, err := hex.DecodeString(*signingSeed)
	if err != nil {
		logger.Fatalf("Decode signing seed: %v", err)
	}
	signer, err := signing.NewLocalSigner(seed, client)
	if err != nil {
		logger.Fatalf("Create signer: %v", err)
	}
	logger.Printf("Signing as %s", signer.Address())

	manager := auction.New(auction.Options{
		Client:    client,
		Bids:      bids.New(bids.Options{Client: client, Store: pinStore, Logger: logger}),
		Assembler: txassemble.NewAssembler(*escrowAccount),
		Signer:    signer,
		Auctions:  pgstore.NewAuctionStore(pool),
		Sales:     chstore.NewSaleArchive(chConn),
		Offchain:  pinStore,
		Logger:    logger,
	})

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	if *interval <= 0 {
		if err := sweepOnce(ctx, manager, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger.Printf("Sweeping every %v", *interval)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Println("Stopped")
			return
		case <-ticker.C:
			if err := sweepOnce(ctx, manager, logger); err != nil {
				logger.Printf("Sweep error: %v", err)
			}
		}
	}
}

func sweepOnce(ctx context.Context, manager *auction.Manager, logger *log.Logger) error {
	start := time.Now()
	finalized, err := manager.Sweep(ctx)
	observability.DefaultMetrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	observability.DefaultMetrics.LastSuccessfulSweep.SetToCurrentTime()
	logger.Printf("Sweep finalized %d auctions in %v", finalized, time.Since(start))
	return nil
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Printf("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}
