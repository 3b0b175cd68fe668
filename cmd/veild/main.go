// Copyright 2025 Veilchain Protocol
//
// veild composition root: wires configuration, the range-proof
// prover, the persisted block store, the chain state engine, escrow,
// mempool and the migrated wallet store into one running node. No
// wallet account loop is started.
// Trimmed, in the teacher's original main.go's spirit, down to the
// pieces spec.md actually describes — no ABCI application, no
// CometBFT consensus reactor, no Firestore or Accumulate bridging.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/chain"
	"github.com/veilchain/veil/internal/config"
	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/crypto/rangeproof"
	"github.com/veilchain/veil/internal/escrow"
	"github.com/veilchain/veil/internal/mempool"
	"github.com/veilchain/veil/internal/types"
	"github.com/veilchain/veil/internal/wallet"
)

func main() {
	configPath := flag.String("config", "veild.yaml", "path to node configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "veild:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cmtlog.NewTMLogger(os.Stdout)

	prover := rangeproof.NewProver()
	if err := prover.Setup(); err != nil {
		return fmt.Errorf("range proof setup: %w", err)
	}

	db, err := dbm.NewGoLevelDB("veild", cfg.Chain.StorePath)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer db.Close()

	genesisPrevious := crypto.HashBytes([]byte("veilchain genesis"), []byte(cfg.Chain.GenesisPrevious))

	store := chain.NewBlockStore(db, chain.GobCodec{})
	esc := escrow.New(logger)
	notifier := chain.NewNotifier()
	mp := mempool.New()
	bondingTime := types.Timestamp(cfg.Chain.BondingTime.Duration().Nanoseconds())
	engine := chain.NewEngine(logger, store, esc, notifier, mp, genesisPrevious, bondingTime, types.Epoch(cfg.Chain.StakeEpochs))

	walletStore, err := wallet.NewStore(wallet.StoreConfig{
		DSN:          cfg.Wallet.DSN,
		MaxOpenConns: cfg.Wallet.MaxOpenConns,
		MaxIdleConns: cfg.Wallet.MaxIdleConns,
		MaxIdleTime:  cfg.Wallet.MaxIdleTime.Duration(),
		MaxLifetime:  cfg.Wallet.MaxLifetime.Duration(),
	})
	if err != nil {
		return fmt.Errorf("open wallet store: %w", err)
	}
	defer walletStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := walletStore.MigrateUp(ctx); err != nil {
		return fmt.Errorf("migrate wallet store: %w", err)
	}

	logger.Info("veild starting", "epoch", engine.Epoch(), "stake_epochs", cfg.Chain.StakeEpochs)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("veild shutting down")
	cancel()
	return nil
}
