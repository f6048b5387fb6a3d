// Command msd is the monitoring service daemon: it watches a Raiden
// TokenNetwork deployment for channel closures, submits on-chain balance
// proofs on behalf of absent non-closing participants who registered a
// MonitorRequest, and claims the resulting reward.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/eventloop"
	"github.com/raiden-network/monitoring-service/ingester"
	"github.com/raiden-network/monitoring-service/msconfig"
	"github.com/raiden-network/monitoring-service/mslog"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

// msdMain is the true entry point; it's nested inside main so deferred
// cleanups still run before an explicit os.Exit, the same split lnd uses
// between lndMain and main.
func msdMain() error {
	cfg, err := msconfig.LoadConfig()
	if err != nil {
		return err
	}

	mslog.InitLogRotator(nil)
	mslog.SetLogLevels("info")
	log := mslog.Log()

	log.Infof("starting monitoring service daemon")

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	chain, err := chainadapter.Dial(ctx, chainadapter.Config{
		RPCURL:                      cfg.ChainRPCURL,
		TokenNetworkRegistryAddress: cfg.TokenNetworkRegistryAddress,
		MonitoringServiceAddress:    cfg.MonitoringServiceAddress,
		UserDepositAddress:          cfg.UserDepositAddress,
		PrivateKey:                  cfg.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("unable to dial chain: %w", err)
	}
	defer chain.Close()

	ing := ingester.New(db, chain.ChainID())

	var persistedChannels []*store.Channel
	if err := db.View(func(tx *store.Tx) error {
		var err error
		persistedChannels, err = tx.AllChannels()
		return err
	}); err != nil {
		return fmt.Errorf("unable to rehydrate known token networks: %w", err)
	}
	for _, c := range persistedChannels {
		ing.RegisterTokenNetwork(c.TokenNetworkAddress)
	}
	log.Infof("rehydrated known token networks from %d persisted channel(s)", len(persistedChannels))

	smCtx := &statemachine.Context{
		DB:                 db,
		Chain:              chain,
		Ingester:           ing,
		OurAddress:         chain.Address(),
		MinReward:          cfg.MinReward,
		RiskFactor:         cfg.RiskFactor,
		MonitorWindowRatio: cfg.MonitorWindowRatio,
	}

	loop := eventloop.New(smCtx, eventloop.Config{
		PollInterval:          cfg.PollInterval,
		RequiredConfirmations: cfg.RequiredConfirmations,
		SyncStartBlock:        cfg.SyncStartBlock,
		ChainID:               chain.ChainID(),
	})
	if err := loop.Start(); err != nil {
		return fmt.Errorf("unable to start event loop: %w", err)
	}

	log.Infof("monitoring service daemon ready, address=%s", chain.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutdown signal received")
	return loop.Stop()
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := msdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
