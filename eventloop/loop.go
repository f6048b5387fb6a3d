// Package eventloop drives the monitoring service's main cycle: poll the
// chain for new confirmed events, dispatch each through the channel state
// machine, drain and execute due scheduled actions, and poll outstanding
// transactions for receipts. Structured as an idempotent Start/Stop
// subsystem the way breacharbiter.go manages its own goroutine, down to
// the same atomic started/stopped guard.
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/raiden-network/monitoring-service/executor"
	"github.com/raiden-network/monitoring-service/scheduler"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// logClosure defers evaluating its closure until the message is actually
// logged, so a spew.Sdump of a batch of events costs nothing unless trace
// logging is enabled.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// Config is the tunable part of the cycle.
type Config struct {
	PollInterval          time.Duration
	RequiredConfirmations uint64
	SyncStartBlock        uint64
	ChainID               uint64
}

// Loop runs the five-step cycle on a ticker until stopped.
type Loop struct {
	ctx       *statemachine.Context
	scheduler *scheduler.Scheduler
	cfg       Config

	started uint32
	stopped uint32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New builds a Loop. ctx must already have DB and Chain populated.
func New(ctx *statemachine.Context, cfg Config) *Loop {
	return &Loop{
		ctx:       ctx,
		scheduler: scheduler.New(),
		cfg:       cfg,
		quit:      make(chan struct{}),
	}
}

// Start is idempotent: it seeds the sync cursor if this is a first-ever
// run, replays any waiting transactions left over from a previous crash,
// and launches the ticker goroutine.
func (l *Loop) Start() error {
	if !atomic.CompareAndSwapUint32(&l.started, 0, 1) {
		return nil
	}

	log.Infof("starting event loop")

	if err := l.seedCursor(); err != nil {
		return err
	}
	if err := l.pollWaitingTransactions(context.Background()); err != nil {
		return err
	}

	l.wg.Add(1)
	go l.run()

	return nil
}

// Stop is idempotent and blocks until the cycle goroutine has exited.
func (l *Loop) Stop() error {
	if !atomic.CompareAndSwapUint32(&l.stopped, 0, 1) {
		return nil
	}

	log.Infof("stopping event loop")

	close(l.quit)
	l.wg.Wait()

	return nil
}

func (l *Loop) seedCursor() error {
	return l.ctx.DB.Update(func(tx *store.Tx) error {
		bs, err := tx.GetBlockchainState()
		if err != nil {
			return err
		}
		if bs != nil {
			return nil
		}
		log.Infof("no persisted blockchain state found, seeding cursor from sync_start_block=%d",
			l.cfg.SyncStartBlock)
		return tx.UpdateState(&store.BlockchainState{
			LatestKnownBlock:     l.cfg.SyncStartBlock,
			LatestCommittedBlock: l.cfg.SyncStartBlock,
			SyncStartBlock:       l.cfg.SyncStartBlock,
			ChainID:              l.cfg.ChainID,
		})
	})
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.cycle(context.Background()); err != nil {
				log.Errorf("event loop cycle failed: %v", err)
			}
		case <-l.quit:
			return
		}
	}
}

// cycle runs one iteration: advance the cursor, dispatch newly confirmed
// events, execute due scheduled actions, and poll outstanding transactions.
//
// The chain head is written to LatestKnownBlock before any event in the
// batch is dispatched, so a handler such as handleChannelClosed always sees
// the current head rather than whatever was last committed on a previous
// cycle — important on catch-up from an old sync_start_block, where a whole
// range of blocks is dispatched under one head reading. LatestCommittedBlock
// advances separately, one event at a time, as UpdatedHeadBlock events are
// processed; it is what the next poll's from_block and the scheduler's
// due() are keyed off.
func (l *Loop) cycle(ctx context.Context) error {
	cursor, err := l.readCommittedCursor()
	if err != nil {
		return err
	}

	head, err := l.ctx.Chain.HeadBlockNumber(ctx)
	if err != nil {
		return err
	}
	if head < l.cfg.RequiredConfirmations {
		return nil
	}
	toBlock := head - l.cfg.RequiredConfirmations

	if err := l.advanceKnownHead(toBlock); err != nil {
		return err
	}

	fromBlock := cursor + 1
	if fromBlock > toBlock {
		return nil
	}

	batch, err := l.ctx.Chain.Poll(ctx, fromBlock, toBlock)
	if err != nil {
		return err
	}

	// Events of one block are dispatched inside a single transaction, so a
	// block's writes are committed together or not at all.
	for start := 0; start < len(batch); {
		end := start + 1
		for end < len(batch) && batch[end].BlockNumber() == batch[start].BlockNumber() {
			end++
		}
		blockEvents := batch[start:end]
		if err := l.ctx.DB.Update(func(tx *store.Tx) error {
			for _, ev := range blockEvents {
				log.Tracef("dispatching event: %v", newLogClosure(func() string {
					return spew.Sdump(ev)
				}))
				if err := statemachine.Dispatch(l.ctx, tx, ev); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		start = end
	}

	newCursor, err := l.readCommittedCursor()
	if err != nil {
		return err
	}

	due, err := l.drainDue(newCursor)
	if err != nil {
		return err
	}
	for _, se := range due {
		if err := executor.Run(ctx, l.ctx, se); err != nil {
			log.Errorf("executing scheduled %s for channel %s/%s failed: %v",
				se.Action.Kind, se.Action.TokenNetworkAddress, se.Action.ChannelIdentifier, err)
		}
	}

	return l.pollWaitingTransactions(ctx)
}

// readCommittedCursor returns LatestCommittedBlock, the per-event commit
// progress the poll range and the scheduler's draining are keyed off.
func (l *Loop) readCommittedCursor() (uint64, error) {
	var cursor uint64
	err := l.ctx.DB.View(func(tx *store.Tx) error {
		bs, err := tx.GetBlockchainState()
		if err != nil {
			return err
		}
		if bs != nil {
			cursor = bs.LatestCommittedBlock
		}
		return nil
	})
	return cursor, err
}

// advanceKnownHead sets LatestKnownBlock to head, monotonically, ahead of
// dispatching this cycle's batch.
func (l *Loop) advanceKnownHead(head uint64) error {
	return l.ctx.DB.Update(func(tx *store.Tx) error {
		bs, err := tx.GetBlockchainState()
		if err != nil {
			return err
		}
		if bs == nil {
			return fmt.Errorf("eventloop: %w", store.ErrStateNotInitialized)
		}
		if head <= bs.LatestKnownBlock {
			return nil
		}
		bs.LatestKnownBlock = head
		return tx.UpdateState(bs)
	})
}

// drainDue removes every due scheduled event from the store within a
// single transaction and returns them for out-of-transaction execution;
// an RPC call never runs while a store transaction is held.
func (l *Loop) drainDue(block uint64) ([]*store.ScheduledEvent, error) {
	var due []*store.ScheduledEvent
	err := l.ctx.DB.Update(func(tx *store.Tx) error {
		var err error
		due, err = l.scheduler.Due(tx, block)
		if err != nil {
			return err
		}
		for _, se := range due {
			if err := l.scheduler.Remove(tx, se.Key()); err != nil {
				return err
			}
		}
		return nil
	})
	return due, err
}

func (l *Loop) pollWaitingTransactions(ctx context.Context) error {
	var waiting []*store.WaitingTransaction
	err := l.ctx.DB.View(func(tx *store.Tx) error {
		var err error
		waiting, err = tx.ListWaitingTransactions()
		return err
	})
	if err != nil {
		return err
	}

	for _, wt := range waiting {
		receipt, err := l.ctx.Chain.Receipt(ctx, wt.TxHash)
		if err != nil {
			log.Errorf("unable to fetch receipt for %s: %v", wt.TxHash, err)
			continue
		}
		if receipt == nil {
			continue
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			log.Errorf("%s transaction %s reverted on chain", wt.Kind, wt.TxHash)
		}

		if err := l.ctx.DB.Update(func(tx *store.Tx) error {
			return tx.RemoveWaitingTransaction(wt.TxHash.Bytes())
		}); err != nil {
			log.Errorf("unable to remove waiting transaction %s: %v", wt.TxHash, err)
		}
	}

	return nil
}
