package eventloop

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

// fakeChain is a scripted chainadapter.Client: tests queue up exactly the
// poll batches and receipts they want to see without dialing a real node.
type fakeChain struct {
	mu sync.Mutex

	address      common.Address
	head         uint64
	pollBatches  [][]chainadapter.Event
	pollCalls    int
	receipts     map[common.Hash]*types.Receipt
	monitorCalls int
	claimCalls   int
	nextTxHash   common.Hash
}

var _ chainadapter.Client = (*fakeChain)(nil)

func (f *fakeChain) Address() common.Address { return f.address }

func (f *fakeChain) ChainID() uint64 { return 1 }

func (f *fakeChain) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChain) Poll(ctx context.Context, fromBlock, toBlock uint64) ([]chainadapter.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollCalls >= len(f.pollBatches) {
		f.pollCalls++
		return nil, nil
	}
	batch := f.pollBatches[f.pollCalls]
	f.pollCalls++
	return batch, nil
}

func (f *fakeChain) EffectiveBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeChain) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[txHash], nil
}

func (f *fakeChain) SubmitMonitor(ctx context.Context, args chainadapter.MonitorCallData) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitorCalls++
	return f.nextTxHash, nil
}

func (f *fakeChain) SubmitClaimReward(ctx context.Context, args chainadapter.ClaimRewardCallData) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	return f.nextTxHash, nil
}

func newTestLoop(t *testing.T, chain *fakeChain) (*Loop, *statemachine.Context) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := &statemachine.Context{
		DB:                 db,
		Chain:              chain,
		OurAddress:         common.HexToAddress("0xffff"),
		MinReward:          big.NewInt(1),
		RiskFactor:         2,
		MonitorWindowRatio: 0.8,
	}
	loop := New(ctx, Config{
		PollInterval:          time.Hour,
		RequiredConfirmations: 0,
		SyncStartBlock:        10,
		ChainID:               1,
	})
	return loop, ctx
}

func TestSeedCursorOnFirstRun(t *testing.T) {
	chain := &fakeChain{head: 10}
	loop, ctx := newTestLoop(t, chain)

	require.NoError(t, loop.seedCursor())

	var bs *store.BlockchainState
	err := ctx.DB.View(func(tx *store.Tx) error {
		var err error
		bs, err = tx.GetBlockchainState()
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, bs)
	require.EqualValues(t, 10, bs.LatestKnownBlock)
}

func TestSeedCursorIsANoOpIfAlreadyInitialized(t *testing.T) {
	chain := &fakeChain{head: 10}
	loop, ctx := newTestLoop(t, chain)

	err := ctx.DB.Update(func(tx *store.Tx) error {
		return tx.UpdateState(&store.BlockchainState{LatestKnownBlock: 500})
	})
	require.NoError(t, err)

	require.NoError(t, loop.seedCursor())

	var bs *store.BlockchainState
	err = ctx.DB.View(func(tx *store.Tx) error {
		var err error
		bs, err = tx.GetBlockchainState()
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 500, bs.LatestKnownBlock)
}

func TestCycleDispatchesBatchAndAdvancesCursor(t *testing.T) {
	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cid := big.NewInt(1)
	p1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p2 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	chain := &fakeChain{
		head: 20,
		pollBatches: [][]chainadapter.Event{
			{
				&chainadapter.ChannelOpened{
					TokenNetworkAddress: tokenNetwork, ChannelIdentifier: cid,
					Participant1: p1, Participant2: p2, SettleTimeout: 20, Block: 15,
				},
				&chainadapter.UpdatedHeadBlock{HeadBlockNumber: 20},
			},
		},
	}
	loop, ctx := newTestLoop(t, chain)
	require.NoError(t, loop.seedCursor())

	require.NoError(t, loop.cycle(context.Background()))

	var c *store.Channel
	err := ctx.DB.View(func(tx *store.Tx) error {
		var err error
		c, err = tx.GetChannel(tokenNetwork, cid)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, store.ChannelStateOpened, c.State)

	cursor, err := loop.readCommittedCursor()
	require.NoError(t, err)
	require.EqualValues(t, 20, cursor)

	var bs *store.BlockchainState
	err = ctx.DB.View(func(tx *store.Tx) error {
		var err error
		bs, err = tx.GetBlockchainState()
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 20, bs.LatestKnownBlock, "LatestKnownBlock is set from the chain head ahead of dispatch")
}

// TestCycleSkipsLateMonitorSchedule drives the real loop, not a
// hand-seeded state, through a channel closed so long ago that its
// settlement period has already elapsed relative to the actual chain
// head: no MONITOR should be scheduled.
func TestCycleSkipsLateMonitorSchedule(t *testing.T) {
	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cid := big.NewInt(1)
	p1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p2 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	chain := &fakeChain{
		head: 200,
		pollBatches: [][]chainadapter.Event{
			{
				&chainadapter.ChannelOpened{
					TokenNetworkAddress: tokenNetwork, ChannelIdentifier: cid,
					Participant1: p1, Participant2: p2, SettleTimeout: 10, Block: 50,
				},
				&chainadapter.ChannelClosed{
					TokenNetworkAddress: tokenNetwork, ChannelIdentifier: cid,
					ClosingParticipant: p1, Block: 100,
				},
				&chainadapter.UpdatedHeadBlock{HeadBlockNumber: 200},
			},
		},
	}
	loop, ctx := newTestLoop(t, chain)
	require.NoError(t, loop.seedCursor())

	require.NoError(t, loop.cycle(context.Background()))

	err := ctx.DB.View(func(tx *store.Tx) error {
		all, err := tx.AllScheduledEvents()
		require.NoError(t, err)
		require.Empty(t, all, "settle period already elapsed relative to the real chain head, nothing to schedule")
		return nil
	})
	require.NoError(t, err)
}

// TestCycleSchedulesMonitorWhenSettlePeriodStillOpen is the mirror image:
// the monitor-window trigger block (166) already sits behind the head
// (167), but the settlement period itself (ends at 170) is still open, so
// a MONITOR must still be scheduled. Being due at the committed cursor, it
// is drained and executed within the same cycle, which is what this test
// observes: a monitor submission and its waiting transaction.
func TestCycleSchedulesMonitorWhenSettlePeriodStillOpen(t *testing.T) {
	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cid := big.NewInt(1)
	p1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p2 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	chain := &fakeChain{
		head: 167,
		pollBatches: [][]chainadapter.Event{
			{
				&chainadapter.ChannelOpened{
					TokenNetworkAddress: tokenNetwork, ChannelIdentifier: cid,
					Participant1: p1, Participant2: p2, SettleTimeout: 20, Block: 100,
				},
				&chainadapter.ChannelClosed{
					TokenNetworkAddress: tokenNetwork, ChannelIdentifier: cid,
					ClosingParticipant: p1, Block: 150,
				},
				&chainadapter.UpdatedHeadBlock{HeadBlockNumber: 167},
			},
		},
	}
	loop, ctx := newTestLoop(t, chain)
	require.NoError(t, loop.seedCursor())

	err := ctx.DB.Update(func(tx *store.Tx) error {
		return tx.UpsertMonitorRequest(&store.MonitorRequest{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   cid,
			NonClosingSigner:    p2,
			Nonce:               5,
			RewardAmount:        big.NewInt(10),
			Signer:              p1,
		})
	})
	require.NoError(t, err)

	require.NoError(t, loop.cycle(context.Background()))

	require.Equal(t, 1, chain.monitorCalls, "the MONITOR for the non-closing participant must have been scheduled and run")

	err = ctx.DB.View(func(tx *store.Tx) error {
		all, err := tx.AllScheduledEvents()
		require.NoError(t, err)
		require.Empty(t, all, "the MONITOR was due at committed block 167 and has been drained")
		waiting, err := tx.ListWaitingTransactions()
		require.NoError(t, err)
		require.Len(t, waiting, 1)
		require.Equal(t, store.ActionMonitor, waiting[0].Kind)
		return nil
	})
	require.NoError(t, err)
}

func TestCycleDrainsDueScheduledEventAndExecutes(t *testing.T) {
	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cid := big.NewInt(1)
	nonClosing := common.HexToAddress("0x3333333333333333333333333333333333333333")
	closing := common.HexToAddress("0x2222222222222222222222222222222222222222")
	txHash := common.HexToHash("0xdead")
	closingBlock := uint64(5)

	chain := &fakeChain{head: 100, nextTxHash: txHash}
	loop, ctx := newTestLoop(t, chain)
	require.NoError(t, loop.seedCursor())

	err := ctx.DB.Update(func(tx *store.Tx) error {
		if err := tx.UpsertChannel(&store.Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   cid,
			Participant1:        closing,
			Participant2:        nonClosing,
			SettleTimeout:       20,
			State:               store.ChannelStateClosed,
			ClosingBlock:        &closingBlock,
		}); err != nil {
			return err
		}
		if err := tx.UpsertMonitorRequest(&store.MonitorRequest{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   cid,
			NonClosingSigner:    nonClosing,
			Nonce:               5,
			RewardAmount:        big.NewInt(10),
			Signer:              closing,
		}); err != nil {
			return err
		}
		return tx.UpsertScheduledEvent(&store.ScheduledEvent{
			TriggerBlockNumber: 10,
			Action: store.Action{
				Kind:                  store.ActionMonitor,
				TokenNetworkAddress:   tokenNetwork,
				ChannelIdentifier:     cid,
				NonClosingParticipant: nonClosing,
			},
		})
	})
	require.NoError(t, err)

	require.NoError(t, loop.cycle(context.Background()))

	require.Equal(t, 1, chain.monitorCalls)

	err = ctx.DB.View(func(tx *store.Tx) error {
		all, err := tx.AllScheduledEvents()
		require.NoError(t, err)
		require.Empty(t, all, "due scheduled events are removed once drained")
		return nil
	})
	require.NoError(t, err)
}

func TestPollWaitingTransactionsRemovesOnReceipt(t *testing.T) {
	txHash := common.HexToHash("0xbeef")
	chain := &fakeChain{
		head:     10,
		receipts: map[common.Hash]*types.Receipt{txHash: {Status: types.ReceiptStatusSuccessful}},
	}
	loop, ctx := newTestLoop(t, chain)

	err := ctx.DB.Update(func(tx *store.Tx) error {
		return tx.AddWaitingTransaction(&store.WaitingTransaction{
			TxHash: txHash,
			Kind:   store.ActionMonitor,
		})
	})
	require.NoError(t, err)

	require.NoError(t, loop.pollWaitingTransactions(context.Background()))

	err = ctx.DB.View(func(tx *store.Tx) error {
		waiting, err := tx.ListWaitingTransactions()
		require.NoError(t, err)
		require.Empty(t, waiting)
		return nil
	})
	require.NoError(t, err)
}

func TestPollWaitingTransactionsLeavesUnconfirmedInPlace(t *testing.T) {
	txHash := common.HexToHash("0xbeef")
	chain := &fakeChain{head: 10, receipts: map[common.Hash]*types.Receipt{}}
	loop, ctx := newTestLoop(t, chain)

	err := ctx.DB.Update(func(tx *store.Tx) error {
		return tx.AddWaitingTransaction(&store.WaitingTransaction{
			TxHash: txHash,
			Kind:   store.ActionMonitor,
		})
	})
	require.NoError(t, err)

	require.NoError(t, loop.pollWaitingTransactions(context.Background()))

	err = ctx.DB.View(func(tx *store.Tx) error {
		waiting, err := tx.ListWaitingTransactions()
		require.NoError(t, err)
		require.Len(t, waiting, 1, "a transaction with no receipt yet must stay tracked")
		return nil
	})
	require.NoError(t, err)
}
