package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ms.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestMonitorRequestMaxNonceRetained verifies that for any sequence of
// valid MonitorRequests on one (tn, cid, np) key, the stored MR has the
// maximum nonce ever accepted, regardless of arrival order.
func TestMonitorRequestMaxNonceRetained(t *testing.T) {
	db := openTestDB(t)

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	channelID := big.NewInt(7)
	nonClosing := common.HexToAddress("0x2222222222222222222222222222222222222222")

	mrWithNonce := func(n uint64) *MonitorRequest {
		return &MonitorRequest{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			NonClosingSigner:    nonClosing,
			Nonce:               n,
			RewardAmount:        big.NewInt(100),
		}
	}

	// Arrival order deliberately out of sequence: 3, 1, 5, 2.
	for _, n := range []uint64{3, 1, 5, 2} {
		err := db.Update(func(tx *Tx) error {
			return tx.UpsertMonitorRequest(mrWithNonce(n))
		})
		require.NoError(t, err)
	}

	var stored *MonitorRequest
	err := db.View(func(tx *Tx) error {
		var err error
		stored, err = tx.GetMonitorRequest(tokenNetwork, channelID, nonClosing)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.EqualValues(t, 5, stored.Nonce)
}

// TestMonitorRequestStaleNonceRejected confirms an equal nonce never
// replaces the stored request (smaller nonces are covered by
// TestMonitorRequestMaxNonceRetained).
func TestMonitorRequestStaleNonceRejected(t *testing.T) {
	db := openTestDB(t)

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	channelID := big.NewInt(1)
	nonClosing := common.HexToAddress("0x2222222222222222222222222222222222222222")

	err := db.Update(func(tx *Tx) error {
		return tx.UpsertMonitorRequest(&MonitorRequest{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			NonClosingSigner:    nonClosing,
			Nonce:               10,
			RewardAmount:        big.NewInt(1),
		})
	})
	require.NoError(t, err)

	err = db.Update(func(tx *Tx) error {
		return tx.UpsertMonitorRequest(&MonitorRequest{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			NonClosingSigner:    nonClosing,
			Nonce:               10,
			RewardAmount:        big.NewInt(2),
		})
	})
	require.NoError(t, err)

	var stored *MonitorRequest
	err = db.View(func(tx *Tx) error {
		var err error
		stored, err = tx.GetMonitorRequest(tokenNetwork, channelID, nonClosing)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, stored.Nonce)
	require.EqualValues(t, 1, stored.RewardAmount.Int64(), "the equal-nonce request must not have replaced the first")
}

// TestChannelClosingTxHashPersisted verifies that a closing_tx_hash set on
// a closed channel is persisted and read back unchanged. Setting it at most
// once is caller discipline (the executor only submits while the field is
// nil); the store itself persists whatever it is given and does not guard
// against a later overwrite.
func TestChannelClosingTxHashPersisted(t *testing.T) {
	db := openTestDB(t)

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	channelID := big.NewInt(3)
	p1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p2 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	err := db.Update(func(tx *Tx) error {
		return tx.UpsertChannel(&Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			Participant1:        p1,
			Participant2:        p2,
			State:               ChannelStateOpened,
		})
	})
	require.NoError(t, err)

	closingBlock := uint64(42)
	firstHash := common.HexToHash("0xaaaa")
	err = db.Update(func(tx *Tx) error {
		return tx.UpsertChannel(&Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			Participant1:        p1,
			Participant2:        p2,
			State:               ChannelStateClosed,
			ClosingBlock:        &closingBlock,
			ClosingTxHash:       &firstHash,
		})
	})
	require.NoError(t, err)

	var stored *Channel
	err = db.View(func(tx *Tx) error {
		var err error
		stored, err = tx.GetChannel(tokenNetwork, channelID)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, stored.ClosingTxHash)
	require.Equal(t, firstHash, *stored.ClosingTxHash)
}

// TestChannelInvariantI2Enforced confirms UpsertChannel rejects a state
// that does not agree with ClosingBlock presence.
func TestChannelInvariantI2Enforced(t *testing.T) {
	db := openTestDB(t)

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	channelID := big.NewInt(4)

	err := db.Update(func(tx *Tx) error {
		return tx.UpsertChannel(&Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			State:               ChannelStateClosed,
			ClosingBlock:        nil,
		})
	})
	require.Error(t, err)
}

// TestCrashReplayDeterminism verifies that re-opening the store after a
// simulated crash (the first handle is closed right after block 1, standing
// in for the process dying) and replaying the same input stream reaches the
// same final state a single uninterrupted run would.
func TestCrashReplayDeterminism(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ms.db")

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	channelID := big.NewInt(9)
	p1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p2 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	applyBlock1 := func(tx *Tx) error {
		return tx.UpsertChannel(&Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			Participant1:        p1,
			Participant2:        p2,
			State:               ChannelStateOpened,
		})
	}
	applyBlock2 := func(tx *Tx) error {
		status := &OnChainUpdateStatus{UpdateSenderAddress: p1, Nonce: 5}
		return tx.UpsertChannel(&Channel{
			TokenNetworkAddress: tokenNetwork,
			ChannelIdentifier:   channelID,
			Participant1:        p1,
			Participant2:        p2,
			State:               ChannelStateOpened,
			UpdateStatus:        status,
		})
	}

	// Simulate a crash: open, apply block 1, close the handle with no
	// further writes (as if the process died), reopen, apply block 1 again
	// (idempotent replay of the same block), then apply block 2.
	db1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.Update(applyBlock1))
	require.NoError(t, db1.Close())

	db2, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db2.Close() })
	require.NoError(t, db2.Update(applyBlock1))
	require.NoError(t, db2.Update(applyBlock2))

	var replayed *Channel
	err = db2.View(func(tx *Tx) error {
		var err error
		replayed, err = tx.GetChannel(tokenNetwork, channelID)
		return err
	})
	require.NoError(t, err)

	// Uninterrupted reference run against a separate file.
	refPath := filepath.Join(t.TempDir(), "ref.db")
	refDB, err := Open(refPath)
	require.NoError(t, err)
	t.Cleanup(func() { refDB.Close() })
	require.NoError(t, refDB.Update(applyBlock1))
	require.NoError(t, refDB.Update(applyBlock2))

	var reference *Channel
	err = refDB.View(func(tx *Tx) error {
		var err error
		reference, err = tx.GetChannel(tokenNetwork, channelID)
		return err
	})
	require.NoError(t, err)

	require.Equal(t, reference.State, replayed.State)
	require.Equal(t, reference.UpdateStatus.Nonce, replayed.UpdateStatus.Nonce)
}

// TestScheduledEventUpsertIdempotent verifies that re-scheduling the same
// action identity after restart replay is a no-op, not a duplicate.
func TestScheduledEventUpsertIdempotent(t *testing.T) {
	db := openTestDB(t)

	action := Action{
		Kind:                  ActionMonitor,
		TokenNetworkAddress:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChannelIdentifier:     big.NewInt(1),
		NonClosingParticipant: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}

	err := db.Update(func(tx *Tx) error {
		return tx.UpsertScheduledEvent(&ScheduledEvent{TriggerBlockNumber: 100, Action: action})
	})
	require.NoError(t, err)

	// Replay: same action tuple, same trigger block.
	err = db.Update(func(tx *Tx) error {
		return tx.UpsertScheduledEvent(&ScheduledEvent{TriggerBlockNumber: 100, Action: action})
	})
	require.NoError(t, err)

	var all []*ScheduledEvent
	err = db.View(func(tx *Tx) error {
		var err error
		all, err = tx.AllScheduledEvents()
		return err
	})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// TestDueScheduledEventsOrdering confirms events are returned ascending by
// trigger block.
func TestDueScheduledEventsOrdering(t *testing.T) {
	db := openTestDB(t)

	tokenNetwork := common.HexToAddress("0x1111111111111111111111111111111111111111")
	mkAction := func(cid int64) Action {
		return Action{
			Kind:                  ActionMonitor,
			TokenNetworkAddress:   tokenNetwork,
			ChannelIdentifier:     big.NewInt(cid),
			NonClosingParticipant: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		}
	}

	err := db.Update(func(tx *Tx) error {
		if err := tx.UpsertScheduledEvent(&ScheduledEvent{TriggerBlockNumber: 300, Action: mkAction(3)}); err != nil {
			return err
		}
		if err := tx.UpsertScheduledEvent(&ScheduledEvent{TriggerBlockNumber: 100, Action: mkAction(1)}); err != nil {
			return err
		}
		return tx.UpsertScheduledEvent(&ScheduledEvent{TriggerBlockNumber: 200, Action: mkAction(2)})
	})
	require.NoError(t, err)

	var due []*ScheduledEvent
	err = db.View(func(tx *Tx) error {
		var err error
		due, err = tx.DueScheduledEvents(250)
		return err
	})
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.EqualValues(t, 100, due[0].TriggerBlockNumber)
	require.EqualValues(t, 200, due[1].TriggerBlockNumber)
}

// TestWaitingTransactionLifecycle exercises add/list/remove.
func TestWaitingTransactionLifecycle(t *testing.T) {
	db := openTestDB(t)

	wt := &WaitingTransaction{
		TxHash:              common.HexToHash("0xdead"),
		TokenNetworkAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChannelIdentifier:   big.NewInt(1),
		Kind:                ActionMonitor,
	}

	err := db.Update(func(tx *Tx) error {
		return tx.AddWaitingTransaction(wt)
	})
	require.NoError(t, err)

	var pending []*WaitingTransaction
	err = db.View(func(tx *Tx) error {
		var err error
		pending, err = tx.ListWaitingTransactions()
		return err
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, wt.TxHash, pending[0].TxHash)

	err = db.Update(func(tx *Tx) error {
		return tx.RemoveWaitingTransaction(wt.TxHash.Bytes())
	})
	require.NoError(t, err)

	err = db.View(func(tx *Tx) error {
		var err error
		pending, err = tx.ListWaitingTransactions()
		return err
	})
	require.NoError(t, err)
	require.Len(t, pending, 0)
}

// TestBlockchainStateRoundTrip verifies the persisted cursor round-trips:
// LatestKnownBlock and ChainID read back as written.
func TestBlockchainStateRoundTrip(t *testing.T) {
	db := openTestDB(t)

	bs := &BlockchainState{
		LatestKnownBlock:            1000,
		LatestCommittedBlock:        999,
		ChainID:                     1,
		TokenNetworkRegistryAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MonitorContractAddress:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}

	err := db.Update(func(tx *Tx) error {
		return tx.UpdateState(bs)
	})
	require.NoError(t, err)

	var stored *BlockchainState
	err = db.View(func(tx *Tx) error {
		var err error
		stored, err = tx.GetBlockchainState()
		return err
	})
	require.NoError(t, err)
	require.Equal(t, bs.LatestKnownBlock, stored.LatestKnownBlock)
	require.Equal(t, bs.ChainID, stored.ChainID)
}
