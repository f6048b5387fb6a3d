// Package scheduler tracks block-height-keyed actions (MONITOR,
// CLAIM_REWARD) awaiting their trigger block, persisted through store so a
// restart never loses a pending action.
package scheduler

import (
	"github.com/btcsuite/btclog"

	"github.com/raiden-network/monitoring-service/store"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Scheduler is a thin façade over store's scheduled-event bucket. It holds
// no in-memory state of its own; every call goes straight to the open
// transaction it's given, keeping scheduling decisions inside the same
// atomic commit as the chain event that produced them.
type Scheduler struct{}

// New returns a Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule records a new action to fire at se.TriggerBlockNumber, replacing
// any existing action with the same identity.
func (s *Scheduler) Schedule(tx *store.Tx, se *store.ScheduledEvent) error {
	log.Debugf("scheduling %s for channel %s/%s at block %d",
		se.Action.Kind, se.Action.TokenNetworkAddress, se.Action.ChannelIdentifier, se.TriggerBlockNumber)
	return tx.UpsertScheduledEvent(se)
}

// Due returns every scheduled event whose trigger block has been reached as
// of block, ordered deterministically for replay-safe processing.
func (s *Scheduler) Due(tx *store.Tx, block uint64) ([]*store.ScheduledEvent, error) {
	return tx.DueScheduledEvents(block)
}

// Remove clears the scheduled event identified by key. The event loop
// removes each due event before handing it to the executor, so a failed
// action is not retried by the scheduler itself; retry, if any, comes from
// the next MonitorNewBalanceProof or ChannelClosed replay.
func (s *Scheduler) Remove(tx *store.Tx, key []byte) error {
	return tx.RemoveScheduledEvent(key)
}
