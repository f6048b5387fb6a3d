package statemachine

import (
	"math"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// handleChannelOpened inserts a new channel in OPENED state and registers
// its token network with the ingester (on every ChannelOpened; registration
// is idempotent) so off-chain RequestMonitoring messages for it are no
// longer rejected as unknown.
func handleChannelOpened(ctx *Context, tx *store.Tx, e *chainadapter.ChannelOpened) error {
	if err := tx.UpsertChannel(&store.Channel{
		TokenNetworkAddress: e.TokenNetworkAddress,
		ChannelIdentifier:   e.ChannelIdentifier,
		Participant1:        e.Participant1,
		Participant2:        e.Participant2,
		SettleTimeout:       e.SettleTimeout,
		State:               store.ChannelStateOpened,
	}); err != nil {
		return err
	}

	if ctx.Ingester != nil {
		ctx.Ingester.RegisterTokenNetwork(e.TokenNetworkAddress)
	}
	return nil
}

// handleChannelClosed transitions a channel to CLOSED and, unless the
// settlement period has already elapsed relative to the current chain head
// (a late arrival, e.g. after replay from an old sync_start_block),
// schedules a MONITOR action for the non-closing participant.
func handleChannelClosed(ctx *Context, tx *store.Tx, e *chainadapter.ChannelClosed) error {
	c, err := tx.GetChannel(e.TokenNetworkAddress, e.ChannelIdentifier)
	if err != nil {
		return err
	}
	if c == nil {
		log.Warnf("ChannelClosed for unknown channel %s/%s", e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	closingParticipant := e.ClosingParticipant
	block := e.Block

	c.State = store.ChannelStateClosed
	c.ClosingBlock = &block
	c.ClosingParticipant = &closingParticipant

	if err := tx.UpsertChannel(c); err != nil {
		return err
	}

	nonClosing, ok := c.NonClosingParticipant(closingParticipant)
	if !ok {
		log.Errorf("ChannelClosed: closing participant %s is not a participant of channel %s/%s",
			closingParticipant, e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	state, err := tx.GetBlockchainState()
	if err != nil {
		return err
	}

	settlePeriodEnd := e.Block + c.SettleTimeout
	if state != nil && settlePeriodEnd < state.LatestKnownBlock {
		log.Debugf("skipping MONITOR schedule for channel %s/%s: settle period end %d already behind head %d",
			e.TokenNetworkAddress, e.ChannelIdentifier, settlePeriodEnd, state.LatestKnownBlock)
		return nil
	}

	triggerBlock := e.Block + uint64(math.Round(float64(c.SettleTimeout)*ctx.MonitorWindowRatio))

	return tx.UpsertScheduledEvent(&store.ScheduledEvent{
		TriggerBlockNumber: triggerBlock,
		Action: store.Action{
			Kind:                  store.ActionMonitor,
			TokenNetworkAddress:   e.TokenNetworkAddress,
			ChannelIdentifier:     e.ChannelIdentifier,
			NonClosingParticipant: nonClosing,
		},
	})
}
