package statemachine

import (
	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// handleMonitorNewBalanceProof tracks a balance proof submitted by any
// monitoring service (possibly this one). The nonce check is intentionally
// `<` (not `<=`): a monitoring service's own previously-submitted update
// may be re-observed with an equal nonce and must not be dropped as stale.
// If the submitter is us, a CLAIM_REWARD is scheduled for the non-closing
// participant the proof was submitted on behalf of.
func handleMonitorNewBalanceProof(ctx *Context, tx *store.Tx, e *chainadapter.MonitorNewBalanceProof) error {
	c, err := tx.GetChannel(e.TokenNetworkAddress, e.ChannelIdentifier)
	if err != nil {
		return err
	}
	if c == nil {
		log.Warnf("MonitorNewBalanceProof for unknown channel %s/%s", e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	if c.UpdateStatus != nil && e.Nonce < c.UpdateStatus.Nonce {
		log.Debugf("dropping stale MonitorNewBalanceProof nonce %d (known %d) for channel %s/%s",
			e.Nonce, c.UpdateStatus.Nonce, e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	c.UpdateStatus = &store.OnChainUpdateStatus{
		UpdateSenderAddress: e.MSAddress,
		Nonce:               e.Nonce,
	}
	if err := tx.UpsertChannel(c); err != nil {
		return err
	}

	if e.MSAddress != ctx.OurAddress {
		return nil
	}
	if c.ClosingBlock == nil {
		log.Errorf("MonitorNewBalanceProof submitted by us for channel %s/%s with no closing block recorded",
			e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	triggerBlock := *c.ClosingBlock + c.SettleTimeout + 5

	return tx.UpsertScheduledEvent(&store.ScheduledEvent{
		TriggerBlockNumber: triggerBlock,
		Action: store.Action{
			Kind:                  store.ActionClaimReward,
			TokenNetworkAddress:   e.TokenNetworkAddress,
			ChannelIdentifier:     e.ChannelIdentifier,
			NonClosingParticipant: e.RaidenNodeAddress,
		},
	})
}

// handleMonitorRewardClaimed is log-only: reward claims are not reflected
// back into channel state.
func handleMonitorRewardClaimed(e *chainadapter.MonitorRewardClaimed) error {
	log.Infof("reward claimed by %s: amount=%s reward_identifier=%s",
		e.MSAddress, e.Amount, e.RewardIdentifier)
	return nil
}
