package statemachine

import (
	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// handleNonClosingBalanceProofUpdated tracks the latest on-chain update
// submitted during the settlement window, rejecting stale or duplicate
// nonces with a strict `>` comparison — the asymmetric counterpart to
// handleMonitorNewBalanceProof's `>=`.
func handleNonClosingBalanceProofUpdated(tx *store.Tx, e *chainadapter.NonClosingBalanceProofUpdated) error {
	c, err := tx.GetChannel(e.TokenNetworkAddress, e.ChannelIdentifier)
	if err != nil {
		return err
	}
	if c == nil {
		log.Warnf("NonClosingBalanceProofUpdated for unknown channel %s/%s", e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}
	if !c.HasParticipant(e.ClosingParticipant) {
		log.Errorf("NonClosingBalanceProofUpdated: closing participant %s is not a participant of channel %s/%s",
			e.ClosingParticipant, e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	nonClosing, _ := c.NonClosingParticipant(e.ClosingParticipant)

	if c.UpdateStatus == nil {
		c.UpdateStatus = &store.OnChainUpdateStatus{
			UpdateSenderAddress: nonClosing,
			Nonce:               e.Nonce,
		}
		return tx.UpsertChannel(c)
	}

	if e.Nonce <= c.UpdateStatus.Nonce {
		log.Debugf("dropping stale NonClosingBalanceProofUpdated nonce %d (known %d) for channel %s/%s",
			e.Nonce, c.UpdateStatus.Nonce, e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	c.UpdateStatus = &store.OnChainUpdateStatus{
		UpdateSenderAddress: nonClosing,
		Nonce:               e.Nonce,
	}
	return tx.UpsertChannel(c)
}
