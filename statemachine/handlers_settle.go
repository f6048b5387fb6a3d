package statemachine

import (
	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// handleChannelSettled marks a channel SETTLED.
func handleChannelSettled(tx *store.Tx, e *chainadapter.ChannelSettled) error {
	c, err := tx.GetChannel(e.TokenNetworkAddress, e.ChannelIdentifier)
	if err != nil {
		return err
	}
	if c == nil {
		log.Warnf("ChannelSettled for unknown channel %s/%s", e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}
	if c.ClosingBlock == nil {
		log.Errorf("ChannelSettled for channel %s/%s that was never closed, dropping",
			e.TokenNetworkAddress, e.ChannelIdentifier)
		return nil
	}

	c.State = store.ChannelStateSettled
	return tx.UpsertChannel(c)
}
