package executor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

// ClaimRewardAction submits a claimReward(...) transaction once this MS's
// own monitor submission became the last on-chain update before
// settlement.
type ClaimRewardAction struct {
	TokenNetworkAddress   common.Address
	ChannelIdentifier     *big.Int
	NonClosingParticipant common.Address
}

func (a *ClaimRewardAction) Execute(ctx context.Context, deps *statemachine.Context) error {
	var mr *store.MonitorRequest
	var c *store.Channel

	err := deps.DB.View(func(tx *store.Tx) error {
		var err error
		mr, err = tx.GetMonitorRequest(a.TokenNetworkAddress, a.ChannelIdentifier, a.NonClosingParticipant)
		if err != nil {
			return err
		}
		c, err = tx.GetChannel(a.TokenNetworkAddress, a.ChannelIdentifier)
		return err
	})
	if err != nil {
		return err
	}
	if mr == nil {
		log.Debugf("CLAIM_REWARD for channel %s/%s: no monitor request on file, dropping",
			a.TokenNetworkAddress, a.ChannelIdentifier)
		return nil
	}
	if c == nil {
		log.Warnf("CLAIM_REWARD for unknown channel %s/%s, dropping", a.TokenNetworkAddress, a.ChannelIdentifier)
		return nil
	}

	eligible := c.ClaimTxHash == nil &&
		c.UpdateStatus != nil &&
		c.UpdateStatus.UpdateSenderAddress == deps.OurAddress &&
		mr.RewardAmount.Sign() > 0

	if !eligible {
		log.Debugf("CLAIM_REWARD for channel %s/%s gated off: claim_tx_hash_set=%v update_status=%+v reward_amount=%s",
			a.TokenNetworkAddress, a.ChannelIdentifier, c.ClaimTxHash != nil, c.UpdateStatus, mr.RewardAmount)
		return nil
	}

	txHash, err := deps.Chain.SubmitClaimReward(ctx, chainadapter.ClaimRewardCallData{
		ChannelIdentifier:   a.ChannelIdentifier,
		TokenNetworkAddress: a.TokenNetworkAddress,
		Signer:              mr.Signer,
		NonClosingSigner:    mr.NonClosingSigner,
	})
	if err != nil {
		log.Errorf("CLAIM_REWARD submission failed for channel %s/%s: %v", a.TokenNetworkAddress, a.ChannelIdentifier, err)
		return nil
	}

	return deps.DB.Update(func(tx *store.Tx) error {
		c, err := tx.GetChannel(a.TokenNetworkAddress, a.ChannelIdentifier)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		c.ClaimTxHash = &txHash
		if err := tx.UpsertChannel(c); err != nil {
			return err
		}
		return tx.AddWaitingTransaction(&store.WaitingTransaction{
			TxHash:              txHash,
			TokenNetworkAddress: a.TokenNetworkAddress,
			ChannelIdentifier:   a.ChannelIdentifier,
			Kind:                store.ActionClaimReward,
		})
	})
}
