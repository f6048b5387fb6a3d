package executor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

// MonitorAction submits a monitor(...) transaction on behalf of a
// non-closing participant, if and only if it clears the eligibility gate
// below.
type MonitorAction struct {
	TokenNetworkAddress   common.Address
	ChannelIdentifier     *big.Int
	NonClosingParticipant common.Address
}

func (a *MonitorAction) Execute(ctx context.Context, deps *statemachine.Context) error {
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
		log.Debugf("MONITOR for channel %s/%s: no monitor request on file, dropping",
			a.TokenNetworkAddress, a.ChannelIdentifier)
		return nil
	}
	if c == nil {
		log.Warnf("MONITOR for unknown channel %s/%s, dropping", a.TokenNetworkAddress, a.ChannelIdentifier)
		return nil
	}
	if !c.HasParticipant(a.NonClosingParticipant) {
		log.Errorf("MONITOR: %s is not a participant of channel %s/%s, dropping",
			a.NonClosingParticipant, a.TokenNetworkAddress, a.ChannelIdentifier)
		return nil
	}

	lastOnChainNonce := uint64(0)
	if c.UpdateStatus != nil {
		lastOnChainNonce = c.UpdateStatus.Nonce
	}

	userDeposit, err := deps.Chain.EffectiveBalance(ctx, a.NonClosingParticipant)
	if err != nil {
		return err
	}

	threshold := new(big.Int).Mul(mr.RewardAmount, new(big.Int).SetUint64(deps.RiskFactor))

	eligible := c.ClosingTxHash == nil &&
		mr.Nonce > lastOnChainNonce &&
		userDeposit.Cmp(threshold) >= 0 &&
		mr.RewardAmount.Cmp(deps.MinReward) >= 0

	if !eligible {
		log.Debugf("MONITOR for channel %s/%s gated off: closing_tx_hash_set=%v mr.nonce=%d last_onchain_nonce=%d user_deposit=%s threshold=%s min_reward=%s",
			a.TokenNetworkAddress, a.ChannelIdentifier, c.ClosingTxHash != nil, mr.Nonce, lastOnChainNonce,
			userDeposit, threshold, deps.MinReward)
		return nil
	}

	txHash, err := deps.Chain.SubmitMonitor(ctx, chainadapter.MonitorCallData{
		Signer:               mr.Signer,
		NonClosingSigner:     mr.NonClosingSigner,
		BalanceHash:          mr.BalanceHash,
		Nonce:                mr.Nonce,
		AdditionalHash:       mr.AdditionalHash,
		ClosingSignature:     mr.ClosingSignature,
		NonClosingSignature:  mr.NonClosingSignature,
		RewardAmount:         mr.RewardAmount,
		TokenNetworkAddress:  a.TokenNetworkAddress,
		RewardProofSignature: mr.RewardProofSignature,
	})
	if err != nil {
		log.Errorf("MONITOR submission failed for channel %s/%s: %v", a.TokenNetworkAddress, a.ChannelIdentifier, err)
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
		c.ClosingTxHash = &txHash
		if err := tx.UpsertChannel(c); err != nil {
			return err
		}
		return tx.AddWaitingTransaction(&store.WaitingTransaction{
			TxHash:              txHash,
			TokenNetworkAddress: a.TokenNetworkAddress,
			ChannelIdentifier:   a.ChannelIdentifier,
			Kind:                store.ActionMonitor,
		})
	})
}
