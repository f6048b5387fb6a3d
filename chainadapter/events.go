package chainadapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is the typed domain-event interface the chain adapter decodes raw
// logs into. BlockNumber orders events across a poll batch; within one
// block, the adapter preserves the chain's own log order.
type Event interface {
	BlockNumber() uint64
}

// ChannelOpened is emitted by a TokenNetwork contract when a new channel is
// created.
type ChannelOpened struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	Participant1        common.Address
	Participant2        common.Address
	SettleTimeout       uint64
	Block               uint64
}

func (e *ChannelOpened) BlockNumber() uint64 { return e.Block }

// ChannelClosed is emitted when a participant closes a channel with a
// balance proof.
type ChannelClosed struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	ClosingParticipant  common.Address
	Block               uint64
}

func (e *ChannelClosed) BlockNumber() uint64 { return e.Block }

// NonClosingBalanceProofUpdated is emitted when the non-closing participant
// (or anyone holding their signature) submits a newer balance proof during
// the settlement window.
type NonClosingBalanceProofUpdated struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	ClosingParticipant  common.Address
	Nonce               uint64
	Block               uint64
}

func (e *NonClosingBalanceProofUpdated) BlockNumber() uint64 { return e.Block }

// ChannelSettled is emitted once the settlement window has elapsed and
// final balances are paid out.
type ChannelSettled struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	Block               uint64
}

func (e *ChannelSettled) BlockNumber() uint64 { return e.Block }

// MonitorNewBalanceProof is emitted by the MonitoringService contract when
// any monitoring service (possibly this one) submits a balance proof on a
// non-closing participant's behalf.
type MonitorNewBalanceProof struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	RewardAmount        *big.Int
	Nonce               uint64
	MSAddress           common.Address
	RaidenNodeAddress   common.Address
	Block               uint64
}

func (e *MonitorNewBalanceProof) BlockNumber() uint64 { return e.Block }

// MonitorRewardClaimed is emitted by the MonitoringService contract when a
// reward payout is claimed.
type MonitorRewardClaimed struct {
	MSAddress        common.Address
	Amount           *big.Int
	RewardIdentifier common.Hash
	Block            uint64
}

func (e *MonitorRewardClaimed) BlockNumber() uint64 { return e.Block }

// UpdatedHeadBlock is synthetic, emitted by Poll after the last real event
// of a batch (or standing in for an empty batch) so the sync cursor always
// advances.
type UpdatedHeadBlock struct {
	HeadBlockNumber uint64
}

func (e *UpdatedHeadBlock) BlockNumber() uint64 { return e.HeadBlockNumber }
