package store

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChannelState mirrors the on-chain TokenNetwork channel state enum.
type ChannelState uint8

const (
	ChannelStateOpened ChannelState = iota
	ChannelStateClosed
	ChannelStateSettled
)

func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpened:
		return "opened"
	case ChannelStateClosed:
		return "closed"
	case ChannelStateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// ChannelID identifies a channel within one token network.
type ChannelID struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
}

// OnChainUpdateStatus tracks the latest known on-chain balance-proof
// update for a channel.
type OnChainUpdateStatus struct {
	UpdateSenderAddress common.Address
	Nonce               uint64
}

// Channel is the persisted representation of a monitored payment channel.
// Participant1/Participant2 retain the order in which ChannelOpened
// reported them; callers that need "the other participant" use
// NonClosingParticipant.
type Channel struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int

	Participant1 common.Address
	Participant2 common.Address

	SettleTimeout uint64

	State ChannelState

	ClosingBlock       *uint64
	ClosingParticipant *common.Address

	UpdateStatus *OnChainUpdateStatus

	ClosingTxHash *common.Hash
	ClaimTxHash   *common.Hash
}

// ID returns the channel's identity tuple.
func (c *Channel) ID() ChannelID {
	return ChannelID{
		TokenNetworkAddress: c.TokenNetworkAddress,
		ChannelIdentifier:   c.ChannelIdentifier,
	}
}

// Participants returns the channel's unordered participant pair.
func (c *Channel) Participants() [2]common.Address {
	return [2]common.Address{c.Participant1, c.Participant2}
}

// NonClosingParticipant returns the participant that is not closer. The
// boolean is false if closer is not one of the two channel participants.
func (c *Channel) NonClosingParticipant(closer common.Address) (common.Address, bool) {
	switch closer {
	case c.Participant1:
		return c.Participant2, true
	case c.Participant2:
		return c.Participant1, true
	default:
		return common.Address{}, false
	}
}

// HasParticipant reports whether addr is one of the two channel
// participants.
func (c *Channel) HasParticipant(addr common.Address) bool {
	return addr == c.Participant1 || addr == c.Participant2
}

func (c *Channel) Encode(w io.Writer) error {
	if err := writeAddress(w, c.TokenNetworkAddress); err != nil {
		return err
	}
	if err := writeBigInt(w, c.ChannelIdentifier); err != nil {
		return err
	}
	if err := writeAddress(w, c.Participant1); err != nil {
		return err
	}
	if err := writeAddress(w, c.Participant2); err != nil {
		return err
	}
	if err := writeUint64(w, c.SettleTimeout); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(c.State)); err != nil {
		return err
	}

	if err := writeBool(w, c.ClosingBlock != nil); err != nil {
		return err
	}
	if c.ClosingBlock != nil {
		if err := writeUint64(w, *c.ClosingBlock); err != nil {
			return err
		}
	}

	if err := writeBool(w, c.ClosingParticipant != nil); err != nil {
		return err
	}
	if c.ClosingParticipant != nil {
		if err := writeAddress(w, *c.ClosingParticipant); err != nil {
			return err
		}
	}

	if err := writeBool(w, c.UpdateStatus != nil); err != nil {
		return err
	}
	if c.UpdateStatus != nil {
		if err := writeAddress(w, c.UpdateStatus.UpdateSenderAddress); err != nil {
			return err
		}
		if err := writeUint64(w, c.UpdateStatus.Nonce); err != nil {
			return err
		}
	}

	if err := writeBool(w, c.ClosingTxHash != nil); err != nil {
		return err
	}
	if c.ClosingTxHash != nil {
		if err := writeHash(w, *c.ClosingTxHash); err != nil {
			return err
		}
	}

	if err := writeBool(w, c.ClaimTxHash != nil); err != nil {
		return err
	}
	if c.ClaimTxHash != nil {
		if err := writeHash(w, *c.ClaimTxHash); err != nil {
			return err
		}
	}

	return nil
}

func decodeChannel(r io.Reader) (*Channel, error) {
	c := &Channel{}
	var err error

	if c.TokenNetworkAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if c.ChannelIdentifier, err = readBigInt(r); err != nil {
		return nil, err
	}
	if c.Participant1, err = readAddress(r); err != nil {
		return nil, err
	}
	if c.Participant2, err = readAddress(r); err != nil {
		return nil, err
	}
	if c.SettleTimeout, err = readUint64(r); err != nil {
		return nil, err
	}
	state, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	c.State = ChannelState(state)

	hasClosingBlock, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if hasClosingBlock {
		v, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		c.ClosingBlock = &v
	}

	hasClosingParticipant, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if hasClosingParticipant {
		v, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		c.ClosingParticipant = &v
	}

	hasUpdateStatus, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if hasUpdateStatus {
		sender, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		nonce, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		c.UpdateStatus = &OnChainUpdateStatus{UpdateSenderAddress: sender, Nonce: nonce}
	}

	hasClosingTx, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if hasClosingTx {
		v, err := readHash(r)
		if err != nil {
			return nil, err
		}
		c.ClosingTxHash = &v
	}

	hasClaimTx, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if hasClaimTx {
		v, err := readHash(r)
		if err != nil {
			return nil, err
		}
		c.ClaimTxHash = &v
	}

	return c, nil
}

// MonitorRequest is a bundle authorizing the monitoring service to submit
// a balance proof on the non-closing signer's behalf, in exchange for a
// reward.
type MonitorRequest struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	NonClosingSigner    common.Address

	BalanceHash    common.Hash
	Nonce          uint64
	AdditionalHash common.Hash

	ClosingSignature    []byte
	NonClosingSignature []byte

	RewardAmount          *big.Int
	RewardProofSignature  []byte

	// Signer is the address recovered from ClosingSignature: the closing
	// participant who produced the balance proof being monitored.
	Signer common.Address
}

func (mr *MonitorRequest) Encode(w io.Writer) error {
	if err := writeAddress(w, mr.TokenNetworkAddress); err != nil {
		return err
	}
	if err := writeBigInt(w, mr.ChannelIdentifier); err != nil {
		return err
	}
	if err := writeAddress(w, mr.NonClosingSigner); err != nil {
		return err
	}
	if err := writeHash(w, mr.BalanceHash); err != nil {
		return err
	}
	if err := writeUint64(w, mr.Nonce); err != nil {
		return err
	}
	if err := writeHash(w, mr.AdditionalHash); err != nil {
		return err
	}
	if err := writeBytes(w, mr.ClosingSignature); err != nil {
		return err
	}
	if err := writeBytes(w, mr.NonClosingSignature); err != nil {
		return err
	}
	if err := writeBigInt(w, mr.RewardAmount); err != nil {
		return err
	}
	if err := writeBytes(w, mr.RewardProofSignature); err != nil {
		return err
	}
	return writeAddress(w, mr.Signer)
}

func decodeMonitorRequest(r io.Reader) (*MonitorRequest, error) {
	mr := &MonitorRequest{}
	var err error

	if mr.TokenNetworkAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if mr.ChannelIdentifier, err = readBigInt(r); err != nil {
		return nil, err
	}
	if mr.NonClosingSigner, err = readAddress(r); err != nil {
		return nil, err
	}
	if mr.BalanceHash, err = readHash(r); err != nil {
		return nil, err
	}
	if mr.Nonce, err = readUint64(r); err != nil {
		return nil, err
	}
	if mr.AdditionalHash, err = readHash(r); err != nil {
		return nil, err
	}
	if mr.ClosingSignature, err = readBytes(r); err != nil {
		return nil, err
	}
	if mr.NonClosingSignature, err = readBytes(r); err != nil {
		return nil, err
	}
	if mr.RewardAmount, err = readBigInt(r); err != nil {
		return nil, err
	}
	if mr.RewardProofSignature, err = readBytes(r); err != nil {
		return nil, err
	}
	if mr.Signer, err = readAddress(r); err != nil {
		return nil, err
	}
	return mr, nil
}

// ActionKind distinguishes scheduled action variants.
type ActionKind uint8

const (
	ActionMonitor ActionKind = iota
	ActionClaimReward
)

func (k ActionKind) String() string {
	switch k {
	case ActionMonitor:
		return "MONITOR"
	case ActionClaimReward:
		return "CLAIM_REWARD"
	default:
		return "UNKNOWN"
	}
}

// Action is the payload of a ScheduledEvent: a channel/participant pair to
// act on once the trigger block is reached.
type Action struct {
	Kind                  ActionKind
	TokenNetworkAddress   common.Address
	ChannelIdentifier     *big.Int
	NonClosingParticipant common.Address
}

// ScheduledEvent is a deferred action keyed by the block height at which
// it should fire.
type ScheduledEvent struct {
	TriggerBlockNumber uint64
	Action             Action
}

// Key returns the uniqueness tuple: at most one MONITOR and one
// CLAIM_REWARD per (token network, channel, non-closing participant).
func (se *ScheduledEvent) Key() []byte {
	b, _ := encode(func(w io.Writer) error {
		if err := writeUint32(w, uint32(se.Action.Kind)); err != nil {
			return err
		}
		if err := writeAddress(w, se.Action.TokenNetworkAddress); err != nil {
			return err
		}
		if err := writeBigInt(w, se.Action.ChannelIdentifier); err != nil {
			return err
		}
		return writeAddress(w, se.Action.NonClosingParticipant)
	})
	return b
}

func (se *ScheduledEvent) Encode(w io.Writer) error {
	if err := writeUint64(w, se.TriggerBlockNumber); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(se.Action.Kind)); err != nil {
		return err
	}
	if err := writeAddress(w, se.Action.TokenNetworkAddress); err != nil {
		return err
	}
	if err := writeBigInt(w, se.Action.ChannelIdentifier); err != nil {
		return err
	}
	return writeAddress(w, se.Action.NonClosingParticipant)
}

func decodeScheduledEvent(r io.Reader) (*ScheduledEvent, error) {
	se := &ScheduledEvent{}
	var err error

	if se.TriggerBlockNumber, err = readUint64(r); err != nil {
		return nil, err
	}
	kind, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	se.Action.Kind = ActionKind(kind)
	if se.Action.TokenNetworkAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if se.Action.ChannelIdentifier, err = readBigInt(r); err != nil {
		return nil, err
	}
	if se.Action.NonClosingParticipant, err = readAddress(r); err != nil {
		return nil, err
	}
	return se, nil
}

// WaitingTransaction is a submitted tx hash awaiting confirmation, tagged
// with the channel/action it belongs to so a confirmed or reverted receipt
// can be attributed back to its cause.
type WaitingTransaction struct {
	TxHash              common.Hash
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	Kind                ActionKind
}

func (wt *WaitingTransaction) Encode(w io.Writer) error {
	if err := writeHash(w, wt.TxHash); err != nil {
		return err
	}
	if err := writeAddress(w, wt.TokenNetworkAddress); err != nil {
		return err
	}
	if err := writeBigInt(w, wt.ChannelIdentifier); err != nil {
		return err
	}
	return writeUint32(w, uint32(wt.Kind))
}

func decodeWaitingTransaction(r io.Reader) (*WaitingTransaction, error) {
	wt := &WaitingTransaction{}
	var err error

	if wt.TxHash, err = readHash(r); err != nil {
		return nil, err
	}
	if wt.TokenNetworkAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if wt.ChannelIdentifier, err = readBigInt(r); err != nil {
		return nil, err
	}
	kind, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	wt.Kind = ActionKind(kind)
	return wt, nil
}

// BlockchainState is the persisted chain-sync cursor and static chain
// configuration. Two distinct cursors are tracked: LatestKnownBlock is the
// actual chain head, set by the event loop directly from the node ahead of
// dispatching a batch, so handlers can judge a late arrival against the
// real head rather than stale processing progress; LatestCommittedBlock
// trails it, advancing one event at a time as the batch is committed, and
// is what the next poll's from_block and the scheduler's due() are keyed
// off. SyncStartBlock carries config's sync_start_block so the event loop
// knows where to seed both cursors on a genuinely first-ever startup, when
// no persisted state exists yet.
type BlockchainState struct {
	LatestKnownBlock            uint64
	LatestCommittedBlock        uint64
	ChainID                     uint64
	SyncStartBlock              uint64
	TokenNetworkRegistryAddress common.Address
	MonitorContractAddress      common.Address
}

func (bs *BlockchainState) Encode(w io.Writer) error {
	if err := writeUint64(w, bs.LatestKnownBlock); err != nil {
		return err
	}
	if err := writeUint64(w, bs.LatestCommittedBlock); err != nil {
		return err
	}
	if err := writeUint64(w, bs.ChainID); err != nil {
		return err
	}
	if err := writeUint64(w, bs.SyncStartBlock); err != nil {
		return err
	}
	if err := writeAddress(w, bs.TokenNetworkRegistryAddress); err != nil {
		return err
	}
	return writeAddress(w, bs.MonitorContractAddress)
}

func decodeBlockchainState(r io.Reader) (*BlockchainState, error) {
	bs := &BlockchainState{}
	var err error

	if bs.LatestKnownBlock, err = readUint64(r); err != nil {
		return nil, err
	}
	if bs.LatestCommittedBlock, err = readUint64(r); err != nil {
		return nil, err
	}
	if bs.ChainID, err = readUint64(r); err != nil {
		return nil, err
	}
	if bs.SyncStartBlock, err = readUint64(r); err != nil {
		return nil, err
	}
	if bs.TokenNetworkRegistryAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	if bs.MonitorContractAddress, err = readAddress(r); err != nil {
		return nil, err
	}
	return bs, nil
}
