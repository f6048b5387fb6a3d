package chainadapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signature hashes (topic0). Computed from the canonical Solidity
// event signature the same way crypto.Keccak256Hash is used throughout
// go-perun's adjudicator bindings to identify log topics without a
// generated ABI binding.
var (
	topicChannelOpened = crypto.Keccak256Hash([]byte(
		"ChannelOpened(uint256,address,address,uint256)"))
	topicChannelClosed = crypto.Keccak256Hash([]byte(
		"ChannelClosed(uint256,address)"))
	topicNonClosingBalanceProofUpdated = crypto.Keccak256Hash([]byte(
		"NonClosingBalanceProofUpdated(uint256,address,uint256)"))
	topicChannelSettled = crypto.Keccak256Hash([]byte(
		"ChannelSettled(uint256)"))
	topicMonitorNewBalanceProof = crypto.Keccak256Hash([]byte(
		"NewBalanceProofReceived(address,uint256,uint256,uint256,address,address)"))
	topicMonitorRewardClaimed = crypto.Keccak256Hash([]byte(
		"RewardClaimed(address,uint256,bytes32)"))
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

var (
	// channelOpenedData unpacks ChannelOpened's single non-indexed field:
	// settle_timeout. token_network is the emitting contract address,
	// channel_identifier/participant1/participant2 are indexed topics.
	channelOpenedData = mustArguments("uint256")

	// nonClosingBalanceProofUpdatedData unpacks the single non-indexed
	// nonce field.
	nonClosingBalanceProofUpdatedData = mustArguments("uint256")

	// monitorNewBalanceProofData unpacks the non-indexed fields emitted
	// alongside the indexed token_network/channel_identifier topics:
	// reward_amount, nonce, ms_address, raiden_node_address.
	monitorNewBalanceProofData = mustArguments("uint256", "uint256", "address", "address")

	// monitorRewardClaimedData unpacks the non-indexed amount field.
	monitorRewardClaimedData = mustArguments("uint256")
)

func bigFromHash(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h.Bytes())
}

func addressFromHash(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

// monitorFunctionSelector and claimRewardFunctionSelector are the 4-byte
// function selectors for the two MonitoringService contract calls this
// package submits. Computed the same way as the event topics above.
var (
	monitorFunctionSelector = crypto.Keccak256([]byte(
		"monitor(address,address,bytes32,uint256,bytes32,bytes,bytes,uint256,address,bytes)"))[:4]
	claimRewardFunctionSelector = crypto.Keccak256([]byte(
		"claimReward(uint256,address,address,address)"))[:4]

	monitorArguments = mustArguments(
		"address", "address", "bytes32", "uint256", "bytes32",
		"bytes", "bytes", "uint256", "address", "bytes",
	)
	claimRewardArguments = mustArguments("uint256", "address", "address", "address")

	// effectiveBalanceSelector is the UserDeposit contract's
	// effectiveBalance(address) view function selector.
	effectiveBalanceSelector = crypto.Keccak256([]byte("effectiveBalance(address)"))[:4]
	effectiveBalanceArguments = mustArguments("address")
	uint256Arguments          = mustArguments("uint256")
)
