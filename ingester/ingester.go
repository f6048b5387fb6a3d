// Package ingester implements the off-chain request ingester: it
// validates the three signatures carried by a RequestMonitoring message
// and, if valid, stores the resulting MonitorRequest.
package ingester

import (
	"math/big"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/ethereum/go-ethereum/common"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by ingester.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// RequestMonitoring is the off-chain wire message a Raiden node submits,
// with snake_case fields matching the on-chain balance-proof and
// reward-proof layout exactly so the digests in chainadapter reproduce the
// signatures bit-for-bit.
type RequestMonitoring struct {
	ChainID              uint64         `json:"chain_id"`
	TokenNetworkAddress  common.Address `json:"token_network_address"`
	ChannelIdentifier    *big.Int       `json:"channel_identifier"`
	BalanceHash          common.Hash    `json:"balance_hash"`
	Nonce                uint64         `json:"nonce"`
	AdditionalHash       common.Hash    `json:"additional_hash"`
	ClosingSignature     []byte         `json:"closing_signature"`
	NonClosingSignature  []byte         `json:"non_closing_signature"`
	RewardAmount         *big.Int       `json:"reward_amount"`
	RewardProofSignature []byte         `json:"reward_proof_signature"`
}

// Ingester validates and stores incoming RequestMonitoring messages.
// Writes go through the same *store.DB the event loop uses; bbolt
// serializes the two writers.
type Ingester struct {
	db      *store.DB
	chainID uint64

	mu            sync.RWMutex
	knownNetworks map[common.Address]bool
}

// New constructs an Ingester bound to db, rejecting any request whose
// chain_id does not match chainID.
func New(db *store.DB, chainID uint64) *Ingester {
	return &Ingester{
		db:            db,
		chainID:       chainID,
		knownNetworks: make(map[common.Address]bool),
	}
}

// RegisterTokenNetwork marks addr as a token network this service tracks.
// The channel state machine calls this for every ChannelOpened it handles,
// and the daemon calls it at startup for every persisted channel;
// registering an address again has no further effect.
func (i *Ingester) RegisterTokenNetwork(addr common.Address) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.knownNetworks[addr] = true
}

func (i *Ingester) isKnownTokenNetwork(addr common.Address) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.knownNetworks[addr]
}

// Ingest recovers both signers, checks the reward-proof signer, validates
// chain/token-network/channel context, then upserts under the store's
// nonce rule. It has no side effects on any rejection.
func (i *Ingester) Ingest(req *RequestMonitoring) error {
	balanceProofDigest := chainadapter.BalanceProofDigest(
		req.TokenNetworkAddress, req.ChainID, 1, req.ChannelIdentifier,
		req.BalanceHash, req.Nonce, req.AdditionalHash,
	)
	signer, err := chainadapter.RecoverSigner(balanceProofDigest, req.ClosingSignature)
	if err != nil {
		log.Debugf("ingest: closing signature recovery failed: %v", err)
		return ErrInvalidSignature
	}

	nonClosingDigest := chainadapter.NonClosingSignatureDigest(balanceProofDigest, req.ClosingSignature)
	nonClosingSigner, err := chainadapter.RecoverSigner(nonClosingDigest, req.NonClosingSignature)
	if err != nil {
		log.Debugf("ingest: non-closing signature recovery failed: %v", err)
		return ErrInvalidSignature
	}

	rewardProofDigest := chainadapter.RewardProofDigest(
		req.ChainID, req.TokenNetworkAddress, nonClosingSigner, req.RewardAmount,
		req.ChannelIdentifier, req.Nonce,
	)
	rewardSigner, err := chainadapter.RecoverSigner(rewardProofDigest, req.RewardProofSignature)
	if err != nil {
		log.Debugf("ingest: reward proof signature recovery failed: %v", err)
		return ErrInvalidSignature
	}
	if rewardSigner != nonClosingSigner {
		log.Debugf("ingest: reward proof signer %s does not match non-closing signer %s",
			rewardSigner, nonClosingSigner)
		return ErrInvalidSignature
	}
	if signer == nonClosingSigner {
		return ErrParticipantMismatch
	}

	if req.ChainID != i.chainID {
		return ErrChainIDMismatch
	}
	if !i.isKnownTokenNetwork(req.TokenNetworkAddress) {
		return ErrUnknownTokenNetwork
	}

	var channel *store.Channel
	err = i.db.View(func(tx *store.Tx) error {
		var err error
		channel, err = tx.GetChannel(req.TokenNetworkAddress, req.ChannelIdentifier)
		return err
	})
	if err != nil {
		return err
	}
	if channel == nil {
		return ErrUnknownChannel
	}
	if channel.State != store.ChannelStateOpened {
		return ErrChannelNotOpen
	}
	if !channel.HasParticipant(signer) || !channel.HasParticipant(nonClosingSigner) {
		return ErrParticipantMismatch
	}

	mr := &store.MonitorRequest{
		TokenNetworkAddress:  req.TokenNetworkAddress,
		ChannelIdentifier:    req.ChannelIdentifier,
		NonClosingSigner:     nonClosingSigner,
		BalanceHash:          req.BalanceHash,
		Nonce:                req.Nonce,
		AdditionalHash:       req.AdditionalHash,
		ClosingSignature:     req.ClosingSignature,
		NonClosingSignature:  req.NonClosingSignature,
		RewardAmount:         req.RewardAmount,
		RewardProofSignature: req.RewardProofSignature,
		Signer:               signer,
	}

	return i.db.Update(func(tx *store.Tx) error {
		return tx.UpsertMonitorRequest(mr)
	})
}
