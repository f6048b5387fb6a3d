// Package chainadapter wraps an EVM RPC endpoint (via go-ethereum's
// ethclient) into the narrow surface the monitoring service core needs:
// a confirmed-log poller that decodes raw logs into typed domain events,
// a transaction submitter, and a receipt/balance reader.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by chainadapter.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Client is the chain-facing surface the rest of the service depends on.
// Adapter is its only production implementation; tests substitute a fake
// so executor/eventloop logic can run without a live RPC endpoint.
type Client interface {
	Address() common.Address
	ChainID() uint64
	HeadBlockNumber(ctx context.Context) (uint64, error)
	Poll(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error)
	EffectiveBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubmitMonitor(ctx context.Context, args MonitorCallData) (common.Hash, error)
	SubmitClaimReward(ctx context.Context, args ClaimRewardCallData) (common.Hash, error)
}

// Config is the set of chain-facing parameters the adapter needs to dial
// an RPC endpoint and know which contracts to watch and call.
type Config struct {
	RPCURL                      string
	TokenNetworkRegistryAddress common.Address
	MonitoringServiceAddress    common.Address
	UserDepositAddress          common.Address
	PrivateKey                  *ecdsa.PrivateKey
}

// Adapter is the concrete chain-facing implementation, backed by
// ethclient.Client the way lnd wires its own chain backend.
type Adapter struct {
	client  *ethclient.Client
	cfg     Config
	chainID *big.Int
	address common.Address
}

var _ Client = (*Adapter)(nil)

// Dial connects to cfg.RPCURL and returns a ready-to-use Adapter. The
// chain ID is not taken from config: it's read from the node itself via
// eth_chainId, the way any EIP-1559 signer must when it isn't pinned by
// config.
func Dial(ctx context.Context, cfg Config) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("unable to dial chain rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch chain id: %w", err)
	}

	return &Adapter{
		client:  client,
		cfg:     cfg,
		chainID: chainID,
		address: crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
	}, nil
}

// ChainID returns the connected chain's ID.
func (a *Adapter) ChainID() uint64 {
	return a.chainID.Uint64()
}

// Close releases the underlying RPC connection.
func (a *Adapter) Close() {
	a.client.Close()
}

// Address returns the monitoring service's own signing address.
func (a *Adapter) Address() common.Address {
	return a.address
}

// HeadBlockNumber returns the chain's current head block number.
func (a *Adapter) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return a.client.BlockNumber(ctx)
}

var pollTopics = []common.Hash{
	topicChannelOpened,
	topicChannelClosed,
	topicNonClosingBalanceProofUpdated,
	topicChannelSettled,
	topicMonitorNewBalanceProof,
	topicMonitorRewardClaimed,
}

// Poll returns every decoded event in [fromBlock, toBlock], ordered
// ascending by (block number, log index), followed by a synthetic
// UpdatedHeadBlock(toBlock) so the caller's cursor always advances.
func (a *Adapter) Poll(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	if fromBlock > toBlock {
		return []Event{&UpdatedHeadBlock{HeadBlockNumber: toBlock}}, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{pollTopics},
	}

	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("unable to filter logs: %w", err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]Event, 0, len(logs)+1)
	for _, l := range logs {
		ev, err := decodeLog(l)
		if err != nil {
			log.Errorf("skipping undecodable log at block %d: %v", l.BlockNumber, err)
			continue
		}
		events = append(events, ev)
	}
	events = append(events, &UpdatedHeadBlock{HeadBlockNumber: toBlock})

	return events, nil
}

func decodeLog(l types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, errUnknownLogTopic
	}

	switch l.Topics[0] {
	case topicChannelOpened:
		values, err := channelOpenedData.Unpack(l.Data)
		if err != nil {
			return nil, err
		}
		return &ChannelOpened{
			TokenNetworkAddress: l.Address,
			ChannelIdentifier:   bigFromHash(l.Topics[1]),
			Participant1:        addressFromHash(l.Topics[2]),
			Participant2:        addressFromHash(l.Topics[3]),
			SettleTimeout:       values[0].(*big.Int).Uint64(),
			Block:               l.BlockNumber,
		}, nil

	case topicChannelClosed:
		return &ChannelClosed{
			TokenNetworkAddress: l.Address,
			ChannelIdentifier:   bigFromHash(l.Topics[1]),
			ClosingParticipant:  addressFromHash(l.Topics[2]),
			Block:               l.BlockNumber,
		}, nil

	case topicNonClosingBalanceProofUpdated:
		values, err := nonClosingBalanceProofUpdatedData.Unpack(l.Data)
		if err != nil {
			return nil, err
		}
		return &NonClosingBalanceProofUpdated{
			TokenNetworkAddress: l.Address,
			ChannelIdentifier:   bigFromHash(l.Topics[1]),
			ClosingParticipant:  addressFromHash(l.Topics[2]),
			Nonce:               values[0].(*big.Int).Uint64(),
			Block:               l.BlockNumber,
		}, nil

	case topicChannelSettled:
		return &ChannelSettled{
			TokenNetworkAddress: l.Address,
			ChannelIdentifier:   bigFromHash(l.Topics[1]),
			Block:               l.BlockNumber,
		}, nil

	case topicMonitorNewBalanceProof:
		values, err := monitorNewBalanceProofData.Unpack(l.Data)
		if err != nil {
			return nil, err
		}
		return &MonitorNewBalanceProof{
			TokenNetworkAddress: addressFromHash(l.Topics[1]),
			ChannelIdentifier:   bigFromHash(l.Topics[2]),
			RewardAmount:        values[0].(*big.Int),
			Nonce:               values[1].(*big.Int).Uint64(),
			MSAddress:           values[2].(common.Address),
			RaidenNodeAddress:   values[3].(common.Address),
			Block:               l.BlockNumber,
		}, nil

	case topicMonitorRewardClaimed:
		values, err := monitorRewardClaimedData.Unpack(l.Data)
		if err != nil {
			return nil, err
		}
		return &MonitorRewardClaimed{
			MSAddress:        addressFromHash(l.Topics[1]),
			RewardIdentifier: l.Topics[2],
			Amount:           values[0].(*big.Int),
			Block:            l.BlockNumber,
		}, nil

	default:
		return nil, errUnknownLogTopic
	}
}

// EffectiveBalance queries the user-deposit contract's effectiveBalance
// view function for addr.
func (a *Adapter) EffectiveBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	calldata, err := effectiveBalanceArguments.Pack(addr)
	if err != nil {
		return nil, err
	}
	calldata = append(effectiveBalanceSelector, calldata...)

	to := a.cfg.UserDepositAddress
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to call effectiveBalance: %w", err)
	}

	values, err := uint256Arguments.Unpack(out)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// Receipt fetches the receipt for txHash, returning (nil, nil) if it has
// not been mined yet.
func (a *Adapter) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := a.client.TransactionReceipt(ctx, txHash)
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to fetch receipt: %w", err)
	}
	return receipt, nil
}

// sendTransaction builds, signs and broadcasts an EIP-1559 transaction
// calling the monitoring service contract with calldata, mirroring
// vocdoni-davinci-node's txmanager.buildTx (SuggestGasTipCap +
// SuggestGasPrice → DynamicFeeTx → SignTx → SendTransaction).
func (a *Adapter) sendTransaction(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to fetch nonce: %w", err)
	}

	tipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to suggest gas tip cap: %w", err)
	}

	baseFee, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to suggest gas price: %w", err)
	}
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)

	gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      a.address,
		To:        &to,
		GasTipCap: tipCap,
		GasFeeCap: gasFeeCap,
		Data:      calldata,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      calldata,
	})

	signer := types.NewLondonSigner(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.cfg.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to sign transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("unable to broadcast transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// MonitorCallData mirrors the monitor(...) function's on-chain argument
// order.
type MonitorCallData struct {
	Signer                common.Address
	NonClosingSigner      common.Address
	BalanceHash           common.Hash
	Nonce                 uint64
	AdditionalHash        common.Hash
	ClosingSignature      []byte
	NonClosingSignature   []byte
	RewardAmount          *big.Int
	TokenNetworkAddress   common.Address
	RewardProofSignature  []byte
}

// SubmitMonitor calls monitor(...) on the monitoring service contract.
func (a *Adapter) SubmitMonitor(ctx context.Context, args MonitorCallData) (common.Hash, error) {
	packed, err := monitorArguments.Pack(
		args.Signer, args.NonClosingSigner, args.BalanceHash, new(big.Int).SetUint64(args.Nonce),
		args.AdditionalHash, args.ClosingSignature, args.NonClosingSignature, args.RewardAmount,
		args.TokenNetworkAddress, args.RewardProofSignature,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to encode monitor call: %w", err)
	}
	calldata := append(append([]byte{}, monitorFunctionSelector...), packed...)

	return a.sendTransaction(ctx, a.cfg.MonitoringServiceAddress, calldata)
}

// ClaimRewardCallData mirrors the claimReward(...) function's on-chain
// argument order.
type ClaimRewardCallData struct {
	ChannelIdentifier   *big.Int
	TokenNetworkAddress common.Address
	Signer              common.Address
	NonClosingSigner    common.Address
}

// SubmitClaimReward calls claimReward(...) on the monitoring service
// contract.
func (a *Adapter) SubmitClaimReward(ctx context.Context, args ClaimRewardCallData) (common.Hash, error) {
	packed, err := claimRewardArguments.Pack(
		args.ChannelIdentifier, args.TokenNetworkAddress, args.Signer, args.NonClosingSigner,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to encode claimReward call: %w", err)
	}
	calldata := append(append([]byte{}, claimRewardFunctionSelector...), packed...)

	return a.sendTransaction(ctx, a.cfg.MonitoringServiceAddress, calldata)
}
