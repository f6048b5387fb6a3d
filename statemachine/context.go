// Package statemachine implements the channel state machine: one handler
// per chain-adapter event kind, each run inside the event loop's per-block
// transaction, dispatched through a Go type switch over chainadapter.Event.
package statemachine

import (
	"math/big"

	"github.com/btcsuite/btclog"
	"github.com/ethereum/go-ethereum/common"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by statemachine.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// TokenNetworkRegistrar is notified of a channel's token network on every
// ChannelOpened, so the off-chain ingester knows which
// token_network_address values in incoming RequestMonitoring messages are
// legitimate rather than typos or requests for a network this deployment
// doesn't track.
type TokenNetworkRegistrar interface {
	RegisterTokenNetwork(addr common.Address)
}

// Context bundles the parameters every handler needs: the chain adapter
// (shared with the executor's own eligibility checks), the service's own
// signing address, and its reward/risk tunables. Constructed once at
// startup and passed by pointer to every handler and executor action.
type Context struct {
	DB       *store.DB
	Chain    chainadapter.Client
	Ingester TokenNetworkRegistrar

	OurAddress common.Address

	MinReward          *big.Int
	RiskFactor         uint64
	MonitorWindowRatio float64
}
