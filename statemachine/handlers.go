package statemachine

import (
	"fmt"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// Dispatch routes ev to its handler via a Go type switch. All handlers run
// inside tx, the transaction scoping one processed block.
func Dispatch(ctx *Context, tx *store.Tx, ev chainadapter.Event) error {
	switch e := ev.(type) {
	case *chainadapter.ChannelOpened:
		return handleChannelOpened(ctx, tx, e)
	case *chainadapter.ChannelClosed:
		return handleChannelClosed(ctx, tx, e)
	case *chainadapter.NonClosingBalanceProofUpdated:
		return handleNonClosingBalanceProofUpdated(tx, e)
	case *chainadapter.ChannelSettled:
		return handleChannelSettled(tx, e)
	case *chainadapter.MonitorNewBalanceProof:
		return handleMonitorNewBalanceProof(ctx, tx, e)
	case *chainadapter.MonitorRewardClaimed:
		return handleMonitorRewardClaimed(e)
	case *chainadapter.UpdatedHeadBlock:
		return handleUpdatedHeadBlock(tx, e)
	default:
		return fmt.Errorf("statemachine: unhandled event type %T", ev)
	}
}
