// Package executor implements the action executor: the eligibility gate,
// call-data construction, submission, and follow-up bookkeeping for the
// two scheduled action kinds, MONITOR and CLAIM_REWARD.
//
// Every Action.Execute call is self-contained: it reads channel/request
// state from the store, decides eligibility, and — only if eligible —
// submits a transaction and records the result in a dedicated follow-up
// store transaction. The chain RPC itself never runs inside a store
// transaction. The event loop has already removed the scheduled event
// before Execute runs, so a crash between submission and the follow-up
// commit leaves the submitted transaction untracked; it is not re-submitted
// on restart.
package executor

import (
	"context"
	"fmt"

	"github.com/btcsuite/btclog"

	"github.com/raiden-network/monitoring-service/statemachine"
	"github.com/raiden-network/monitoring-service/store"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Action is a scheduled MONITOR or CLAIM_REWARD action ready to run.
type Action interface {
	Execute(ctx context.Context, deps *statemachine.Context) error
}

// Build turns a drained store.ScheduledEvent into the concrete Action that
// knows how to run it.
func Build(se *store.ScheduledEvent) (Action, error) {
	switch se.Action.Kind {
	case store.ActionMonitor:
		return &MonitorAction{
			TokenNetworkAddress:   se.Action.TokenNetworkAddress,
			ChannelIdentifier:     se.Action.ChannelIdentifier,
			NonClosingParticipant: se.Action.NonClosingParticipant,
		}, nil
	case store.ActionClaimReward:
		return &ClaimRewardAction{
			TokenNetworkAddress:   se.Action.TokenNetworkAddress,
			ChannelIdentifier:     se.Action.ChannelIdentifier,
			NonClosingParticipant: se.Action.NonClosingParticipant,
		}, nil
	default:
		return nil, fmt.Errorf("executor: unknown scheduled action kind %v", se.Action.Kind)
	}
}

// Run builds and executes the action for se. Any error is a bookkeeping or
// RPC-dial failure, not an ineligibility result — ineligibility is a
// logged no-op; the scheduled event is dropped, not retried.
func Run(ctx context.Context, deps *statemachine.Context, se *store.ScheduledEvent) error {
	action, err := Build(se)
	if err != nil {
		return err
	}
	return action.Execute(ctx, deps)
}
