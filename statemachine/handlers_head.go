package statemachine

import (
	"fmt"

	"github.com/raiden-network/monitoring-service/chainadapter"
	"github.com/raiden-network/monitoring-service/store"
)

// handleUpdatedHeadBlock advances the persisted commit cursor one event at a
// time as the batch is processed; this is what the scheduler drains against
// and what the next poll's from_block is computed from. It is distinct from
// LatestKnownBlock, which the event loop sets directly from the chain head
// ahead of dispatch. The never-regresses rule is enforced here rather than
// left to the caller, since apart from the event loop's one-time seeding
// this is the only place the cursor is written.
func handleUpdatedHeadBlock(tx *store.Tx, e *chainadapter.UpdatedHeadBlock) error {
	bs, err := tx.GetBlockchainState()
	if err != nil {
		return err
	}
	if bs == nil {
		return store.ErrStateNotInitialized
	}
	if e.HeadBlockNumber < bs.LatestCommittedBlock {
		return fmt.Errorf("statemachine: refusing to regress latest_committed_block from %d to %d",
			bs.LatestCommittedBlock, e.HeadBlockNumber)
	}

	bs.LatestCommittedBlock = e.HeadBlockNumber
	return tx.UpdateState(bs)
}
