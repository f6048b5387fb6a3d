package store

import "bytes"

// GetBlockchainState returns the persisted chain-sync cursor, or nil if the
// store has never been initialized (first run, before the initial
// BlockchainState is written by the caller).
func (tx *Tx) GetBlockchainState() (*BlockchainState, error) {
	bucket := tx.boltTx.Bucket(stateBucket)

	val := bucket.Get(stateKey)
	if val == nil {
		return nil, nil
	}
	return decodeBlockchainState(bytes.NewReader(val))
}

// UpdateState persists bs as the current chain-sync cursor. Callers are
// responsible for never letting LatestKnownBlock or LatestCommittedBlock
// regress; the store itself only persists what it is given.
func (tx *Tx) UpdateState(bs *BlockchainState) error {
	bucket := tx.boltTx.Bucket(stateBucket)

	val, err := encode(bs.Encode)
	if err != nil {
		return err
	}
	return bucket.Put(stateKey, val)
}
