package store

import "bytes"

// AddWaitingTransaction records txHash as awaiting confirmation, tagged
// with the channel/action that produced it. Adding a hash that is already
// tracked replaces its stored entry.
func (tx *Tx) AddWaitingTransaction(wt *WaitingTransaction) error {
	bucket := tx.boltTx.Bucket(waitingTxBucket)

	val, err := encode(wt.Encode)
	if err != nil {
		return err
	}
	return bucket.Put(wt.TxHash.Bytes(), val)
}

// RemoveWaitingTransaction stops tracking txHash, called once its receipt
// has been observed (confirmed or reverted).
func (tx *Tx) RemoveWaitingTransaction(txHash []byte) error {
	bucket := tx.boltTx.Bucket(waitingTxBucket)
	return bucket.Delete(txHash)
}

// ListWaitingTransactions returns every tx hash currently awaiting
// confirmation, replayed on startup.
func (tx *Tx) ListWaitingTransactions() ([]*WaitingTransaction, error) {
	bucket := tx.boltTx.Bucket(waitingTxBucket)

	var pending []*WaitingTransaction
	err := bucket.ForEach(func(k, v []byte) error {
		wt, err := decodeWaitingTransaction(bytes.NewReader(v))
		if err != nil {
			return err
		}
		pending = append(pending, wt)
		return nil
	})
	return pending, err
}
