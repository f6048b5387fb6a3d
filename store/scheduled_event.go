package store

import (
	"bytes"
	"sort"
)

// UpsertScheduledEvent stores se, replacing any existing event for the
// same action identity (se.Key()). This keeps at most one MONITOR and one
// CLAIM_REWARD scheduled per (token network, channel, non-closing
// participant) at any time.
func (tx *Tx) UpsertScheduledEvent(se *ScheduledEvent) error {
	bucket := tx.boltTx.Bucket(scheduledEventBucket)

	val, err := encode(se.Encode)
	if err != nil {
		return err
	}
	return bucket.Put(se.Key(), val)
}

// RemoveScheduledEvent deletes the scheduled event for the given action
// identity, if any. It is a no-op if none is scheduled.
func (tx *Tx) RemoveScheduledEvent(key []byte) error {
	bucket := tx.boltTx.Bucket(scheduledEventBucket)
	return bucket.Delete(key)
}

// DueScheduledEvents returns every scheduled event with TriggerBlockNumber
// at most block, ordered ascending by trigger block and, for events due at
// the same block, by action identity — a stable, deterministic tie-break
// since the store does not track insertion order across restarts.
func (tx *Tx) DueScheduledEvents(block uint64) ([]*ScheduledEvent, error) {
	bucket := tx.boltTx.Bucket(scheduledEventBucket)

	var due []*ScheduledEvent
	err := bucket.ForEach(func(k, v []byte) error {
		se, err := decodeScheduledEvent(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if se.TriggerBlockNumber <= block {
			due = append(due, se)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].TriggerBlockNumber != due[j].TriggerBlockNumber {
			return due[i].TriggerBlockNumber < due[j].TriggerBlockNumber
		}
		return bytes.Compare(due[i].Key(), due[j].Key()) < 0
	})

	return due, nil
}

// AllScheduledEvents returns every scheduled event regardless of trigger
// block, used by tests and diagnostics.
func (tx *Tx) AllScheduledEvents() ([]*ScheduledEvent, error) {
	bucket := tx.boltTx.Bucket(scheduledEventBucket)

	var events []*ScheduledEvent
	err := bucket.ForEach(func(k, v []byte) error {
		se, err := decodeScheduledEvent(bytes.NewReader(v))
		if err != nil {
			return err
		}
		events = append(events, se)
		return nil
	})
	return events, err
}
