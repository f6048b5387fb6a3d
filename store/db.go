// Package store is the persistence layer for the monitoring service. It
// holds channels, monitor requests, scheduled events, waiting transaction
// hashes, and the chain-sync cursor, backed by a single bbolt file the way
// channeldb backs lnd with a single boltdb file.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	bolt "go.etcd.io/bbolt"
)

const dbFilePermission = 0600

var (
	channelBucket        = []byte("channels")
	monitorRequestBucket = []byte("monitor-requests")
	scheduledEventBucket = []byte("scheduled-events")
	waitingTxBucket      = []byte("waiting-transactions")
	stateBucket          = []byte("blockchain-state")

	stateKey = []byte("state")
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by store. This should be
// called before the package is used, matching the UseLogger convention the
// rest of the daemon's subsystems follow.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// DB is the primary datastore for the monitoring service. It wraps a
// single bbolt file and exposes transactional operations: one commit per
// processed block, applied atomically.
type DB struct {
	bolt   *bolt.DB
	dbPath string
}

// Open opens (creating if necessary) the monitoring service's database at
// dbPath, ensuring every top-level bucket exists.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("unable to create db directory: %w", err)
	}

	bdb, err := bolt.Open(dbPath, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open db: %w", err)
	}

	db := &DB{bolt: bdb, dbPath: dbPath}
	if err := db.createBuckets(); err != nil {
		bdb.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) createBuckets() error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			channelBucket, monitorRequestBucket, scheduledEventBucket,
			waitingTxBucket, stateBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("unable to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Close releases the underlying file handle.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// Tx is a single read-write transaction spanning every write that belongs
// to one processed block or one ingested monitor request; writes from
// different blocks are never interleaved.
type Tx struct {
	boltTx *bolt.Tx
}

// Begin opens a new read-write transaction. Callers must Commit or
// Rollback it.
func (d *DB) Begin() (*Tx, error) {
	boltTx, err := d.bolt.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	return &Tx{boltTx: boltTx}, nil
}

// Commit finalizes the transaction, persisting all of its writes
// atomically.
func (tx *Tx) Commit() error {
	return tx.boltTx.Commit()
}

// Rollback discards the transaction without persisting any of its writes.
func (tx *Tx) Rollback() error {
	return tx.boltTx.Rollback()
}

// Update runs fn inside a fresh read-write transaction, committing on
// success and rolling back on error or panic — the single-closure
// convenience channeldb offers via bolt.DB.Update, for call sites that
// don't need manual Begin/Commit (e.g. the ingester, which only ever
// performs one upsert per message).
func (d *DB) Update(fn func(tx *Tx) error) error {
	boltTx, err := d.bolt.Begin(true)
	if err != nil {
		return err
	}
	tx := &Tx{boltTx: boltTx}

	defer func() {
		if r := recover(); r != nil {
			_ = boltTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = boltTx.Rollback()
		return err
	}
	return boltTx.Commit()
}

// View runs fn inside a read-only transaction.
func (d *DB) View(fn func(tx *Tx) error) error {
	boltTx, err := d.bolt.Begin(false)
	if err != nil {
		return err
	}
	defer boltTx.Rollback()

	tx := &Tx{boltTx: boltTx}
	return fn(tx)
}
