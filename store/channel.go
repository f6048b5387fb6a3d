package store

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// channelKey builds the bucket key for a channel: token network address
// followed by the fixed-width channel identifier, mirroring the way
// channeldb concatenates the node pubkey and channel outpoint into a single
// bucket key.
func channelKey(tokenNetwork common.Address, channelID *big.Int) []byte {
	key := make([]byte, 0, common.AddressLength+32)
	key = append(key, tokenNetwork.Bytes()...)
	key = append(key, putUint256BE(channelID)...)
	return key
}

// UpsertChannel inserts or replaces a channel by identity, preserving the
// invariant that ClosingBlock is set iff State is CLOSED or SETTLED.
func (tx *Tx) UpsertChannel(c *Channel) error {
	if (c.ClosingBlock != nil) != (c.State == ChannelStateClosed || c.State == ChannelStateSettled) {
		return fmt.Errorf("invariant violation: closing_block set=%v but state=%v",
			c.ClosingBlock != nil, c.State)
	}

	bucket := tx.boltTx.Bucket(channelBucket)
	key := channelKey(c.TokenNetworkAddress, c.ChannelIdentifier)

	val, err := encode(c.Encode)
	if err != nil {
		return err
	}
	return bucket.Put(key, val)
}

// GetChannel fetches a channel by identity, returning (nil, nil) if it does
// not exist.
func (tx *Tx) GetChannel(tokenNetwork common.Address, channelID *big.Int) (*Channel, error) {
	bucket := tx.boltTx.Bucket(channelBucket)
	key := channelKey(tokenNetwork, channelID)

	val := bucket.Get(key)
	if val == nil {
		return nil, nil
	}

	return decodeChannel(bytes.NewReader(val))
}

// AllChannels returns every stored channel. The daemon calls this once at
// startup to rehydrate the ingester's in-memory set of known token networks,
// which does not itself survive a restart.
func (tx *Tx) AllChannels() ([]*Channel, error) {
	bucket := tx.boltTx.Bucket(channelBucket)

	var channels []*Channel
	err := bucket.ForEach(func(k, v []byte) error {
		c, err := decodeChannel(bytes.NewReader(v))
		if err != nil {
			return err
		}
		channels = append(channels, c)
		return nil
	})
	return channels, err
}
