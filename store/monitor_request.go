package store

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// monitorRequestKey is (token_network_address, channel_identifier,
// non_closing_signer).
func monitorRequestKey(tokenNetwork common.Address, channelID *big.Int, nonClosingSigner common.Address) []byte {
	key := make([]byte, 0, common.AddressLength*2+32)
	key = append(key, tokenNetwork.Bytes()...)
	key = append(key, putUint256BE(channelID)...)
	key = append(key, nonClosingSigner.Bytes()...)
	return key
}

// UpsertMonitorRequest replaces the stored MonitorRequest iff mr.Nonce is
// strictly greater than the existing one's nonce; otherwise it is a no-op.
// The participant-pair invariant is enforced by the caller (the ingester)
// before this is ever called.
func (tx *Tx) UpsertMonitorRequest(mr *MonitorRequest) error {
	bucket := tx.boltTx.Bucket(monitorRequestBucket)
	key := monitorRequestKey(mr.TokenNetworkAddress, mr.ChannelIdentifier, mr.NonClosingSigner)

	if existing := bucket.Get(key); existing != nil {
		old, err := decodeMonitorRequest(bytes.NewReader(existing))
		if err != nil {
			return err
		}
		if mr.Nonce <= old.Nonce {
			return nil
		}
	}

	val, err := encode(mr.Encode)
	if err != nil {
		return err
	}
	return bucket.Put(key, val)
}

// GetMonitorRequest fetches the stored MonitorRequest for (tokenNetwork,
// channelID, nonClosingSigner), returning (nil, nil) if none exists.
func (tx *Tx) GetMonitorRequest(tokenNetwork common.Address, channelID *big.Int, nonClosingSigner common.Address) (*MonitorRequest, error) {
	bucket := tx.boltTx.Bucket(monitorRequestBucket)
	key := monitorRequestKey(tokenNetwork, channelID, nonClosingSigner)

	val := bucket.Get(key)
	if val == nil {
		return nil, nil
	}
	return decodeMonitorRequest(bytes.NewReader(val))
}
