package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// byteOrder is the encoding used for all fixed-width integers persisted in
// the store. Big endian is preferred so that bbolt's natural byte-wise key
// ordering also orders keys numerically, the same reasoning channeldb
// applies to its own bucket keys.
var byteOrder = binary.BigEndian

func writeUint64(w io.Writer, v uint64) error {
	var scratch [8]byte
	byteOrder.PutUint64(scratch[:], v)
	_, err := w.Write(scratch[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var scratch [8]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(scratch[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var scratch [4]byte
	byteOrder.PutUint32(scratch[:], v)
	_, err := w.Write(scratch[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(scratch[:]), nil
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var scratch [1]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return false, err
	}
	return scratch[0] == 1, nil
}

func writeAddress(w io.Writer, addr common.Address) error {
	_, err := w.Write(addr.Bytes())
	return err
}

func readAddress(r io.Reader) (common.Address, error) {
	var scratch [common.AddressLength]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(scratch[:]), nil
}

func writeHash(w io.Writer, h common.Hash) error {
	_, err := w.Write(h.Bytes())
	return err
}

func readHash(r io.Reader) (common.Hash, error) {
	var scratch [common.HashLength]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(scratch[:]), nil
}

// writeBytes writes a length-prefixed byte slice, used for variable-length
// signatures and big.Int magnitudes.
func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeBigInt writes a big.Int as a length-prefixed big-endian byte slice.
// A nil value is encoded the same as zero.
func writeBigInt(w io.Writer, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	return writeBytes(w, v.Bytes())
}

func readBigInt(r io.Reader) (*big.Int, error) {
	b, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// putUint256BE writes v as a fixed 32-byte big-endian field, used only for
// bucket keys where fixed width (and therefore correct byte-wise ordering)
// matters. Values are never expected to exceed 256 bits since they originate
// from EVM uint256 contract fields.
func putUint256BE(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// encode runs enc against a fresh buffer and returns the resulting bytes,
// the pattern channeldb uses throughout (e.g. writeOutpoint into a
// bytes.Buffer before a bucket Put).
func encode(enc func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc(&buf); err != nil {
		return nil, fmt.Errorf("unable to encode: %w", err)
	}
	return buf.Bytes(), nil
}
