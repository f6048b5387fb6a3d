package chainadapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Message type tags distinguishing the three digests the contracts accept
// signatures over. Values are fixed by the on-chain ABI.
const (
	msgTypeBalanceProof       = 1
	msgTypeBalanceProofUpdate = 2
	msgTypeRewardProof        = 3
)

func uint256BE(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// BalanceProofDigest reproduces the digest a channel participant signs over
// a balance proof. msgType distinguishes a plain balance proof (1, signed by
// the closing participant) from a balance-proof update (2, signed by the
// non-closing participant over digest‖closingSignature).
func BalanceProofDigest(tokenNetwork common.Address, chainID uint64, msgType uint8, channelID *big.Int, balanceHash common.Hash, nonce uint64, additionalHash common.Hash) common.Hash {
	var buf []byte
	buf = append(buf, tokenNetwork.Bytes()...)
	buf = append(buf, uint256BE(new(big.Int).SetUint64(chainID))...)
	buf = append(buf, uint256BE(big.NewInt(int64(msgType)))...)
	buf = append(buf, uint256BE(channelID)...)
	buf = append(buf, balanceHash.Bytes()...)
	buf = append(buf, uint256BE(new(big.Int).SetUint64(nonce))...)
	buf = append(buf, additionalHash.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// RewardProofDigest reproduces the digest the non-closing participant signs
// to authorize the reward payout embedded in a MonitorRequest.
func RewardProofDigest(chainID uint64, tokenNetwork, nonClosingParticipant common.Address, rewardAmount *big.Int, channelID *big.Int, nonce uint64) common.Hash {
	var buf []byte
	buf = append(buf, uint256BE(new(big.Int).SetUint64(chainID))...)
	buf = append(buf, uint256BE(big.NewInt(msgTypeRewardProof))...)
	buf = append(buf, tokenNetwork.Bytes()...)
	buf = append(buf, nonClosingParticipant.Bytes()...)
	buf = append(buf, uint256BE(rewardAmount)...)
	buf = append(buf, uint256BE(channelID)...)
	buf = append(buf, uint256BE(new(big.Int).SetUint64(nonce))...)
	return crypto.Keccak256Hash(buf)
}

// RecoverSigner recovers the address that produced sig over digest. sig must
// be the standard 65-byte [R || S || V] form; V is normalized to 0/1 if it
// arrives as 27/28, the same adjustment go-perun's ethereum wallet backend
// makes before calling crypto.SigToPub.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errInvalidSignatureLength
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// NonClosingSignatureDigest hashes the payload the non-closing participant
// signs: the balance-proof digest followed by the closing signature.
func NonClosingSignatureDigest(balanceProofDigest common.Hash, closingSignature []byte) common.Hash {
	buf := make([]byte, 0, common.HashLength+len(closingSignature))
	buf = append(buf, balanceProofDigest.Bytes()...)
	buf = append(buf, closingSignature...)
	return crypto.Keccak256Hash(buf)
}
