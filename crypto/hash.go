package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// Keccak256 hashes the concatenation of data. Sale commitments (allowlist
// roots, spillover placement) use Keccak so off-chain tooling built for EVM
// allowlists can produce compatible proofs.
func Keccak256(data ...[]byte) common.Hash {
	return ethcrypto.Keccak256Hash(data...)
}
