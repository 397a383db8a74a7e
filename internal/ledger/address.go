package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Seed is the domain-separation constant mixed into every derived market
// address. Changing it would re-key every market, so it is fixed for the
// lifetime of the ledger.
const Seed = "Pulse_Ratings_by_UDL_PC_AL"

// Version is the ledger contract version.
const Version = "1.0.0"

// Normalize case-folds and trims a URL. All registry lookups and address
// derivations operate on the normalized form.
func Normalize(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// DeriveAddress maps a normalized URL to its market address: the low 20
// bytes of keccak256(Seed || url). It is pure and total over non-empty
// strings; the same URL always yields the same address, so callers can
// predict a market's identity before it exists and the ledger can reject
// duplicates without a registry lookup.
func DeriveAddress(normalizedURL string) common.Address {
	digest := ethcrypto.Keccak256([]byte(Seed), []byte(normalizedURL))
	return common.BytesToAddress(digest[12:])
}
