package sale

import "github.com/holiman/uint256"

// NativeLedger moves the chain's settlement coin.
type NativeLedger interface {
	BalanceOf(addr string) (*uint256.Int, error)
	Transfer(from, to string, amount *uint256.Int) error
}

// SecondaryLedger moves the secondary coin on behalf of an approved spender.
type SecondaryLedger interface {
	TransferFrom(spender, from, to string, amount *uint256.Int) error
}

// AssetLedger holds the unique asset bundled in each book.
type AssetLedger interface {
	OwnerOf(assetID string) (string, error)
	Transfer(from, to, assetID string) error
	Reveal(assetID string) error
}

// ToolLedger holds tool units and bonus collectibles.
type ToolLedger interface {
	BatchTransfer(from, to string, ids, amounts []uint64) error
}

// Ledgers are the external collaborators the engine settles against. They
// must write through the same state as the engine so a failed call unwinds
// both.
type Ledgers struct {
	Native    NativeLedger
	Secondary SecondaryLedger
	Assets    AssetLedger
	Tools     ToolLedger
}
