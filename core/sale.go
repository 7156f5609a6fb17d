package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Sale shape constants.
const (
	AdminRound     uint8 = 0
	MaxRound       uint8 = 4
	NumPools             = 2
	NumBuckets           = 8
	ToolsPerBook         = 3
	NumCategories        = 4
	MaxLeaderboard       = 50
)

// RoundKind tags the eligibility rule a round enforces.
type RoundKind string

const (
	RoundAdmin     RoundKind = "admin"
	RoundAllowance RoundKind = "allowance"
	RoundProof     RoundKind = "proof"
	RoundOpen      RoundKind = "open"
)

// KindOfRound returns the fixed kind of round id, or "" if id is out of range.
func KindOfRound(id uint8) RoundKind {
	switch id {
	case 0:
		return RoundAdmin
	case 1, 2:
		return RoundAllowance
	case 3:
		return RoundProof
	case 4:
		return RoundOpen
	}
	return ""
}

// PaymentTerms are the per-book prices of a round. DualSecondary == 0 means
// the dual-asset mode is not offered.
type PaymentTerms struct {
	Single        *uint256.Int `json:"single"`
	DualNative    *uint256.Int `json:"dual_native"`
	DualSecondary *uint256.Int `json:"dual_secondary"`
}

// Round is a time-boxed sale window. Start and End are unix seconds, inclusive.
type Round struct {
	ID      uint8        `json:"id"`
	Kind    RoundKind    `json:"kind"`
	Start   int64        `json:"start"`
	End     int64        `json:"end"`
	Active  bool         `json:"active"`
	Payment PaymentTerms `json:"payment"`
}

// Contains reports whether now falls inside the round's window.
func (r *Round) Contains(now int64) bool {
	return r.Start <= now && now <= r.End
}

// ContainerKind distinguishes pools from buckets.
type ContainerKind string

const (
	KindPool   ContainerKind = "pool"
	KindBucket ContainerKind = "bucket"
)

// ContainerRef names one inventory container: pool 1..2 or bucket 0..7.
type ContainerRef struct {
	Kind  ContainerKind `json:"kind"`
	Index uint8         `json:"index"`
}

// PoolRef returns the reference of pool n (1 or 2).
func PoolRef(n uint8) ContainerRef { return ContainerRef{Kind: KindPool, Index: n} }

// BucketRef returns the reference of bucket i (0..7).
func BucketRef(i uint8) ContainerRef { return ContainerRef{Kind: KindBucket, Index: i} }

// Validate checks the index range for the container kind.
func (r ContainerRef) Validate() error {
	switch r.Kind {
	case KindPool:
		if r.Index < 1 || r.Index > NumPools {
			return fmt.Errorf("pool index %d out of range 1..%d", r.Index, NumPools)
		}
	case KindBucket:
		if r.Index >= NumBuckets {
			return fmt.Errorf("bucket index %d out of range 0..%d", r.Index, NumBuckets-1)
		}
	default:
		return fmt.Errorf("unknown container kind %q", r.Kind)
	}
	return nil
}

func (r ContainerRef) String() string {
	return fmt.Sprintf("%s%d", r.Kind, r.Index)
}

// Container is an ordered list of book ids dispensed front to back.
// Counts holds per-category audit figures supplied when it was loaded.
type Container struct {
	Ref       ContainerRef          `json:"ref"`
	IDs       []uint64              `json:"ids"`
	Cursor    uint64                `json:"cursor"`
	Exhausted bool                  `json:"exhausted"`
	Counts    [NumCategories]uint64 `json:"counts"`
}

// Remaining returns how many ids are still undispensed.
func (c *Container) Remaining() uint64 {
	if c.Exhausted || c.Cursor >= uint64(len(c.IDs)) {
		return 0
	}
	return uint64(len(c.IDs)) - c.Cursor
}

// Allowance is an address's purchase ceiling in an allowance round.
// Minted never exceeds Allowance after a successful buy.
type Allowance struct {
	Round     uint8  `json:"round"`
	Address   string `json:"address"`
	Allowance uint64 `json:"allowance"`
	Minted    uint64 `json:"minted"`
}

// Book bundles one unique asset, three tool units and an optional bonus
// collectible. Holder is empty while the book is unallocated inventory.
type Book struct {
	ID        uint64               `json:"id"`
	AssetID   string               `json:"asset_id"`
	ToolIDs   [ToolsPerBook]uint64 `json:"tool_ids"`
	BonusID   uint64               `json:"bonus_id"`
	HasBonus  bool                 `json:"has_bonus"`
	Category  string               `json:"category"`
	Holder    string               `json:"holder,omitempty"`
	Round     uint8                `json:"round"`
	CreatedAt int64                `json:"created_at"`
}

// SaleConfig is the singleton sale configuration and shared cursor state.
// Version increases on every committed mutation of sale state.
type SaleConfig struct {
	Owner        string      `json:"owner"`
	Treasury     string      `json:"treasury"`
	Vault        string      `json:"vault"`
	MaxPerTx     uint64      `json:"max_per_tx"`
	MerkleRoot   common.Hash `json:"merkle_root"`
	BucketCursor uint8       `json:"bucket_cursor"`
	Spilled      bool        `json:"spilled"`
	Version      uint64      `json:"version"`
}

// MinterEntry is one leaderboard row.
type MinterEntry struct {
	Address string `json:"address"`
	Total   uint64 `json:"total"`
}
