package core

import "github.com/holiman/uint256"

// Account holds a participant's native balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string       `json:"address"` // pubkey hex
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}

// Asset is a unique collectible held on the asset ledger. Books bundle exactly
// one of these; it stays unrevealed until its book is opened.
type Asset struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Owner      string         `json:"owner"` // pubkey hex
	Properties map[string]any `json:"properties"`
	Revealed   bool           `json:"revealed"`
	MintedAt   int64          `json:"minted_at"`
}

// AssetTemplate defines the schema for a class of unique assets.
type AssetTemplate struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Schema  map[string]any `json:"schema"`  // property key → type hint
	Creator string         `json:"creator"` // pubkey hex of registrant
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Unique assets
	GetAsset(id string) (*Asset, error)
	SetAsset(asset *Asset) error
	DeleteAsset(id string) error

	// Templates
	GetTemplate(id string) (*AssetTemplate, error)
	SetTemplate(t *AssetTemplate) error

	// Batch tokens (tools and bonus collectibles), keyed by numeric token id.
	GetToolBalance(owner string, tokenID uint64) (uint64, error)
	SetToolBalance(owner string, tokenID uint64, amount uint64) error

	// Secondary fungible asset with pull-based allowances.
	GetSecondaryBalance(owner string) (*uint256.Int, error)
	SetSecondaryBalance(owner string, amount *uint256.Int) error
	GetSecondaryAllowance(owner, spender string) (*uint256.Int, error)
	SetSecondaryAllowance(owner, spender string, amount *uint256.Int) error

	SaleState

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}

// SaleState is the persistence surface of the book sale.
type SaleState interface {
	GetSaleConfig() (*SaleConfig, error)
	SetSaleConfig(cfg *SaleConfig) error

	GetRound(id uint8) (*Round, error)
	SetRound(r *Round) error

	GetContainer(ref ContainerRef) (*Container, error)
	SetContainer(c *Container) error

	GetAllowance(round uint8, address string) (*Allowance, error)
	SetAllowance(a *Allowance) error

	GetBook(id uint64) (*Book, error)
	SetBook(b *Book) error
	DeleteBook(id uint64) error
	IsBookOpened(id uint64) (bool, error)
	MarkBookOpened(id uint64) error

	GetMinterTotal(address string) (uint64, error)
	SetMinterTotal(address string, total uint64) error
	GetMinters() ([]string, error)
	AppendMinter(address string) error
}
