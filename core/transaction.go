package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	// ledgers
	TxTransfer          TxType = "transfer"
	TxRegisterTemplate  TxType = "register_template"
	TxMintAsset         TxType = "mint_asset"
	TxBurnAsset         TxType = "burn_asset"
	TxTransferAsset     TxType = "transfer_asset"
	TxMintTools         TxType = "mint_tools"
	TxTransferTools     TxType = "transfer_tools"
	TxTransferSecondary TxType = "transfer_secondary"
	TxApproveSecondary  TxType = "approve_secondary"

	// sale administration (owner only)
	TxConfigureRound    TxType = "configure_round"
	TxConfigurePayment  TxType = "configure_payment"
	TxSetAllowances     TxType = "set_allowances"
	TxSetMerkleRoot     TxType = "set_merkle_root"
	TxRegisterBooks     TxType = "register_books"
	TxLoadPool          TxType = "load_pool"
	TxLoadBucket        TxType = "load_bucket"
	TxDistributeSpill   TxType = "distribute_spillover"
	TxSetTreasury       TxType = "set_treasury"
	TxSetMaxPerTx       TxType = "set_max_per_tx"
	TxAdminAllocate     TxType = "admin_allocate"
	TxTransferSaleOwner TxType = "transfer_sale_ownership"

	// buyers
	TxBuyBooks     TxType = "buy_books"
	TxOpenBooks    TxType = "open_books"
	TxTransferBook TxType = "transfer_book"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	return crypto.VerifyAddress(tx.From, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Ledger payloads ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

// RegisterTemplatePayload defines a new class of unique assets.
type RegisterTemplatePayload struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"` // allowed property keys → type hints
}

// MintAssetPayload mints a new unique asset from a registered template.
type MintAssetPayload struct {
	TemplateID string         `json:"template_id"`
	Owner      string         `json:"owner"` // recipient pubkey hex
	Properties map[string]any `json:"properties"`
}

// BurnAssetPayload permanently destroys an asset.
type BurnAssetPayload struct {
	AssetID string `json:"asset_id"`
}

// TransferAssetPayload moves an asset to a new owner.
type TransferAssetPayload struct {
	AssetID string `json:"asset_id"`
	To      string `json:"to"` // recipient pubkey hex
}

// MintToolsPayload credits batch-token units to an account (sale owner only).
type MintToolsPayload struct {
	To      string   `json:"to"`
	IDs     []uint64 `json:"ids"`
	Amounts []uint64 `json:"amounts"`
}

// TransferToolsPayload moves batch-token units between accounts.
type TransferToolsPayload struct {
	To      string   `json:"to"`
	IDs     []uint64 `json:"ids"`
	Amounts []uint64 `json:"amounts"`
}

// TransferSecondaryPayload moves the secondary fungible asset.
type TransferSecondaryPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

// ApproveSecondaryPayload sets how much spender may pull from the sender.
type ApproveSecondaryPayload struct {
	Spender string       `json:"spender"`
	Amount  *uint256.Int `json:"amount"`
}

// ---- Sale payloads ----

// ConfigureRoundPayload sets a round's window and activates it.
type ConfigureRoundPayload struct {
	Round uint8 `json:"round"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ConfigurePaymentPayload sets a round's per-book prices.
type ConfigurePaymentPayload struct {
	Round         uint8        `json:"round"`
	Single        *uint256.Int `json:"single"`
	DualNative    *uint256.Int `json:"dual_native"`
	DualSecondary *uint256.Int `json:"dual_secondary"`
}

// SetAllowancesPayload overwrites allowance ceilings for an allowance round.
type SetAllowancesPayload struct {
	Round      uint8    `json:"round"`
	Addresses  []string `json:"addresses"`
	Allowances []uint64 `json:"allowances"`
}

// SetMerkleRootPayload replaces the proof-round commitment.
type SetMerkleRootPayload struct {
	Root common.Hash `json:"root"`
}

// BookSpec describes a book to register.
type BookSpec struct {
	ID       uint64               `json:"id"`
	AssetID  string               `json:"asset_id"`
	ToolIDs  [ToolsPerBook]uint64 `json:"tool_ids"`
	BonusID  uint64               `json:"bonus_id"`
	Category string               `json:"category"`
}

// RegisterBooksPayload registers book records backed by vault-held assets.
type RegisterBooksPayload struct {
	Books []BookSpec `json:"books"`
}

// LoadPoolPayload replaces the contents of pool 1 or 2.
type LoadPoolPayload struct {
	Pool uint8    `json:"pool"`
	IDs  []uint64 `json:"ids"`
}

// LoadBucketPayload replaces the contents of bucket 0..7.
type LoadBucketPayload struct {
	Bucket uint8                 `json:"bucket"`
	IDs    []uint64              `json:"ids"`
	Counts [NumCategories]uint64 `json:"counts"`
}

// SetTreasuryPayload changes the payment recipient.
type SetTreasuryPayload struct {
	Treasury string `json:"treasury"`
}

// SetMaxPerTxPayload changes the per-call quantity cap.
type SetMaxPerTxPayload struct {
	MaxPerTx uint64 `json:"max_per_tx"`
}

// AdminAllocatePayload hands books from a container to a recipient outside
// the round system.
type AdminAllocatePayload struct {
	To       string       `json:"to"`
	Source   ContainerRef `json:"source"`
	Quantity uint64       `json:"quantity"`
}

// TransferSaleOwnerPayload hands sale administration to a new owner.
type TransferSaleOwnerPayload struct {
	Owner string `json:"owner"`
}

// PaymentMode selects how a buyer settles.
type PaymentMode string

const (
	PaySingle PaymentMode = "single"
	PayDual   PaymentMode = "dual"
)

// BuyBooksPayload buys Quantity books in the currently active round.
// Value is the native amount attached to the request.
type BuyBooksPayload struct {
	Quantity uint64        `json:"quantity"`
	Mode     PaymentMode   `json:"mode"`
	Value    *uint256.Int  `json:"value"`
	Proof    []common.Hash `json:"proof,omitempty"`
}

// OpenBooksPayload redeems held books into their bundles.
type OpenBooksPayload struct {
	BookIDs []uint64 `json:"book_ids"`
}

// TransferBookPayload moves an unopened book to a new holder.
type TransferBookPayload struct {
	BookID uint64 `json:"book_id"`
	To     string `json:"to"`
}
