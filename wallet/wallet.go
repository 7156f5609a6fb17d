package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, which is also the
// account address.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed native transfer.
func (w *Wallet) Transfer(chainID, to string, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// BuyBooks creates a signed purchase in the active round, attaching value.
func (w *Wallet) BuyBooks(chainID string, qty uint64, mode core.PaymentMode, value *uint256.Int, proof []common.Hash, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuyBooks, nonce, fee, core.BuyBooksPayload{
		Quantity: qty,
		Mode:     mode,
		Value:    value,
		Proof:    proof,
	})
}

// OpenBooks creates a signed redemption of held books.
func (w *Wallet) OpenBooks(chainID string, ids []uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxOpenBooks, nonce, fee, core.OpenBooksPayload{BookIDs: ids})
}
