// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tolbook/crypto"
)

const (
	kdfName          = "pbkdf2-sha256"
	kdfIterations    = 210_000
	keystoreVersion  = 1
	keystoreFileMode = 0o600
)

var (
	// ErrWrongPassword is returned when the keystore does not decrypt.
	ErrWrongPassword = errors.New("wallet: wrong password or corrupted keystore")
	// ErrKeyMismatch is returned when the decrypted key is not the one the
	// keystore claims to hold.
	ErrKeyMismatch = errors.New("wallet: keystore public key does not match decrypted key")
)

// keystoreFile records the KDF parameters it was sealed with so files
// written with older settings still open.
type keystoreFile struct {
	Version    int    `json:"version"`
	PubKey     string `json:"pub_key"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// SaveKey encrypts priv with password (AES-GCM under a PBKDF2-SHA256 key)
// and writes it to path.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	aead, err := sealer(password, salt, kdfIterations)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	ks := keystoreFile{
		Version:    keystoreVersion,
		PubKey:     priv.Public().Hex(),
		KDF:        kdfName,
		Iterations: kdfIterations,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(aead.Seal(nil, nonce, priv, []byte(priv.Public().Hex()))),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, keystoreFileMode)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	if ks.KDF != kdfName || ks.Iterations <= 0 {
		return nil, fmt.Errorf("keystore %s: unsupported kdf %q", path, ks.KDF)
	}
	raw := make(map[string][]byte, 3)
	for field, val := range map[string]string{"salt": ks.Salt, "nonce": ks.Nonce, "cipher_text": ks.CipherText} {
		b, err := hex.DecodeString(val)
		if err != nil {
			return nil, fmt.Errorf("keystore %s: %s: %w", path, field, err)
		}
		raw[field] = b
	}

	aead, err := sealer(password, raw["salt"], ks.Iterations)
	if err != nil {
		return nil, err
	}
	if len(raw["nonce"]) != aead.NonceSize() {
		return nil, fmt.Errorf("keystore %s: nonce is %d bytes", path, len(raw["nonce"]))
	}
	privBytes, err := aead.Open(nil, raw["nonce"], raw["cipher_text"], []byte(ks.PubKey))
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv, err := crypto.PrivKeyFromHex(hex.EncodeToString(privBytes))
	if err != nil {
		return nil, err
	}
	if priv.Public().Hex() != ks.PubKey {
		return nil, ErrKeyMismatch
	}
	return priv, nil
}

func sealer(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// LoadOrCreate opens the keystore at path, creating it with a fresh key when
// the file does not exist. The boolean reports whether a key was created.
func LoadOrCreate(path, password string) (crypto.PrivateKey, bool, error) {
	if password == "" {
		return nil, false, errors.New("keystore password required")
	}
	priv, err := LoadKey(path, password)
	if err == nil {
		return priv, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("load keystore %s: %w", path, err)
	}
	priv, _, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	if err := SaveKey(path, password, priv); err != nil {
		return nil, false, fmt.Errorf("save keystore %s: %w", path, err)
	}
	return priv, true, nil
}
