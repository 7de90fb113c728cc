package broker

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexuscore/agentrt/internal/signer/eip712"
)

// keyring holds the private key material the broker signs with. It never
// leaves this package — the runtime process only ever sees signatures and
// addresses.
type keyring struct {
	keys map[string]*ecdsa.PrivateKey
}

func newKeyring() *keyring {
	return &keyring{keys: make(map[string]*ecdsa.PrivateKey)}
}

// loadHexKey registers a secp256k1 key (as used by local_signer.go's
// LocalSigner) under keyID, parsing it the same way go-ethereum's keystore does.
func (k *keyring) loadHexKey(keyID, hexKey string) error {
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return fmt.Errorf("broker: invalid key for %q: %w", keyID, err)
	}
	k.keys[keyID] = priv
	return nil
}

func (k *keyring) address(keyID string) (string, error) {
	priv, ok := k.keys[keyID]
	if !ok {
		return "", fmt.Errorf("broker: unknown key id %q", keyID)
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

// signMessage signs an arbitrary message using Ethereum's "personal_sign"
// convention: the message is prefixed before hashing so a signed message can
// never be replayed as a signed transaction.
func (k *keyring) signMessage(keyID string, message []byte) ([]byte, error) {
	priv, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("broker: unknown key id %q", keyID)
	}
	return crypto.Sign(eip712.PersonalMessageHash(message), priv)
}

func (k *keyring) signTypedData(keyID string, raw json.RawMessage) ([]byte, error) {
	priv, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("broker: unknown key id %q", keyID)
	}
	digest, err := eip712.Digest(raw)
	if err != nil {
		return nil, fmt.Errorf("broker: invalid typed data: %w", err)
	}
	return crypto.Sign(digest, priv)
}
