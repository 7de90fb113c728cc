package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexuscore/agentrt/internal/signer/eip712"
)

// LocalSigner holds a private key in-process. It exists for single-process
// deployments and tests that don't run a separate secretsbrokerd; production
// deployments use BrokerSigner instead.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewLocalSigner parses a hex-encoded secp256k1 private key.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid local key: %w", err)
	}
	return &LocalSigner{
		key:     priv,
		address: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}, nil
}

func (s *LocalSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return crypto.Sign(eip712.PersonalMessageHash(message), s.key)
}

func (s *LocalSigner) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	digest, err := eip712.Digest(typedData)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid typed data: %w", err)
	}
	return crypto.Sign(digest, s.key)
}

func (s *LocalSigner) Address(ctx context.Context) (string, error) {
	return s.address, nil
}
