package signer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nexuscore/agentrt/internal/broker"
)

// BrokerSigner delegates every operation to a secrets-broker client. It is
// the variant used whenever the runtime is deployed with a separate
// secretsbrokerd process holding the private key.
type BrokerSigner struct {
	client *broker.Client
	keyID  string

	mu      sync.Mutex
	address string
}

func NewBrokerSigner(client *broker.Client, keyID string) *BrokerSigner {
	return &BrokerSigner{client: client, keyID: keyID}
}

func (s *BrokerSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	result, err := s.client.SignMessage(ctx, broker.SignMessageRequest{KeyID: s.keyID, Message: message})
	if err != nil {
		return nil, err
	}
	return result.Signature, nil
}

func (s *BrokerSigner) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	result, err := s.client.SignTypedData(ctx, broker.SignTypedDataRequest{KeyID: s.keyID, TypedData: typedData})
	if err != nil {
		return nil, err
	}
	return result.Signature, nil
}

func (s *BrokerSigner) Address(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.address
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	result, err := s.client.GetAddress(ctx, broker.GetAddressRequest{KeyID: s.keyID})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.address = result.Address
	s.mu.Unlock()
	return result.Address, nil
}
