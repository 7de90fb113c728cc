// Package eip712 implements the minimal typed-data hashing the runtime's
// defi signing paths need: Keccak256(0x1901 || domainSeparator ||
// structHash), the same scheme wallets use for eth_signTypedData_v4. Field
// values are encoded via their JSON representation rather than full ABI
// packing — sufficient for the runtime's own structured approvals, not a
// general-purpose EIP-712 codec.
package eip712

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/crypto"
)

type TypedData struct {
	Domain      map[string]any           `json:"domain"`
	Types       map[string][]Field       `json:"types"`
	PrimaryType string                   `json:"primaryType"`
	Message     map[string]any           `json:"message"`
}

type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Digest computes the final Keccak256 digest ready to be passed to
// crypto.Sign.
func Digest(raw json.RawMessage) ([]byte, error) {
	var data TypedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	domainHash := hashStruct("EIP712Domain", data.Types["EIP712Domain"], data.Domain)
	messageHash := hashStruct(data.PrimaryType, data.Types[data.PrimaryType], data.Message)

	digest := append([]byte{0x19, 0x01}, domainHash...)
	digest = append(digest, messageHash...)
	return crypto.Keccak256(digest), nil
}

func hashStruct(primaryType string, fields []Field, values map[string]any) []byte {
	typeSig := primaryType + "("
	for i, f := range fields {
		if i > 0 {
			typeSig += ","
		}
		typeSig += f.Type + " " + f.Name
	}
	typeSig += ")"
	typeHash := crypto.Keccak256([]byte(typeSig))

	encoded := typeHash
	for _, f := range fields {
		v := values[f.Name]
		b, _ := json.Marshal(v)
		encoded = append(encoded, crypto.Keccak256(b)...)
	}
	return crypto.Keccak256(encoded)
}

// PersonalMessageHash hashes a message using the "personal_sign" prefix
// convention, preventing a signed message from being replayed as a
// transaction.
func PersonalMessageHash(message []byte) []byte {
	prefixed := []byte("\x19Ethereum Signed Message:\n")
	prefixed = append(prefixed, []byte(itoa(len(message)))...)
	prefixed = append(prefixed, message...)
	return crypto.Keccak256(prefixed)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
