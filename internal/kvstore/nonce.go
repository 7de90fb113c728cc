package kvstore

import (
	"context"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNonceUsed is returned when a nonce has already been marked used.
var ErrNonceUsed = errors.New("kvstore: nonce already used")

// NonceSet provides replay protection for payment and signature nonces:
// marking a nonce used is idempotent-failing — the first mark wins, every
// later mark returns ErrNonceUsed with no side effects.
type NonceSet struct {
	store Store
	ttl   time.Duration
}

// NewNonceSet wraps store. ttl bounds how long a used mark is retained;
// ttl <= 0 retains marks indefinitely.
func NewNonceSet(store Store, ttl time.Duration) *NonceSet {
	return &NonceSet{store: store, ttl: ttl}
}

func nonceKey(nonce []byte) string {
	return "nonce:" + hex.EncodeToString(nonce)
}

// MarkUsed records nonce as consumed. The mark is a CAS-create: it
// succeeds only when no mark exists, so two racing callers cannot both
// win.
func (n *NonceSet) MarkUsed(ctx context.Context, nonce []byte) error {
	err := n.store.CompareAndSwap(ctx, nonceKey(nonce), nil, []byte("used"), n.ttl)
	if errors.Is(err, ErrCASMismatch) {
		return ErrNonceUsed
	}
	return err
}

// IsUsed reports whether nonce has been marked. Absence of a record is
// never taken as positive confirmation of anything beyond "not yet seen
// here".
func (n *NonceSet) IsUsed(ctx context.Context, nonce []byte) (bool, error) {
	_, err := n.store.Get(ctx, nonceKey(nonce))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
