// Package approval implements the transaction approval manager: every
// on-chain intent is either auto-approved against a whitelist and spend
// caps, or parked pending human resolution with a TTL-based expiry sweep.
// Exactly one resolution wins per record; repeated resolutions past a
// terminal state return the terminal outcome.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/internal/ssrf"
)

// State is a record's position in the approval state machine:
// pending -> {approved, rejected, expired}; approved -> executed.
// Terminal states never transition further.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
	StateExecuted State = "executed"
)

// ResolutionSource identifies what resolved a record.
type ResolutionSource string

const (
	SourceAuto    ResolutionSource = "auto"
	SourceHuman   ResolutionSource = "human"
	SourceExpiry  ResolutionSource = "expiry"
)

// Intent is the operation a caller wants executed on-chain.
type Intent struct {
	Operation string
	To        string
	Value     uint64 // smallest denomination, e.g. wei
	Data      []byte
	Chain     string
}

// Record is one approval's full lifecycle state.
type Record struct {
	ID         string
	Intent     Intent
	Creator    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	State      State
	Source     ResolutionSource
	ResolvedAt time.Time
}

// Notifier delivers an out-of-band summary to the human operator for a
// pending record. Implementations are channel adapters (internal/channels).
type Notifier interface {
	NotifyPending(ctx context.Context, rec *Record) error
}

// Policy configures auto-approve thresholds.
type Policy struct {
	Whitelist      []string // contract addresses auto-approved below the caps
	PerTxCap       uint64
	DailyCap       uint64
	DefaultTTL     time.Duration // default 10 minutes
	SweepInterval  time.Duration // default 60 seconds
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL:    10 * time.Minute,
		SweepInterval: 60 * time.Second,
	}
}

// Manager owns the approval record table and the daily auto-approve
// counter. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	policy   Policy
	notifier Notifier
	records  map[string]*Record

	dailyApproved   uint64
	dailyResetAt    time.Time
}

func NewManager(policy Policy, notifier Notifier) *Manager {
	if policy.DefaultTTL <= 0 {
		policy.DefaultTTL = 10 * time.Minute
	}
	if policy.SweepInterval <= 0 {
		policy.SweepInterval = 60 * time.Second
	}
	return &Manager{
		policy:       policy,
		notifier:     notifier,
		records:      make(map[string]*Record),
		dailyResetAt: nextMidnight(time.Now()),
	}
}

func nextMidnight(from time.Time) time.Time {
	y, m, d := from.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, from.Location())
}

// Submit classifies and, where possible, resolves intent immediately. It
// always returns a record id; the caller checks record.State to know
// whether it must wait.
func (m *Manager) Submit(ctx context.Context, intent Intent, creator string) (*Record, error) {
	m.mu.Lock()
	m.maybeResetDailyLocked()

	rec := &Record{
		ID:        uuid.NewString(),
		Intent:    intent,
		Creator:   creator,
		CreatedAt: time.Now(),
	}
	rec.ExpiresAt = rec.CreatedAt.Add(m.policy.DefaultTTL)

	if m.eligibleForAutoApproveLocked(intent) {
		rec.State = StateApproved
		rec.Source = SourceAuto
		rec.ResolvedAt = rec.CreatedAt
		m.dailyApproved += intent.Value
		m.records[rec.ID] = rec
		m.mu.Unlock()
		return rec, nil
	}

	rec.State = StatePending
	m.records[rec.ID] = rec
	m.mu.Unlock()

	if m.notifier != nil {
		if err := m.notifier.NotifyPending(ctx, rec); err != nil {
			return rec, fmt.Errorf("approval: failed to notify pending record %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func (m *Manager) eligibleForAutoApproveLocked(intent Intent) bool {
	if !addressInList(m.policy.Whitelist, intent.To) {
		return false
	}
	if m.policy.PerTxCap > 0 && intent.Value > m.policy.PerTxCap {
		return false
	}
	if m.policy.DailyCap > 0 && m.dailyApproved+intent.Value > m.policy.DailyCap {
		return false
	}
	return true
}

func (m *Manager) maybeResetDailyLocked() {
	if time.Now().Before(m.dailyResetAt) {
		return
	}
	m.dailyApproved = 0
	m.dailyResetAt = nextMidnight(time.Now())
}

// addressInList compares addresses case-insensitively after homoglyph
// folding — the same normalization internal/ssrf applies to hostnames,
// applied here to the other place the runtime compares untrusted strings
// for identity.
func addressInList(list []string, address string) bool {
	normalized := foldAddress(address)
	for _, candidate := range list {
		if foldAddress(candidate) == normalized {
			return true
		}
	}
	return false
}

func foldAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(ssrf.FoldConfusables(address)))
}

// Resolve applies an explicit approve/reject decision. Exactly one
// resolution wins per record: Resolve uses a state check-and-set so a
// concurrent Resolve and the expiry sweep can race without double-applying.
func (m *Manager) Resolve(ctx context.Context, id string, approve bool, decidedBy string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, rterr.New(rterr.KindNotFound, fmt.Sprintf("approval record not found: %s", id))
	}
	if rec.State != StatePending {
		return nil, rterr.New(rterr.KindAlreadyResolved, fmt.Sprintf("approval record %s already resolved as %s", id, rec.State))
	}

	if approve {
		rec.State = StateApproved
	} else {
		rec.State = StateRejected
	}
	rec.Source = SourceHuman
	rec.ResolvedAt = time.Now()
	return rec, nil
}

// MarkExecuted transitions an approved record to executed. It is the only
// legal transition out of StateApproved.
func (m *Manager) MarkExecuted(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return rterr.New(rterr.KindNotFound, fmt.Sprintf("approval record not found: %s", id))
	}
	if rec.State != StateApproved {
		return rterr.New(rterr.KindRejected, fmt.Sprintf("approval record %s is not approved (state=%s)", id, rec.State))
	}
	rec.State = StateExecuted
	return nil
}

// Get returns a snapshot of a record.
func (m *Manager) Get(id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, rterr.New(rterr.KindNotFound, fmt.Sprintf("approval record not found: %s", id))
	}
	cp := *rec
	return &cp, nil
}

// SweepExpired scans for pending records whose TTL has elapsed and expires
// them. It is driven by a periodic ticker in Run.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for _, rec := range m.records {
		if rec.State == StatePending && now.After(rec.ExpiresAt) {
			rec.State = StateExpired
			rec.Source = SourceExpiry
			rec.ResolvedAt = now
			count++
		}
	}
	return count
}

// Run drives the periodic expiry sweep on
// policy.SweepInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.policy.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepExpired()
		}
	}
}

// DataDigest returns the hex encoding of the first 8 bytes of data's
// SHA-256 sum, or "" for empty data.
func DataDigest(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
