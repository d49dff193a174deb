package strategy

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/credential"
)

// TokenSource is the read side of the credential store.
type TokenSource interface {
	Get(ctx context.Context, slot credential.Slot) (string, bool)
}

// Selection is the outcome of resolving a credential for one endpoint.
type Selection struct {
	Endpoint string
	Policy   Policy
	Pattern  string
	// Slot is the slot the token came from, or the slot the policy required
	// when nothing was found ("" for fallback with no credential).
	Slot    credential.Slot
	Token   string
	Present bool
}

// PickLog records a selection for debugging. Tokens are never recorded.
type PickLog struct {
	Time     time.Time       `json:"time"`
	Endpoint string          `json:"endpoint"`
	Policy   string          `json:"policy"`
	Slot     credential.Slot `json:"slot,omitempty"`
	Present  bool            `json:"present"`
}

// Selector resolves the credential for an endpoint.
type Selector struct {
	table  *Table
	source TokenSource

	mu         sync.Mutex
	pickLogs   []PickLog
	pickLogCap int
}

// NewSelector uses DefaultRules when table is nil.
func NewSelector(table *Table, source TokenSource) *Selector {
	if table == nil {
		table = NewTable(nil)
	}
	return &Selector{table: table, source: source, pickLogCap: 100}
}

// Table returns the policy table in use.
func (s *Selector) Table() *Table { return s.table }

// Select 按策略表选取凭证：访客专用与用户专用均不回退；其余端点优先用户、否则访客。
func (s *Selector) Select(ctx context.Context, endpoint string) Selection {
	policy, pattern := s.table.Classify(endpoint)
	sel := Selection{Endpoint: endpoint, Policy: policy, Pattern: pattern}

	switch policy {
	case PolicyVisitorOnly:
		sel.Slot = credential.SlotVisitor
		sel.Token, sel.Present = s.source.Get(ctx, credential.SlotVisitor)
	case PolicyUserOnly:
		sel.Slot = credential.SlotUser
		sel.Token, sel.Present = s.source.Get(ctx, credential.SlotUser)
		if !sel.Present {
			log.WithFields(log.Fields{"endpoint": endpoint, "pattern": pattern}).
				Warn("user credential required but not signed in")
		}
	default:
		if tok, ok := s.source.Get(ctx, credential.SlotUser); ok {
			sel.Slot, sel.Token, sel.Present = credential.SlotUser, tok, true
		} else if tok, ok := s.source.Get(ctx, credential.SlotVisitor); ok {
			sel.Slot, sel.Token, sel.Present = credential.SlotVisitor, tok, true
		}
	}

	s.recordPick(PickLog{
		Time:     time.Now(),
		Endpoint: endpoint,
		Policy:   policy.String(),
		Slot:     sel.Slot,
		Present:  sel.Present,
	})
	return sel
}

// recordPick stores a pick log with capacity trimming.
func (s *Selector) recordPick(pl PickLog) {
	s.mu.Lock()
	if len(s.pickLogs) >= s.pickLogCap {
		copy(s.pickLogs, s.pickLogs[1:])
		s.pickLogs[len(s.pickLogs)-1] = pl
	} else {
		s.pickLogs = append(s.pickLogs, pl)
	}
	s.mu.Unlock()
}

// Picks returns recent pick logs up to limit.
func (s *Selector) Picks(limit int) []PickLog {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pickLogs)
	if n == 0 {
		return nil
	}
	if limit > n {
		limit = n
	}
	out := make([]PickLog, limit)
	copy(out, s.pickLogs[n-limit:])
	return out
}
