package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps all referral data in process memory. It backs tests and
// the `memory` driver used for local development; data does not survive a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	profiles map[string]*PartnerProfile
	edges    []PartnerReferral
	txs      []PartnerTransaction
	history  []PartnerActivationHistory
	events   []BonusEvent
	seq      int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:    map[string]*User{},
		profiles: map[string]*PartnerProfile{},
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// RunMigrations is a no-op; the in-memory store has no schema.
func (s *MemoryStore) RunMigrations(ctx context.Context, filesystem fs.FS) error { return nil }

func (s *MemoryStore) nextID() string {
	s.seq++
	return fmt.Sprintf("mem-%06d", s.seq)
}

// -- Users --

func (s *MemoryStore) UpsertUserByTG(ctx context.Context, profile UserProfile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, u := range s.users {
		if u.TGID == profile.TGID {
			if profile.Username != nil {
				u.Username = profile.Username
			}
			if profile.DisplayName != nil {
				u.DisplayName = profile.DisplayName
			}
			u.UpdatedAt = now
			cp := *u
			return &cp, nil
		}
	}

	u := &User{
		ID:          s.nextID(),
		TGID:        profile.TGID,
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Balance = balance
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// -- Partner profiles --

func (s *MemoryStore) GetProfileByID(ctx context.Context, id string) (*PartnerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetProfileByUserID(ctx context.Context, userID string) (*PartnerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetProfileByCode(ctx context.Context, code string) (*PartnerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ReferralCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetOrCreateProfile(ctx context.Context, userID string, program ProgramType) (*PartnerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}

	code := ""
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		candidate := NewReferralCode()
		taken := false
		for _, p := range s.profiles {
			if p.ReferralCode == candidate {
				taken = true
				break
			}
		}
		if !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, errors.New("get or create profile: could not generate unique referral code")
	}

	now := time.Now().UTC()
	p := &PartnerProfile{
		ID:           s.nextID(),
		UserID:       userID,
		ReferralCode: code,
		ProgramType:  program,
		Balance:      decimal.Zero,
		Bonus:        decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.profiles[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SetProfileActivation(ctx context.Context, profileID string, upd ActivationUpdate) (*PartnerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, ErrNotFound
	}
	p.IsActive = upd.IsActive
	if upd.ActivatedAt != nil {
		p.ActivatedAt = upd.ActivatedAt
	}
	if upd.ExpiresAt != nil {
		p.ExpiresAt = upd.ExpiresAt
	}
	if upd.ActivationType != nil {
		p.ActivationType = upd.ActivationType
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SetProfileBalance(ctx context.Context, profileID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	p.Balance = balance
	p.Bonus = balance
	p.UpdatedAt = time.Now().UTC()
	if u, ok := s.users[p.UserID]; ok {
		u.Balance = balance
		u.UpdatedAt = p.UpdatedAt
	}
	return nil
}

// -- Referral edges --

func (s *MemoryStore) UpsertReferral(ctx context.Context, edge PartnerReferral) (*PartnerReferral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.edges {
		e := &s.edges[i]
		if e.ProfileID == edge.ProfileID && e.ReferredID == edge.ReferredID && e.Level == edge.Level {
			if edge.Contact != nil {
				e.Contact = edge.Contact
			}
			cp := *e
			return &cp, nil
		}
	}
	edge.ID = s.nextID()
	edge.CreatedAt = time.Now().UTC()
	s.edges = append(s.edges, edge)
	cp := edge
	return &cp, nil
}

func (s *MemoryStore) ListReferralsByReferred(ctx context.Context, referredID string) ([]PartnerReferral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PartnerReferral
	for _, e := range s.edges {
		if e.ReferredID == referredID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountReferralsByProfile(ctx context.Context, profileID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.edges {
		if e.ProfileID == profileID {
			n++
		}
	}
	return n, nil
}

// -- Ledger --

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx PartnerTransaction) (*PartnerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.nextID()
	tx.CreatedAt = time.Now().UTC()
	s.txs = append(s.txs, tx)
	cp := tx
	return &cp, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, profileID string) ([]PartnerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PartnerTransaction
	for _, tx := range s.txs {
		if tx.ProfileID == profileID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertBonusEvent(ctx context.Context, ev BonusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.ProfileID == ev.ProfileID && existing.OrderID == ev.OrderID {
			return nil
		}
	}
	ev.ID = s.nextID()
	ev.CreatedAt = time.Now().UTC()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) HasBonusEvent(ctx context.Context, referredUserID, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ReferredUserID == referredUserID && ev.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasProfileBonusEvent(ctx context.Context, profileID, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ProfileID == profileID && ev.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

// -- Activation audit trail --

func (s *MemoryStore) InsertActivationHistory(ctx context.Context, row PartnerActivationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = s.nextID()
	row.CreatedAt = time.Now().UTC()
	s.history = append(s.history, row)
	return nil
}

func (s *MemoryStore) ListActivationHistory(ctx context.Context, profileID string, limit int) ([]PartnerActivationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []PartnerActivationHistory
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if s.history[i].ProfileID == profileID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}
