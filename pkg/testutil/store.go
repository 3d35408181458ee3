// Package testutil provides in-memory store fakes with fault injection for
// engine tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

// MemoryStore implements the storage interfaces in memory. Individual
// operations can be made to fail to exercise compensation paths.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]credits.User
	codes map[string]credits.RedemptionCode
	logs  []credits.UsageLogEntry

	usageLogErr      error
	updateCreditsErr error
	// updateCreditsOKCalls lets that many UpdateUserCredits calls succeed
	// before updateCreditsErr applies. -1 disables the threshold.
	updateCreditsOKCalls int
	updateCreditsCalls   int
	revertErr            error
	forceCollisions      bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:                make(map[string]credits.User),
		codes:                make(map[string]credits.RedemptionCode),
		updateCreditsOKCalls: -1,
	}
}

// AddUser seeds a user.
func (m *MemoryStore) AddUser(u credits.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

// AddCode seeds a redemption code.
func (m *MemoryStore) AddCode(c credits.RedemptionCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = c
}

// StoredUser returns a seeded user by id.
func (m *MemoryStore) StoredUser(userID string) (credits.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	return u, ok
}

// StoredCode returns a seeded code by code string.
func (m *MemoryStore) StoredCode(code string) (credits.RedemptionCode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[code]
	return c, ok
}

// Logs returns a snapshot of appended usage logs.
func (m *MemoryStore) Logs() []credits.UsageLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]credits.UsageLogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

// FailUsageLogs makes CreateUsageLog return err until cleared with nil.
func (m *MemoryStore) FailUsageLogs(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageLogErr = err
}

// FailUpdateCredits makes every UpdateUserCredits call return err.
func (m *MemoryStore) FailUpdateCredits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCreditsErr = err
	m.updateCreditsOKCalls = 0
	m.updateCreditsCalls = 0
}

// FailUpdateCreditsAfter lets n UpdateUserCredits calls succeed, then fails
// the rest with err.
func (m *MemoryStore) FailUpdateCreditsAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCreditsErr = err
	m.updateCreditsOKCalls = n
	m.updateCreditsCalls = 0
}

// FailRevert makes RevertCodeUsed return err.
func (m *MemoryStore) FailRevert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertErr = err
}

// ForceCollisions makes CodeExists report every probed code as taken.
func (m *MemoryStore) ForceCollisions(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceCollisions = v
}

// =============================================================================
// storage.UserStore
// =============================================================================

func (m *MemoryStore) GetUser(_ context.Context, userID string) (credits.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return credits.User{}, credits.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) UpdateUserCredits(_ context.Context, userID string, newCredits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCreditsCalls++
	if m.updateCreditsErr != nil && (m.updateCreditsOKCalls < 0 || m.updateCreditsCalls > m.updateCreditsOKCalls) {
		return m.updateCreditsErr
	}

	u, ok := m.users[userID]
	if !ok {
		return credits.ErrUserNotFound
	}
	u.Credits = newCredits
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) CountUsers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// =============================================================================
// storage.CodeStore
// =============================================================================

func (m *MemoryStore) CreateCode(_ context.Context, code credits.RedemptionCode) (credits.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code.Code] = code
	return code, nil
}

func (m *MemoryStore) GetCode(_ context.Context, code string) (credits.RedemptionCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[code]
	if !ok {
		return credits.RedemptionCode{}, credits.ErrCodeNotFound
	}
	return c, nil
}

func (m *MemoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.forceCollisions {
		return true, nil
	}
	_, ok := m.codes[code]
	return ok, nil
}

func (m *MemoryStore) MarkCodeUsed(_ context.Context, code, userID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return credits.ErrCodeNotFound
	}
	c.IsUsed = true
	c.UsedByUserID = &userID
	c.UsedAt = &usedAt
	m.codes[code] = c
	return nil
}

func (m *MemoryStore) RevertCodeUsed(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revertErr != nil {
		return m.revertErr
	}
	c, ok := m.codes[code]
	if !ok {
		return credits.ErrCodeNotFound
	}
	c.IsUsed = false
	c.UsedByUserID = nil
	c.UsedAt = nil
	m.codes[code] = c
	return nil
}

func (m *MemoryStore) ListCodesRedeemedBy(_ context.Context, userID string) ([]credits.RedemptionCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []credits.RedemptionCode
	for _, c := range m.codes {
		if c.IsUsed && c.UsedByUserID != nil && *c.UsedByUserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountCodes(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codes), nil
}

func (m *MemoryStore) CountUsedCodes(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.codes {
		if c.IsUsed {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountExpiredCodes(_ context.Context, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.codes {
		if !c.IsUsed && c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumUsedCodeValues(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, c := range m.codes {
		if c.IsUsed {
			total += c.CreditsValue
		}
	}
	return total, nil
}

func (m *MemoryStore) DeleteExpiredCodes(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, c := range m.codes {
		if !c.IsUsed && c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
			delete(m.codes, key)
			removed++
		}
	}
	return removed, nil
}

// =============================================================================
// storage.UsageLogStore
// =============================================================================

func (m *MemoryStore) CreateUsageLog(_ context.Context, entry credits.UsageLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usageLogErr != nil {
		return m.usageLogErr
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStore) ListUsageLogs(_ context.Context, userID string, limit int) ([]credits.UsageLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []credits.UsageLogEntry
	for i := len(m.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.logs[i].UserID == userID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}
