// Package storage declares the store interfaces the engines depend on.
// The Supabase gateway in internal/database implements them; tests use the
// in-memory fakes in pkg/testutil.
package storage

import (
	"context"
	"time"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

// UserStore persists user records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (credits.User, error)
	// UpdateUserCredits writes the balance for exactly the row matching userID.
	UpdateUserCredits(ctx context.Context, userID string, newCredits int) error
	CountUsers(ctx context.Context) (int, error)
}

// CodeStore persists redemption codes.
type CodeStore interface {
	CreateCode(ctx context.Context, code credits.RedemptionCode) (credits.RedemptionCode, error)
	GetCode(ctx context.Context, code string) (credits.RedemptionCode, error)
	// CodeExists is the cheap collision probe used during generation.
	CodeExists(ctx context.Context, code string) (bool, error)
	// MarkCodeUsed sets (is_used, used_by_user_id, used_at) in one write,
	// addressed by the unique code string.
	MarkCodeUsed(ctx context.Context, code, userID string, usedAt time.Time) error
	// RevertCodeUsed is the compensating write for MarkCodeUsed.
	RevertCodeUsed(ctx context.Context, code string) error
	ListCodesRedeemedBy(ctx context.Context, userID string) ([]credits.RedemptionCode, error)
	CountCodes(ctx context.Context) (int, error)
	CountUsedCodes(ctx context.Context) (int, error)
	CountExpiredCodes(ctx context.Context, now time.Time) (int, error)
	SumUsedCodeValues(ctx context.Context) (int, error)
	// DeleteExpiredCodes removes expired, unused codes. Maintenance only;
	// normal flow never deletes a code.
	DeleteExpiredCodes(ctx context.Context, now time.Time) (int, error)
}

// UsageLogStore appends audit records. Entries are never mutated or deleted.
type UsageLogStore interface {
	CreateUsageLog(ctx context.Context, entry credits.UsageLogEntry) error
	ListUsageLogs(ctx context.Context, userID string, limit int) ([]credits.UsageLogEntry, error)
}
