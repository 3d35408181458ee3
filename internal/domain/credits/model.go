// Package credits defines the domain model for the credit ledger and
// redemption workflows.
package credits

import "time"

// User is a chat-application user with a metered credit balance.
// The ledger engine is the only writer of Credits.
type User struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Credits    int        `json:"credits"`
	IsAdmin    bool       `json:"is_admin"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// RedemptionCode is a single-use token exchangeable for a fixed credit amount.
// It transitions from unused to used exactly once; (IsUsed, UsedByUserID,
// UsedAt) change together or not at all.
type RedemptionCode struct {
	CodeID           string     `json:"code_id,omitempty"`
	Code             string     `json:"code"`
	CreditsValue     int        `json:"credits_value"`
	IsUsed           bool       `json:"is_used"`
	UsedByUserID     *string    `json:"used_by_user_id"`
	UsedAt           *time.Time `json:"used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	CreatedByAdminID *string    `json:"created_by_admin_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Expired reports whether the code's expiry deadline has passed at t.
// Codes without an expiry never expire.
func (c *RedemptionCode) Expired(t time.Time) bool {
	return c.ExpiresAt != nil && t.After(*c.ExpiresAt)
}

// UsageLogEntry is an append-only audit record of a balance change.
// CreditsConsumed keeps the source system's sign convention: positive for
// credits spent, negative for credits granted via redemption.
type UsageLogEntry struct {
	LogID           string    `json:"log_id,omitempty"`
	UserID          string    `json:"user_id"`
	ActionType      string    `json:"action_type"`
	CreditsConsumed int       `json:"credits_consumed"`
	Timestamp       time.Time `json:"timestamp"`
	RequestDetails  string    `json:"request_details,omitempty"`
}

// Action kinds recorded in usage logs.
const (
	ActionChat       = "chat"
	ActionEssay      = "complete_essay"
	ActionManual     = "manual"
	ActionRedeemCode = "redeem_code"
)

// UsageStatistics aggregates code and user counts for the admin dashboard.
type UsageStatistics struct {
	TotalUsers         int     `json:"total_users"`
	TotalCodes         int     `json:"total_codes"`
	UsedCodes          int     `json:"used_codes"`
	UnusedCodes        int     `json:"unused_codes"`
	ExpiredCodes       int     `json:"expired_codes"`
	TotalCreditsIssued int     `json:"total_credits"`
	UsageRate          float64 `json:"usage_rate"`
}
