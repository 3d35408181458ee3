package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

const tableCodes = "redemption_codes"

// CreateCode inserts a redemption code and returns the stored row.
func (c *Client) CreateCode(ctx context.Context, code credits.RedemptionCode) (credits.RedemptionCode, error) {
	body, err := c.request(ctx, http.MethodPost, tableCodes, code, nil)
	if err != nil {
		return credits.RedemptionCode{}, wrapStore(err, "create code")
	}

	var rows []credits.RedemptionCode
	if err := json.Unmarshal(body, &rows); err != nil {
		return credits.RedemptionCode{}, credits.WrapError(credits.KindTransient, "decode code", err)
	}
	if len(rows) == 0 {
		return code, nil
	}
	return rows[0], nil
}

// GetCode fetches a redemption code by its code string.
func (c *Client) GetCode(ctx context.Context, code string) (credits.RedemptionCode, error) {
	query := url.Values{}
	query.Set("code", "eq."+code)
	query.Set("limit", "1")

	body, err := c.request(ctx, http.MethodGet, tableCodes, nil, query)
	if err != nil {
		return credits.RedemptionCode{}, wrapStore(err, "get code")
	}

	var rows []credits.RedemptionCode
	if err := json.Unmarshal(body, &rows); err != nil {
		return credits.RedemptionCode{}, credits.WrapError(credits.KindTransient, "decode code", err)
	}
	if len(rows) == 0 {
		return credits.RedemptionCode{}, credits.ErrCodeNotFound
	}
	return rows[0], nil
}

// CodeExists reports whether a code string is already taken.
func (c *Client) CodeExists(ctx context.Context, code string) (bool, error) {
	query := url.Values{}
	query.Set("code", "eq."+code)
	query.Set("select", "code")

	body, err := c.request(ctx, http.MethodGet, tableCodes, nil, query)
	if err != nil {
		return false, wrapStore(err, "probe code")
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, credits.WrapError(credits.KindTransient, "decode code probe", err)
	}
	return len(rows) > 0, nil
}

// MarkCodeUsed flips a code to used, recording redeemer and time in the same
// write so any subsequent reader observes the triple together.
func (c *Client) MarkCodeUsed(ctx context.Context, code, userID string, usedAt time.Time) error {
	query := url.Values{}
	query.Set("code", "eq."+code)

	patch := map[string]any{
		"is_used":         true,
		"used_by_user_id": userID,
		"used_at":         usedAt.UTC().Format(time.RFC3339),
	}
	if _, err := c.request(ctx, http.MethodPatch, tableCodes, patch, query); err != nil {
		return wrapStore(err, "mark code used")
	}
	return nil
}

// RevertCodeUsed is the compensating write for MarkCodeUsed: the code becomes
// redeemable again and the redeemer fields are cleared.
func (c *Client) RevertCodeUsed(ctx context.Context, code string) error {
	query := url.Values{}
	query.Set("code", "eq."+code)

	patch := map[string]any{
		"is_used":         false,
		"used_by_user_id": nil,
		"used_at":         nil,
	}
	if _, err := c.request(ctx, http.MethodPatch, tableCodes, patch, query); err != nil {
		return wrapStore(err, "revert code")
	}
	return nil
}

// ListCodesRedeemedBy returns the codes a user redeemed, newest first.
func (c *Client) ListCodesRedeemedBy(ctx context.Context, userID string) ([]credits.RedemptionCode, error) {
	query := url.Values{}
	query.Set("used_by_user_id", "eq."+userID)
	query.Set("is_used", "eq.true")
	query.Set("order", "used_at.desc")

	body, err := c.request(ctx, http.MethodGet, tableCodes, nil, query)
	if err != nil {
		return nil, wrapStore(err, "list redeemed codes")
	}

	var rows []credits.RedemptionCode
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, credits.WrapError(credits.KindTransient, "decode codes", err)
	}
	return rows, nil
}

// CountCodes returns the total number of codes.
func (c *Client) CountCodes(ctx context.Context) (int, error) {
	n, err := c.count(ctx, tableCodes, nil)
	if err != nil {
		return 0, wrapStore(err, "count codes")
	}
	return n, nil
}

// CountUsedCodes returns the number of redeemed codes.
func (c *Client) CountUsedCodes(ctx context.Context) (int, error) {
	query := url.Values{}
	query.Set("is_used", "eq.true")
	n, err := c.count(ctx, tableCodes, query)
	if err != nil {
		return 0, wrapStore(err, "count used codes")
	}
	return n, nil
}

// CountExpiredCodes returns the number of expired, never-used codes.
func (c *Client) CountExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	query := url.Values{}
	query.Set("expires_at", "lt."+now.UTC().Format(time.RFC3339))
	query.Set("is_used", "eq.false")
	n, err := c.count(ctx, tableCodes, query)
	if err != nil {
		return 0, wrapStore(err, "count expired codes")
	}
	return n, nil
}

// SumUsedCodeValues totals credits issued through redeemed codes.
func (c *Client) SumUsedCodeValues(ctx context.Context) (int, error) {
	query := url.Values{}
	query.Set("select", "credits_value")
	query.Set("is_used", "eq.true")

	body, err := c.request(ctx, http.MethodGet, tableCodes, nil, query)
	if err != nil {
		return 0, wrapStore(err, "sum used codes")
	}

	var rows []struct {
		CreditsValue int `json:"credits_value"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, credits.WrapError(credits.KindTransient, "decode code values", err)
	}
	total := 0
	for _, r := range rows {
		total += r.CreditsValue
	}
	return total, nil
}

// DeleteExpiredCodes removes expired, unused codes and returns how many rows
// were deleted. Maintenance operation only.
func (c *Client) DeleteExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	query := url.Values{}
	query.Set("expires_at", "lt."+now.UTC().Format(time.RFC3339))
	query.Set("is_used", "eq.false")

	body, err := c.request(ctx, http.MethodDelete, tableCodes, nil, query)
	if err != nil {
		return 0, wrapStore(err, "delete expired codes")
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, credits.WrapError(credits.KindTransient, "decode deleted codes", err)
	}
	return len(rows), nil
}
