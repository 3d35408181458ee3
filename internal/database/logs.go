package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

const tableUsageLogs = "usage_logs"

// CreateUsageLog appends an audit record.
func (c *Client) CreateUsageLog(ctx context.Context, entry credits.UsageLogEntry) error {
	if _, err := c.request(ctx, http.MethodPost, tableUsageLogs, entry, nil); err != nil {
		return wrapStore(err, "create usage log")
	}
	return nil
}

// ListUsageLogs returns a user's audit records, newest first.
func (c *Client) ListUsageLogs(ctx context.Context, userID string, limit int) ([]credits.UsageLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("order", "timestamp.desc")
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.request(ctx, http.MethodGet, tableUsageLogs, nil, query)
	if err != nil {
		return nil, wrapStore(err, "list usage logs")
	}

	var rows []credits.UsageLogEntry
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, credits.WrapError(credits.KindTransient, "decode usage logs", err)
	}
	return rows, nil
}
