package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/littlewriters/credits-service/internal/domain/credits"
)

const tableUsers = "users"

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, userID string) (credits.User, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("limit", "1")

	body, err := c.request(ctx, http.MethodGet, tableUsers, nil, query)
	if err != nil {
		return credits.User{}, wrapStore(err, "get user")
	}

	var users []credits.User
	if err := json.Unmarshal(body, &users); err != nil {
		return credits.User{}, credits.WrapError(credits.KindTransient, "decode user", err)
	}
	if len(users) == 0 {
		return credits.User{}, credits.ErrUserNotFound
	}
	return users[0], nil
}

// UpdateUserCredits writes the balance for the row matching userID.
func (c *Client) UpdateUserCredits(ctx context.Context, userID string, newCredits int) error {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)

	patch := map[string]any{"credits": newCredits}
	if _, err := c.request(ctx, http.MethodPatch, tableUsers, patch, query); err != nil {
		return wrapStore(err, "update user credits")
	}
	return nil
}

// CountUsers returns the total number of users.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	n, err := c.count(ctx, tableUsers, nil)
	if err != nil {
		return 0, wrapStore(err, "count users")
	}
	return n, nil
}

// wrapStore normalizes gateway failures into coded errors. Coded errors pass
// through unchanged; raw store/network errors become Transient.
func wrapStore(err error, op string) error {
	var ce *credits.Error
	if errors.As(err, &ce) {
		return err
	}
	return credits.WrapError(credits.KindTransient, fmt.Sprintf("%s failed", op), err)
}
