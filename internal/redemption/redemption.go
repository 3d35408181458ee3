// Package redemption implements code generation, the three-step redemption
// workflow and its compensation policy, and the admin statistics reporter.
package redemption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/littlewriters/credits-service/internal/cache"
	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/internal/storage"
	"github.com/littlewriters/credits-service/pkg/logger"
)

// Engine executes redemption workflows against the store.
type Engine struct {
	users storage.UserStore
	codes storage.CodeStore
	logs  storage.UsageLogStore
	cache *cache.Cache
	log   *logger.Logger
}

// New creates a redemption engine. The cache may be nil.
func New(users storage.UserStore, codes storage.CodeStore, logs storage.UsageLogStore, c *cache.Cache, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("redemption")
	}
	return &Engine{users: users, codes: codes, logs: logs, cache: c, log: log}
}

// GenerateCode creates an unused redemption code worth creditsValue.
// expiresInDays = 0 means the code never expires; negative values are
// rejected. creatorID, when non-empty, records the admin who generated it.
func (e *Engine) GenerateCode(ctx context.Context, creditsValue, expiresInDays int, creatorID string) (credits.RedemptionCode, error) {
	if creditsValue <= 0 {
		return credits.RedemptionCode{}, credits.NewError(credits.KindInvalidInput, "credits value must be positive")
	}
	if expiresInDays < 0 {
		return credits.RedemptionCode{}, credits.NewError(credits.KindInvalidInput, "expiry days must not be negative")
	}

	code, err := e.uniqueCode(ctx)
	if err != nil {
		return credits.RedemptionCode{}, err
	}

	record := credits.RedemptionCode{
		Code:         code,
		CreditsValue: creditsValue,
		IsUsed:       false,
		CreatedAt:    time.Now().UTC(),
	}
	if expiresInDays > 0 {
		expiry := time.Now().UTC().AddDate(0, 0, expiresInDays)
		record.ExpiresAt = &expiry
	}
	if creatorID != "" {
		record.CreatedByAdminID = &creatorID
	}

	created, err := e.codes.CreateCode(ctx, record)
	if err != nil {
		return credits.RedemptionCode{}, err
	}

	e.log.WithFields(map[string]interface{}{
		"code":    created.Code,
		"credits": created.CreditsValue,
	}).Info("redemption code generated")
	return created, nil
}

// uniqueCode draws codes until one does not collide with the store, up to the
// attempt bound. Exhaustion is transient: the caller may simply retry.
func (e *Engine) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := newCode()
		if err != nil {
			return "", credits.WrapError(credits.KindTransient, "generate code", err)
		}
		exists, err := e.codes.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", credits.ErrCodeGenerationExhausted
}

// Redeem exchanges a code for its credit value on behalf of userID and
// returns the credits gained.
//
// The workflow is three independent store writes in a fixed order: mark the
// code used, credit the balance, append the audit record. A failed balance
// write reverts the code so it stays redeemable. A failed audit write does
// NOT revert the crediting: un-crediting a user who already sees the new
// balance is a worse outcome than a missing log line, so that failure is
// logged and the operation still succeeds.
func (e *Engine) Redeem(ctx context.Context, rawCode, userID string) (int, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return 0, credits.NewError(credits.KindInvalidInput, "code is required")
	}

	record, err := e.codes.GetCode(ctx, code)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if record.IsUsed {
		return 0, credits.ErrCodeAlreadyUsed
	}
	if record.Expired(now) {
		return 0, credits.ErrCodeExpired
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	// Step 1: flip the code to used. From here on any reader sees the
	// (state, redeemer, used-at) triple together.
	if err := e.codes.MarkCodeUsed(ctx, code, userID, now); err != nil {
		return 0, err
	}

	// Step 2: credit the balance. On failure the code must become
	// redeemable again - the user never received the credits.
	if err := e.users.UpdateUserCredits(ctx, userID, user.Credits+record.CreditsValue); err != nil {
		return 0, e.revertCode(ctx, code, err)
	}

	// Step 3: audit record, best-effort once the user has been credited.
	entry := credits.UsageLogEntry{
		UserID:          userID,
		ActionType:      credits.ActionRedeemCode,
		CreditsConsumed: -record.CreditsValue,
		Timestamp:       now,
		RequestDetails:  fmt.Sprintf("code: %s", code),
	}
	if err := e.logs.CreateUsageLog(ctx, entry); err != nil {
		e.log.WithError(err).Warnf("redeem audit log failed for user %s, credits already granted", userID)
	}

	if e.cache != nil {
		e.cache.InvalidateSubject(userID)
	}
	return record.CreditsValue, nil
}

// revertCode is the compensating write for MarkCodeUsed. Once begun it runs
// to completion; a failed revert leaves a used code whose holder got nothing,
// which is flagged at error severity for manual reconciliation.
func (e *Engine) revertCode(ctx context.Context, code string, cause error) error {
	if err := e.codes.RevertCodeUsed(ctx, code); err != nil {
		e.log.WithError(err).WithField("code", code).
			Error("code revert failed: code marked used without crediting")
		return credits.WrapError(credits.KindInconsistency,
			fmt.Sprintf("crediting failed and code %s could not be reverted", code), err)
	}

	e.log.WithError(cause).Warnf("crediting failed, code %s reverted to unused", code)
	return credits.WrapError(credits.KindTransient, "crediting failed, redemption rolled back", cause)
}

// ValidateCode checks a code's usability without redeeming it.
func (e *Engine) ValidateCode(ctx context.Context, rawCode string) (credits.RedemptionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return credits.RedemptionCode{}, credits.NewError(credits.KindInvalidInput, "code is required")
	}

	record, err := e.codes.GetCode(ctx, code)
	if err != nil {
		return credits.RedemptionCode{}, err
	}
	if record.IsUsed {
		return credits.RedemptionCode{}, credits.ErrCodeAlreadyUsed
	}
	if record.Expired(time.Now().UTC()) {
		return credits.RedemptionCode{}, credits.ErrCodeExpired
	}
	return record, nil
}

// RedemptionHistory returns the codes a user has redeemed, newest first.
// The result is served through the subject-scoped cache; redeem operations
// invalidate it.
func (e *Engine) RedemptionHistory(ctx context.Context, userID string) ([]credits.RedemptionCode, error) {
	if _, err := e.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	key := cache.Key(cache.NamespaceUserData, "redemption_history", userID)
	return cache.Fetch(e.cache, key, 0, func() ([]credits.RedemptionCode, error) {
		return e.codes.ListCodesRedeemedBy(ctx, userID)
	})
}
