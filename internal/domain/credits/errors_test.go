package credits

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSentinelMatchesWhenWrapped(t *testing.T) {
	wrapped := fmt.Errorf("redeem: %w", ErrCodeAlreadyUsed)
	if !errors.Is(wrapped, ErrCodeAlreadyUsed) {
		t.Error("fmt-wrapped sentinel should match with errors.Is")
	}

	withCause := WrapError(KindNotFound, "user not found", errors.New("row missing"))
	if !errors.Is(withCause, ErrUserNotFound) {
		t.Error("coded error with cause should match the sentinel of same kind and message")
	}
}

func TestSentinelsDoNotCrossMatch(t *testing.T) {
	if errors.Is(ErrCodeExpired, ErrCodeAlreadyUsed) {
		t.Error("distinct sentinels must not match")
	}
	if errors.Is(errors.New("plain"), ErrUserNotFound) {
		t.Error("plain error must not match a sentinel")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindTransient, "store unavailable", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable with errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(ErrInsufficientCredits); got != KindConflict {
		t.Errorf("KindOf(ErrInsufficientCredits) = %v, want CONFLICT", got)
	}
	if got := KindOf(fmt.Errorf("adjust: %w", ErrUserNotFound)); got != KindNotFound {
		t.Errorf("KindOf(wrapped) = %v, want NOT_FOUND", got)
	}
	if got := KindOf(errors.New("anything")); got != KindTransient {
		t.Errorf("KindOf(plain) = %v, want TRANSIENT", got)
	}
}

func TestCodeExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	forever := RedemptionCode{}
	if forever.Expired(now) {
		t.Error("code without expiry must never expire")
	}

	expired := RedemptionCode{ExpiresAt: &past}
	if !expired.Expired(now) {
		t.Error("code past its deadline should be expired")
	}

	fresh := RedemptionCode{ExpiresAt: &future}
	if fresh.Expired(now) {
		t.Error("code before its deadline should not be expired")
	}
}
