package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlewriters/credits-service/internal/cache"
	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/internal/ledger"
	"github.com/littlewriters/credits-service/internal/redemption"
	"github.com/littlewriters/credits-service/pkg/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store  *testutil.MemoryStore
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemoryStore()
	c := cache.New()
	srv := NewServer(
		ledger.New(store, store, c, nil),
		redemption.New(store, store, store, c, nil),
		redemption.NewReporter(store, store),
		store,
		c,
		nil,
	)
	return &fixture{store: store, router: srv.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdjustCredits(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1", Credits: 10})

	rec, env := f.do(t, http.MethodPost, "/api/credits/adjust", gin.H{
		"user_id": "u1", "delta": -3, "action_type": "chat",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(7), data["credits_remaining"])
}

func TestAdjustCreditsMissingUserID(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/credits/adjust", gin.H{"delta": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestAdjustCreditsMalformedBody(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1", Credits: 10})

	req := httptest.NewRequest(http.MethodPost, "/api/credits/adjust",
		bytes.NewBufferString(`{"user_id": "u1", "delta": `))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	// The bind can fail for more reasons than a missing field; the message
	// must not claim one.
	assert.Equal(t, "invalid request body", env.Message)
}

func TestAdjustCreditsUnknownUser(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/credits/adjust", gin.H{
		"user_id": "nobody", "delta": -1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "user not found", env.Message)
}

func TestAdjustCreditsInsufficient(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1", Credits: 1})

	rec, env := f.do(t, http.MethodPost, "/api/credits/adjust", gin.H{
		"user_id": "u1", "delta": -5,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient credits", env.Message)
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1", Credits: 0})
	f.store.AddCode(credits.RedemptionCode{Code: "GOODCODE22334455", CreditsValue: 25})

	rec, env := f.do(t, http.MethodPost, "/api/redeem", gin.H{
		"code": "goodcode22334455", "user_id": "u1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(25), data["credits_gained"])
}

func TestRedeemAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1"})
	f.store.AddUser(credits.User{UserID: "u2"})
	f.store.AddCode(credits.RedemptionCode{Code: "GOODCODE22334455", CreditsValue: 25})

	_, first := f.do(t, http.MethodPost, "/api/redeem", gin.H{"code": "GOODCODE22334455", "user_id": "u1"})
	require.True(t, first.Success)

	rec, env := f.do(t, http.MethodPost, "/api/redeem", gin.H{"code": "GOODCODE22334455", "user_id": "u2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "redemption code already used", env.Message)
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1"})

	rec, env := f.do(t, http.MethodPost, "/api/redeem", gin.H{"code": "NOSUCHCODE223344", "user_id": "u1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestValidateCode(t *testing.T) {
	f := newFixture(t)
	f.store.AddCode(credits.RedemptionCode{Code: "GOODCODE22334455", CreditsValue: 40})

	rec, env := f.do(t, http.MethodPost, "/api/redeem/validate", gin.H{"code": "GOODCODE22334455"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(40), data["credits_value"])
	assert.Equal(t, true, data["is_valid"])
}

func TestValidateExpiredCode(t *testing.T) {
	f := newFixture(t)
	past := time.Now().UTC().Add(-time.Hour)
	f.store.AddCode(credits.RedemptionCode{Code: "OLDCODE223344556", CreditsValue: 40, ExpiresAt: &past})

	rec, env := f.do(t, http.MethodPost, "/api/redeem/validate", gin.H{"code": "OLDCODE223344556"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "redemption code expired", env.Message)
}

func TestGenerateCode(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/admin/generate-code", gin.H{
		"credits_value": 50, "expires_days": 30, "creator_id": "admin1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Len(t, data["code"], 16)
	assert.Equal(t, float64(50), data["credits_value"])
}

func TestGenerateCodeRejectsZeroValue(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/api/admin/generate-code", gin.H{"credits_value": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1"})
	f.store.AddCode(credits.RedemptionCode{Code: "GOODCODE22334455", CreditsValue: 10})

	rec, env := f.do(t, http.MethodGet, "/api/admin/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["total_users"])
	assert.Equal(t, float64(1), data["total_codes"])
}

func TestUsageHistory(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1", Credits: 10})

	_, adj := f.do(t, http.MethodPost, "/api/credits/adjust", gin.H{
		"user_id": "u1", "delta": -2, "action_type": "chat",
	})
	require.True(t, adj.Success)

	rec, env := f.do(t, http.MethodGet, "/api/user/u1/usage-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := env.Data.([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "chat", entry["action_type"])
	assert.Equal(t, float64(2), entry["credits_consumed"])
}

func TestRedemptionHistory(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1"})
	f.store.AddCode(credits.RedemptionCode{Code: "GOODCODE22334455", CreditsValue: 25})

	_, redeemed := f.do(t, http.MethodPost, "/api/redeem", gin.H{"code": "GOODCODE22334455", "user_id": "u1"})
	require.True(t, redeemed.Success)

	rec, env := f.do(t, http.MethodGet, "/api/user/u1/redemption-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := env.Data.([]any)
	require.Len(t, entries, 1)
}

func TestRedemptionHistoryUnknownUser(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/user/nobody/redemption-history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheStatsAndClear(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(credits.User{UserID: "u1"})

	// Populate the cache through a read.
	_, _ = f.do(t, http.MethodGet, "/api/user/u1/usage-history", nil)

	rec, env := f.do(t, http.MethodGet, "/api/admin/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := env.Data.(map[string]any)
	assert.Equal(t, float64(1), stats["total_items"])

	rec, _ = f.do(t, http.MethodPost, "/api/admin/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, env = f.do(t, http.MethodGet, "/api/admin/cache/stats", nil)
	stats = env.Data.(map[string]any)
	assert.Equal(t, float64(0), stats["total_items"])
}
