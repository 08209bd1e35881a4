package codes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
	"github.com/leapstack-labs/bustracker/internal/server/features"
	"github.com/leapstack-labs/bustracker/internal/server/features/common"
	"github.com/leapstack-labs/bustracker/internal/testutil"
)

func setupRouter(t *testing.T) (chi.Router, *features.TestFixture) {
	t.Helper()
	fx := features.SetupTestFixture(t)
	r := chi.NewRouter()
	require.NoError(t, SetupRoutes(r, fx.Lifecycle, testutil.NewTestLogger(t)))
	return r, fx
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGenerate(t *testing.T) {
	r, fx := setupRouter(t)

	rec := do(r, http.MethodGet, "/access-code/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Code, 2*accesscode.CodeBytes)
	require.Len(t, resp.Codes, 1)
	assert.Nil(t, resp.Codes[0].ExpiresAt)

	stored, err := fx.Codes.Get(t.Context(), resp.Code)
	require.NoError(t, err)
	assert.Equal(t, accesscode.StatusActive, stored.Status)
}

func TestGenerate_BatchWithExpiry(t *testing.T) {
	r, fx := setupRouter(t)

	rec := do(r, http.MethodGet, "/access-code/generate?count=3&expiresIn=48h", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Codes, 3)
	for _, c := range resp.Codes {
		require.NotNil(t, c.ExpiresAt)
		assert.True(t, fx.Now.Add(48*time.Hour).Equal(*c.ExpiresAt))
	}
}

func TestGenerate_BadParams(t *testing.T) {
	r, _ := setupRouter(t)

	for _, path := range []string{
		"/access-code/generate?count=0",
		"/access-code/generate?count=abc",
		"/access-code/generate?count=100000",
		"/access-code/generate?expiresIn=soon",
		"/access-code/generate?expiresIn=-1h",
	} {
		rec := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestValidate(t *testing.T) {
	r, fx := setupRouter(t)
	past := fx.Now.Add(-time.Hour)
	fx.AddCode(t, "good", nil)
	fx.AddCode(t, "stale", &past)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantReason accesscode.Reason
	}{
		{"valid", `{"code":"good"}`, http.StatusOK, true, accesscode.ReasonValid},
		{"expired", `{"code":"stale"}`, http.StatusOK, false, accesscode.ReasonExpired},
		{"unknown", `{"code":"nope"}`, http.StatusOK, false, accesscode.ReasonNotFound},
		{"missing code", `{}`, http.StatusBadRequest, false, ""},
		{"not json", `code=good`, http.StatusBadRequest, false, ""},
		{"empty body", ``, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/access-code/validate", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res accesscode.ValidationResult
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestAssign(t *testing.T) {
	r, fx := setupRouter(t)
	fx.AddCode(t, "abc", nil)

	rec := do(r, http.MethodPost, "/access-code/assign", `{"code":"abc","email":"admin@oak.edu","schoolName":"Oak"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var code accesscode.AccessCode
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&code))
	assert.Equal(t, accesscode.StatusUsed, code.Status)
	assert.Equal(t, "admin@oak.edu", *code.UserEmail)

	rec = do(r, http.MethodPost, "/access-code/assign", `{"code":"abc","email":"other@oak.edu","schoolName":"Oak"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp common.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.NotEmpty(t, errResp.Error)
	assert.False(t, errResp.Retryable)

	rec = do(r, http.MethodPost, "/access-code/assign", `{"code":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList(t *testing.T) {
	r, fx := setupRouter(t)

	rec := do(r, http.MethodGet, "/dashboard/access-codes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	fx.AddCode(t, "one", nil)
	fx.AddCode(t, "two", nil)

	rec = do(r, http.MethodGet, "/dashboard/access-codes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var codes []accesscode.AccessCode
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&codes))
	assert.Len(t, codes, 2)
}
