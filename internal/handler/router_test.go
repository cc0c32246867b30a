package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtchat/internal/app/chat"
	"rtchat/internal/configs"
	"rtchat/internal/pkg/auth/jwt"
	"rtchat/internal/pkg/errs"
)

func testDeps(t *testing.T) *AppDeps {
	t.Helper()

	router := chat.NewRouter(nil, nil)
	t.Cleanup(router.Shutdown)

	return &AppDeps{
		Config: &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
			JWTSecret:      "test-secret",
		},
		Router: router,
		Tokens: jwt.NewService("test-secret"),
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := Router(testDeps(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRegisterRejectsInvalidUsername(t *testing.T) {
	h := Router(testDeps(t))

	body := strings.NewReader(`{"username":"ab","password":"password123"}`)
	req := httptest.NewRequest("POST", "/api/auth/register", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":2204`)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	h := Router(testDeps(t))

	body := strings.NewReader(`{"username":"alice","password":"123"}`)
	req := httptest.NewRequest("POST", "/api/auth/register", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":2205`)
}

func TestChannelRoutesRequireAuthentication(t *testing.T) {
	h := Router(testDeps(t))

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/channels/"},
		{"GET", "/api/users"},
		{"POST", "/api/channels/ch1/kick"},
		{"DELETE", "/api/channels/ch1/"},
	}

	for _, p := range paths {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestInvalidTokenIsTreatedAsAnonymous(t *testing.T) {
	h := Router(testDeps(t))

	req := httptest.NewRequest("GET", "/api/users", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":3101`)
}

func TestKickRejectsMissingBody(t *testing.T) {
	deps := testDeps(t)
	h := Router(deps)

	token, err := deps.Tokens.IssueToken("u1", "alice")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/channels/ch1/kick", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":1001`)
}

func TestErrorCodesHaveStableStatuses(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, errs.NewError(errs.ErrUnauthorized).Status)
	assert.Equal(t, http.StatusForbidden, errs.NewError(errs.ErrNotChannelCreator).Status)
	assert.Equal(t, http.StatusNotFound, errs.NewError(errs.ErrChannelNotFound).Status)
}
