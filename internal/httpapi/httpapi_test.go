package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/client"
	"github.com/MrEthical07/phoneAuth/userstore"
	"github.com/stretchr/testify/require"
)

const testPhone = "+8613800001234"

type apiHarness struct {
	engine  *phoneAuth.Engine
	handler http.Handler
}

func newAPI(t *testing.T, opts Options) *apiHarness {
	t.Helper()

	cfg := phoneAuth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.OTP.ReturnCodeToClient = true
	cfg.OTP.PurgeInterval = 0
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := phoneAuth.New().
		WithConfig(cfg).
		WithUserProvider(userstore.NewMemory()).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &apiHarness{engine: engine, handler: NewRouter(engine, opts)}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func (h *apiHarness) sendCode(t *testing.T, phone string) string {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/auth/send-code", map[string]string{"phone": phone})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out sendCodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.DevCode)
	return out.DevCode
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func badCode(code string) string {
	if code[0] == '0' {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

func TestSendCodeThenResendTooSoon(t *testing.T) {
	h := newAPI(t, Options{})
	h.sendCode(t, testPhone)

	rr := h.do(t, http.MethodPost, "/api/auth/send-code", map[string]string{"phone": testPhone})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	out := decodeError(t, rr)
	require.Greater(t, out.RetryAfter, int64(55))
	require.LessOrEqual(t, out.RetryAfter, int64(60))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestSendCodeValidation(t *testing.T) {
	h := newAPI(t, Options{})

	rr := h.do(t, http.MethodPost, "/api/auth/send-code", map[string]string{"phone": ""})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/send-code", map[string]string{"phone": "call me"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid phone number", decodeError(t, rr).Message)

	rr = h.do(t, http.MethodPost, "/api/auth/send-code", `{"phone":"+8613800001234","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/send-code", `{"phone":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCodeLoginAndMe(t *testing.T) {
	h := newAPI(t, Options{})
	code := h.sendCode(t, testPhone)

	rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": code})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var session sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.NotZero(t, session.ExpiresAt)
	require.True(t, session.Created)
	require.Equal(t, "Reader_1234", session.User.Nickname)
	require.Equal(t, testPhone, session.User.Phone)

	rr = h.do(t, http.MethodGet, "/api/auth/me", nil, "Authorization", "Bearer "+session.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var me userResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	require.Equal(t, session.User.ID, me.ID)

	rr = h.do(t, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.JSONEq(t, `{"message":"unauthorized"}`, rr.Body.String())
}

func TestCodeLoginFailures(t *testing.T) {
	h := newAPI(t, Options{})

	rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": "123456"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "request a code first", decodeError(t, rr).Message)

	code := h.sendCode(t, testPhone)
	wrong := badCode(code)
	for i := 4; i >= 1; i-- {
		rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": wrong})
		require.Equal(t, http.StatusBadRequest, rr.Code)
		out := decodeError(t, rr)
		require.NotNil(t, out.AttemptsRemaining)
		require.Equal(t, i, *out.AttemptsRemaining)
	}

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": wrong})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	out := decodeError(t, rr)
	require.EqualValues(t, 600, out.RetryAfter)
	require.Contains(t, out.Message, "10 minutes")

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": code})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisterAndPasswordLogin(t *testing.T) {
	h := newAPI(t, Options{})
	code := h.sendCode(t, testPhone)

	rr := h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"phone": testPhone, "code": code, "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"phone": testPhone, "code": code, "password": "correct-horse-1", "nickname": "Ada",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.Equal(t, "Ada", session.User.Nickname)

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "password": "correct-horse-1"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "password": "wrong-horse-1"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid phone or password", decodeError(t, rr).Message)
}

func TestRegisterExistingAccountConflict(t *testing.T) {
	h := newAPI(t, Options{})
	code := h.sendCode(t, testPhone)
	rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": code})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"phone": testPhone, "code": "123456", "password": "correct-horse-1",
	})
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	h := newAPI(t, Options{})
	code := h.sendCode(t, testPhone)
	rr := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"phone": testPhone, "code": code})
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))

	rr = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"token": ""})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"token": "forged.token.value"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"token": session.Token})
	require.Equal(t, http.StatusOK, rr.Code)
	var out tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	require.GreaterOrEqual(t, out.ExpiresAt, session.ExpiresAt)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	healthy := true
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("phoneauth_code_login_success_total 0\n"))
	})
	h := newAPI(t, Options{
		MetricsHandler: metrics,
		Health: func(context.Context) error {
			if !healthy {
				return errors.New("redis down")
			}
			return nil
		},
	})

	rr := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	healthy = false
	rr = h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "phoneauth_")
}

func TestRequestIDEchoed(t *testing.T) {
	h := newAPI(t, Options{})
	rr := h.do(t, http.MethodGet, "/healthz", nil, "X-Request-Id", "trace-77")
	require.Equal(t, "trace-77", rr.Header().Get("X-Request-Id"))
}

func TestToHTTPMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{phoneAuth.ErrInvalidCode, http.StatusBadRequest},
		{phoneAuth.ErrPasswordRateLimited, http.StatusTooManyRequests},
		{phoneAuth.ErrRegistrationDisabled, http.StatusForbidden},
		{phoneAuth.ErrUserNotFound, http.StatusNotFound},
		{phoneAuth.ErrTokenExpired, http.StatusUnauthorized},
		{phoneAuth.ErrSMSUnavailable, http.StatusServiceUnavailable},
		{&phoneAuth.CodeError{Err: phoneAuth.ErrCodeExpired}, http.StatusBadRequest},
		{&phoneAuth.CodeError{Err: phoneAuth.ErrCodeLocked}, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, resp := toHTTP(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.NotEmpty(t, resp.Message)
	}
}

func TestWriteErrorCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/send-code", nil).WithContext(ctx)

	rr := httptest.NewRecorder()
	writeError(rr, req, phoneAuth.ErrOTPUnavailable)
	require.Equal(t, StatusClientClosedRequest, rr.Code)

	rr = httptest.NewRecorder()
	writeError(rr, httptest.NewRequest(http.MethodPost, "/api/auth/send-code", nil), phoneAuth.ErrOTPUnavailable)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	writeError(rr, req, phoneAuth.ErrInvalidCode)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClientAgainstServer(t *testing.T) {
	h := newAPI(t, Options{})
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	ctx := context.Background()

	sent, err := c.SendCode(ctx, testPhone)
	require.NoError(t, err)
	require.NotEmpty(t, sent.DevCode)

	session, err := c.Login(ctx, testPhone, sent.DevCode, "")
	require.NoError(t, err)
	require.Equal(t, "Reader_1234", session.User.Nickname)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, me.ID)

	_, err = c.SendCode(ctx, testPhone)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Positive(t, apiErr.RetryAfter)
}
