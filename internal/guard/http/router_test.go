package http

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/internal/guard/store/drivers/sqlite"
	"github.com/merchhq/storeguard/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *Router
	priv   ed25519.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	verifier, err := jwtx.NewVerifierForKey(pub, "idp")
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)

	policy := &service.PolicyService{Store: st}
	audit := &service.AuditService{Store: st}

	router := NewRouter(verifier, "test", st, logger)
	router.PolicyService = policy
	router.AuditService = audit
	router.TOTPService = &service.TOTPService{Store: st, Policy: policy, Audit: audit, Issuer: "storeguard-test"}
	router.BackupCodeService = &service.BackupCodeService{Store: st, Policy: policy, Audit: audit}
	router.AdminService = &service.AdminService{
		Store: st, Policy: policy, Audit: audit,
		BootstrapAdminEmails: []string{"founder@example.com"},
	}
	router.RegistrationService = &service.RegistrationService{
		Store: st, Policy: policy, Audit: audit, KeySalt: "test-salt",
	}
	router.MaintenanceService = service.NewMaintenanceService(audit, logger)
	router.ApplyRoutes()

	return &testEnv{router: router, priv: priv}
}

func (e *testEnv) token(t *testing.T, sub, email string, admin bool) string {
	t.Helper()

	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: email,
		Admin: admin,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &claims).SignedString(e.priv)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:40000"
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Safari/605")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/livez", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)

	w = env.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAnonymousRequestsAreDeniedByPolicy(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/totp/secret", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "unauthenticated")
}

func TestInvalidTokenFallsBackToAnonymous(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/totp/secret", "garbage.token.here", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTOTPEnrollmentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1", "alice@example.com", false)

	w := env.do(t, http.MethodPost, "/v1/totp/secret", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp struct {
		OtpauthURL string `json:"otpauthUrl"`
		QRDataURL  string `json:"qrDataUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.OtpauthURL, "otpauth://totp/")
	require.True(t, strings.HasPrefix(resp.QRDataURL, "data:image/png;base64,"))

	t.Run("bad code maps to 403", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/totp/verify", token, `{"code":"000000"}`)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Contains(t, w.Body.String(), "invalid_totp_code")
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/totp/verify", token, `{`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("status reflects pending enrollment", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/totp/status", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"enabled":false`)
	})

	t.Run("valid code enables and reports success", func(t *testing.T) {
		u, err := url.Parse(resp.OtpauthURL)
		require.NoError(t, err)
		secret := u.Query().Get("secret")
		require.NotEmpty(t, secret)

		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, "/v1/totp/verify", token,
			fmt.Sprintf(`{"code":%q}`, code))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"success":true`)
	})

	t.Run("backup codes generate and redeem", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/totp/backup-codes", token, "")
		require.Equal(t, http.StatusOK, w.Code)

		var generated struct {
			Codes []string `json:"codes"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &generated))
		require.Len(t, generated.Codes, 10)

		w = env.do(t, http.MethodPost, "/v1/backup-codes/verify", token,
			fmt.Sprintf(`{"code":%q}`, generated.Codes[0]))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"success":true`)
	})

	t.Run("disable reports success", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/v1/totp", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"success":true`)
	})
}

func TestRegistrationGuardOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	t.Run("clean attempt allowed", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/register/guard", "", `{"email":"new@example.com"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"allowed":true`)
	})

	t.Run("honeypot maps to 403", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/register/guard", "",
			`{"email":"new@example.com","website":"gotcha"}`)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Contains(t, w.Body.String(), "honeypot_filled")
	})

	t.Run("blocked domain maps to 400 with reason", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/register/guard", "",
			`{"email":"x@mailinator.com"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "blocked_email_domain")
	})

	t.Run("test mode requires admin", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/register/guard", "",
			`{"email":"x@example.com","testMode":true}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)

		admin := env.token(t, "admin", "admin@example.com", true)
		w = env.do(t, http.MethodPost, "/v1/register/guard", admin,
			`{"email":"x@mailinator.com","website":"bot","testMode":true}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "honeypot_filled")
		require.Contains(t, w.Body.String(), "blocked_email_domain")
	})

	t.Run("test mode takes the user agent from the payload", func(t *testing.T) {
		// The admin's own browser header must not mask the simulated
		// client.
		admin := env.token(t, "admin", "admin@example.com", true)
		w := env.do(t, http.MethodPost, "/v1/register/guard", admin,
			`{"email":"x@example.com","userAgent":"curl/8.4.0","testMode":true}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "bot_user_agent")
	})
}

func TestAdminEndpointsOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	t.Run("bootstrap self-elevation", func(t *testing.T) {
		founder := env.token(t, "founder-uid", "founder@example.com", false)

		w := env.do(t, http.MethodPost, "/v1/admin/claims", founder, `{}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"success":true`)
		require.Contains(t, w.Body.String(), `"targetUid":"founder-uid"`)
		require.Contains(t, w.Body.String(), `"actorUid":"founder-uid"`)
	})

	t.Run("non-bootstrap user is denied", func(t *testing.T) {
		user := env.token(t, "u9", "u9@example.com", false)

		w := env.do(t, http.MethodPost, "/v1/admin/claims", user, `{}`)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Contains(t, w.Body.String(), "not_in_bootstrap_allowlist")
	})

	t.Run("allowlist round trip", func(t *testing.T) {
		admin := env.token(t, "admin", "admin@example.com", true)

		w := env.do(t, http.MethodPut, "/v1/admin/allowlist", admin,
			`{"adminEmails":["ops@example.com"],"blockedEmailDomains":["spam.example"]}`)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/v1/admin/allowlist", admin, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "ops@example.com")

		// Stats endpoints share the same gate.
		w = env.do(t, http.MethodGet, "/v1/stats/registration-blocks", admin, "")
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/v1/stats/security-logs?days=3", admin, "")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("maintenance triggers are admin only", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/maintenance/aggregate", "", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)

		admin := env.token(t, "admin", "admin@example.com", true)
		w = env.do(t, http.MethodPost, "/v1/maintenance/aggregate", admin, "")
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodPost, "/v1/maintenance/cleanup", admin, "")
		require.Equal(t, http.StatusOK, w.Code)
	})
}
