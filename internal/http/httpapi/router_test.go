package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenestudio/internal/adapter/memstore"
	"scenestudio/internal/domain"
	"scenestudio/internal/http/handlers"
	"scenestudio/internal/metrics"
	"scenestudio/internal/middleware"
)

const secret = "test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	users := memstore.NewUserStore()
	users.Put(domain.User{ID: "u1", Tier: domain.TierPro, BillingStatus: domain.BillingStatusActive})
	app := handlers.NewApp(handlers.Deps{Logger: zerolog.Nop(), Users: users})

	reg := prometheus.NewRegistry()
	metrics.NewPipeline(reg)
	return NewRouter(app, Options{
		Logger:          zerolog.Nop(),
		JWTSecret:       secret,
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimitPerMin: 100,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := middleware.SignJWT(secret, middleware.TokenClaims{Sub: sub, Exp: time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestPublicRoutes(t *testing.T) {
	r := newTestRouter(t)
	for _, path := range []string{"/v1/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/batches", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
