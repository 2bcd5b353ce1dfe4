package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/requestdata"
	"github.com/peakform/peakform-backend/internal/services"
)

const testJWTSecret = "middleware-test-secret"

func signToken(t *testing.T, secret string, subject string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthRouter(t *testing.T) (*gin.Engine, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	auth := services.NewAuthService(nil, log, nil, testJWTSecret, time.Hour)
	mw := NewAuthMiddleware(log, auth)

	var seen uuid.UUID
	router := gin.New()
	router.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		rd := requestdata.GetRequestData(c.Request.Context())
		if rd != nil {
			seen = rd.UserID
		}
		c.Status(http.StatusOK)
	})
	return router, &seen
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	router, seen := newAuthRouter(t)
	userID := uuid.New()
	token := signToken(t, testJWTSecret, userID.String(), time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body)
	}
	if *seen != userID {
		t.Fatalf("request user: want=%s got=%s", userID, *seen)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	router, seen := newAuthRouter(t)
	userID := uuid.New()
	token := signToken(t, testJWTSecret, userID.String(), time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	rec := serve(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if *seen != userID {
		t.Fatalf("request user: want=%s got=%s", userID, *seen)
	}
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	router, _ := newAuthRouter(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"malformed", "Bearer not.a.jwt"},
		{"wrong_scheme", "Basic abc"},
		{"wrong_secret", "Bearer " + signToken(t, "other-secret", uuid.NewString(), time.Hour)},
		{"expired", "Bearer " + signToken(t, testJWTSecret, uuid.NewString(), -time.Minute)},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := serve(router, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status want=401 got=%d", tc.name, rec.Code)
		}
	}
}

func TestRequireAuthRejectsNonUUIDSubject(t *testing.T) {
	router, _ := newAuthRouter(t)
	token := signToken(t, testJWTSecret, "not-a-uuid", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
}
