package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func testJWT() JWT {
	return JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}
}

func TestJWT_SignVerify(t *testing.T) {
	j := testJWT()
	tok, exp, err := j.Sign(Claims{Provider: "0xabc", Role: RoleProvider})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expires_at=%v want future", exp)
	}
	claims, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if claims.Provider != "0xabc" || claims.Subject != "0xabc" || claims.Issuer != issuer {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestJWT_RejectsForeignAndExpired(t *testing.T) {
	j := testJWT()
	other := JWT{Secret: []byte("other")}
	tok, _, err := other.Sign(Claims{Provider: "0xabc", Role: RoleProvider})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := j.Verify(tok); err == nil {
		t.Fatalf("expected signature error")
	}

	expired, _, err := j.Sign(Claims{
		Provider:         "0xabc",
		Role:             RoleProvider,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := j.Verify(expired); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestJWT_Disabled(t *testing.T) {
	if _, _, err := (JWT{}).Sign(Claims{}); err != ErrDisabled {
		t.Fatalf("err=%v want=%v", err, ErrDisabled)
	}
}

func newRouter(j JWT, adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/provider", Middleware(j), func(c *gin.Context) {
		c.String(http.StatusOK, Provider(c))
	})
	r.GET("/admin", RequireAdmin(j, adminKey), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func do(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_SetsProvider(t *testing.T) {
	j := testJWT()
	r := newRouter(j, "")
	tok, _, _ := j.Sign(Claims{Provider: "0xABC", Role: RoleProvider})

	w := do(r, "/provider", map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK || w.Body.String() != "0xabc" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	if w := do(r, "/provider", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d want=401", w.Code)
	}
	if w := do(r, "/provider", map[string]string{"Authorization": "Basic abc"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d want=401", w.Code)
	}
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	r := newRouter(JWT{}, "")
	w := do(r, "/provider", nil)
	if w.Code != http.StatusOK || w.Body.String() != "" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestRequireAdmin(t *testing.T) {
	j := testJWT()
	r := newRouter(j, "s3cret")
	admin, _, _ := j.Sign(Claims{Role: RoleAdmin})
	provider, _, _ := j.Sign(Claims{Provider: "0xabc", Role: RoleProvider})

	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"admin key", map[string]string{"X-Admin-Key": "s3cret"}, http.StatusOK},
		{"wrong key", map[string]string{"X-Admin-Key": "nope"}, http.StatusUnauthorized},
		{"admin token", map[string]string{"Authorization": "Bearer " + admin}, http.StatusOK},
		{"provider token", map[string]string{"Authorization": "Bearer " + provider}, http.StatusUnauthorized},
		{"nothing", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if w := do(r, "/admin", tc.headers); w.Code != tc.want {
			t.Fatalf("%s: code=%d want=%d", tc.name, w.Code, tc.want)
		}
	}
}
