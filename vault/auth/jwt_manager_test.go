package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedEndpoint(manager *JwtManager) chi.Router {
	r := chi.NewRouter()
	r.Use(manager.Verifier(), manager.Authenticator())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		userId, err := ValueFromContext(r, userIdKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(userId))
	})
	return r
}

func callWithToken(router chi.Router, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

// forgeToken signs arbitrary claims outside of the manager, to exercise the
// verifier against tokens it did not mint.
func forgeToken(t *testing.T, secret []byte, userId uuid.UUID, expiry time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdKey: userId.String(),
		roleKey:   "viewer",
		"exp":     expiry.Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestJwtVerification(t *testing.T) {
	secret := []byte("0cvkj2o3ijv02i")
	manager := NewJwtManager(secret)
	router := protectedEndpoint(manager)

	userId := uuid.New()
	token, err := manager.CreateUserJwt(userId, "editor")
	require.NoError(t, err)

	res := callWithToken(router, token)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, userId.String(), res.Body.String())
}

func TestJwtMissingToken(t *testing.T) {
	manager := NewJwtManager([]byte("0cvkj2o3ijv02i"))
	res := callWithToken(protectedEndpoint(manager), "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestJwtExpiredToken(t *testing.T) {
	secret := []byte("0cvkj2o3ijv02i")
	manager := NewJwtManager(secret)

	expired := forgeToken(t, secret, uuid.New(), time.Now().Add(-time.Hour))
	res := callWithToken(protectedEndpoint(manager), expired)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	valid := forgeToken(t, secret, uuid.New(), time.Now().Add(time.Hour))
	res = callWithToken(protectedEndpoint(manager), valid)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestJwtWrongSecret(t *testing.T) {
	manager := NewJwtManager([]byte("0cvkj2o3ijv02i"))

	forged := forgeToken(t, []byte("attacker_secret"), uuid.New(), time.Now().Add(time.Hour))
	res := callWithToken(protectedEndpoint(manager), forged)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestJwtTamperedToken(t *testing.T) {
	manager := NewJwtManager([]byte("0cvkj2o3ijv02i"))

	token, err := manager.CreateUserJwt(uuid.New(), "viewer")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	res := callWithToken(protectedEndpoint(manager), tampered)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
