package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func testClaims(userID int64) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"user_id": userID,
		"email":   "alice@example.com",
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("password")
	require.NoError(t, err)
	assert.NotEqual(t, "password", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("password")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}

func TestUserFromToken(t *testing.T) {
	svc := NewService(nil, testSecret)
	token := signToken(t, testSecret, testClaims(42))

	id, err := svc.UserFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestUserFromTokenRejectsWrongSecret(t *testing.T) {
	svc := NewService(nil, testSecret)
	token := signToken(t, []byte("other-secret"), testClaims(42))

	_, err := svc.UserFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserFromTokenRejectsExpired(t *testing.T) {
	svc := NewService(nil, testSecret)
	claims := testClaims(42)
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := signToken(t, testSecret, claims)

	_, err := svc.UserFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserFromTokenRejectsWrongSigningMethod(t *testing.T) {
	svc := NewService(nil, testSecret)

	// alg=none with an empty signature must never verify.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims(42))
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.UserFromToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserFromTokenRejectsGarbage(t *testing.T) {
	svc := NewService(nil, testSecret)
	_, err := svc.UserFromToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := NewService(nil, testSecret)
	token := signToken(t, testSecret, testClaims(42))

	_, err := svc.UserFromToken(token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(token))

	_, err = svc.UserFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutOnlyRevokesPresentedToken(t *testing.T) {
	svc := NewService(nil, testSecret)
	first := signToken(t, testSecret, testClaims(42))
	second := signToken(t, testSecret, testClaims(42))

	require.NoError(t, svc.Logout(first))

	// A different session for the same user stays valid.
	id, err := svc.UserFromToken(second)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestLogoutRejectsInvalidToken(t *testing.T) {
	svc := NewService(nil, testSecret)
	assert.ErrorIs(t, svc.Logout("garbage"), ErrInvalidToken)
}
