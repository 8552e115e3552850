package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "sokolink"}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(userID uuid.UUID, role enums.UserRole) AccessTokenClaims {
	now := time.Now()
	return AccessTokenClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestParseAccessToken(t *testing.T) {
	userID := uuid.New()
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), validClaims(userID, enums.UserRoleVendor))

	claims, err := ParseAccessToken(testCfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.UserRoleVendor {
		t.Fatalf("unexpected role %s", claims.Role)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	userID := uuid.New()

	expired := validClaims(userID, enums.UserRoleCustomer)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims(userID, enums.UserRoleCustomer)
	wrongIssuer.Issuer = "someone-else"

	noExpiry := validClaims(userID, enums.UserRoleCustomer)
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"bad secret":    signClaims(t, jwt.SigningMethodHS256, []byte("other"), validClaims(userID, enums.UserRoleCustomer)),
		"wrong method":  signClaims(t, jwt.SigningMethodHS512, []byte(testCfg.Secret), validClaims(userID, enums.UserRoleCustomer)),
		"expired":       signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), expired),
		"wrong issuer":  signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), wrongIssuer),
		"no expiry":     signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), noExpiry),
		"unknown role":  signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), validClaims(userID, enums.UserRole("root"))),
		"missing user":  signClaims(t, jwt.SigningMethodHS256, []byte(testCfg.Secret), validClaims(uuid.Nil, enums.UserRoleAdmin)),
		"garbage input": "not-a-token",
	}
	for name, token := range cases {
		if _, err := ParseAccessToken(testCfg, token); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := ParseAccessToken(config.JWTConfig{}, "x"); err == nil {
		t.Fatalf("expected error without secret")
	}
}
