package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(expiresIn time.Duration) *models.JWTClaims {
	now := time.Now().UTC()
	return &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleScheduler,
		Email:  "scheduler@campus.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "campus-identity",
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"timetable-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenServiceConfig{Secret: "secret", Issuer: "campus-identity", Audience: []string{"timetable-api"}}, nil)

	claims, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, validClaims(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleScheduler, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenServiceConfig{Secret: "secret", Issuer: "campus-identity"}, nil)

	missingRole := validClaims(time.Hour)
	missingRole.Role = ""
	wrongIssuer := validClaims(time.Hour)
	wrongIssuer.Issuer = "someone-else"

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.SigningMethodHS256, validClaims(time.Hour)),
		"expired":      signToken(t, "secret", jwt.SigningMethodHS256, validClaims(-time.Minute)),
		"wrong method": signToken(t, "secret", jwt.SigningMethodHS512, validClaims(time.Hour)),
		"wrong issuer": signToken(t, "secret", jwt.SigningMethodHS256, wrongIssuer),
		"missing role": signToken(t, "secret", jwt.SigningMethodHS256, missingRole),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
		})
	}
}
