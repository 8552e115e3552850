package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// AccessTokenClaims represents the typed JWT presented by clients. Tokens
// are minted by the identity service; this service only verifies them.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
