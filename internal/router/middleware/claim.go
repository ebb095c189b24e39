package middleware

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type UserClaims struct {
	UserId int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func NewUserClaims(id int64, username string, now time.Time, duration time.Duration) *UserClaims {
	return &UserClaims{
		UserId: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
}
