package auth

import (
	"context"
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

var JWTKey = []byte(os.Getenv("JWT_KEY"))

// EnsureKey refuses startup without a signing key. A well-known default
// would make every token forgeable.
func EnsureKey() error {
	if len(JWTKey) == 0 {
		return errors.New("JWT_KEY is not set")
	}
	return nil
}

type Claims struct {
	Profile struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	} `json:"profile"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

type authInfo struct {
	userID string
	role   string
}

func SetAuthContext(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, authInfo{userID: userID, role: role})
}

func FromContext(ctx context.Context) (userID, role string, ok bool) {
	info, ok := ctx.Value(ctxKey{}).(authInfo)
	if !ok {
		return "", "", false
	}
	return info.userID, info.role, true
}
