package backend

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// LoadToken reads the bearer token from a file. An empty path disables
// authentication, which some self-hosted backends allow.
func LoadToken(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	warnIfExpired(token)
	return token, nil
}

// warnIfExpired decodes the token without verifying its signature and logs
// when it is already past its expiry. Submission would fail with a 401
// anyway; this makes the reason obvious up front. Opaque non-JWT tokens are
// passed through silently.
func warnIfExpired(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		zap.S().Named("backend").Warnw("bearer token is expired", "expiredAt", exp.Time)
	}
}
