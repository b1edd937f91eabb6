package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie carries the HS256 access token of a signed-in user.
const AccessTokenCookie = "accessToken"

var (
	ErrMissingToken      = errors.New("missing access token")
	ErrInvalidToken      = errors.New("invalid access token")
	ErrSchedulerKeyUnset = errors.New("scheduler API key not configured")
)

// Authenticator resolves callers of the API: users through their access
// token, and the internal cron through a shared API key.
type Authenticator struct {
	secret []byte
	apiKey string
}

func NewAuthenticator(jwtSecret, schedulerAPIKey string) *Authenticator {
	return &Authenticator{secret: []byte(jwtSecret), apiKey: schedulerAPIKey}
}

// UserID returns the userId claim of the request's access-token cookie.
func (a *Authenticator) UserID(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil || cookie.Value == "" {
		return 0, ErrMissingToken
	}
	if len(a.secret) == 0 {
		return 0, ErrInvalidToken
	}

	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	return userIDClaim(claims["userId"])
}

// userIDClaim accepts the id as a JSON number or a decimal string.
func userIDClaim(raw any) (int64, error) {
	var id int64
	switch v := raw.(type) {
	case float64:
		id = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, ErrInvalidToken
		}
		id = n
	default:
		return 0, ErrInvalidToken
	}
	if id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// CheckSchedulerKey verifies "Authorization: Bearer <key>".
// ErrSchedulerKeyUnset means the server itself is misconfigured.
func (a *Authenticator) CheckSchedulerKey(r *http.Request) error {
	if a.apiKey == "" {
		return ErrSchedulerKeyUnset
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKey)) != 1 {
		return ErrMissingToken
	}
	return nil
}

// IssueAccessToken signs an access token for userID. The sign-in flow lives
// elsewhere; this is used by tooling and tests.
func IssueAccessToken(secret string, userID int64, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["userId"] = strconv.FormatInt(userID, 10)
	claims["exp"] = time.Now().Add(ttl).Unix()
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
