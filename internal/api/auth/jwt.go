// Package auth verifies the bearer tokens that carry the caller's user id.
// Tokens are minted by the identity front end; the core only checks them.
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/pkg/logging"
)

const (
	userKey  = "spherecore.user_id"
	errorKey = "spherecore.auth_error"

	defaultTTL = 30 * time.Minute
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Verifier signs and checks HS256 tokens whose subject is a numeric user id
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier for secret. An empty issuer is not checked.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
}

// Issue mints a token for userID
func (v *Verifier) Issue(userID int64) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	})
	return token.SignedString(v.secret)
}

// Parse returns the user id carried by token
func (v *Verifier) Parse(token string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// Middleware resolves the bearer token of each request. Requests without a
// token pass through anonymously; methods that need a caller ask UserID.
func Middleware(v *Verifier) gin.HandlerFunc {
	logger := logging.WithComponent("auth")
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}
		userID, err := v.Parse(strings.TrimSpace(token))
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err))
			c.Set(errorKey, err)
			c.Next()
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller of c
func UserID(c *gin.Context) (int64, error) {
	if v, ok := c.Get(userKey); ok {
		return v.(int64), nil
	}
	if v, ok := c.Get(errorKey); ok {
		return 0, apperr.Unauthorizedf("%v", v)
	}
	return 0, apperr.Unauthorizedf("authentication required")
}

// ViewerID returns the authenticated caller of c, or 0 for an anonymous request.
// A rejected token is still an error.
func ViewerID(c *gin.Context) (int64, error) {
	if _, ok := c.Get(userKey); !ok {
		if _, rejected := c.Get(errorKey); !rejected {
			return 0, nil
		}
	}
	return UserID(c)
}
