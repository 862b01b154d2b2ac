// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. Tokens are HS256 JWTs;
// the "sub" claim becomes the request user id (Gin key "userID") and the
// optional "scope"/"scopes" claim gates privileged routes via RequireScope.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyScopes = "auth.scopes"
)

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing and validation failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// AuthOptions configures Auth. An empty Secret disables authentication.
type AuthOptions struct {
	Secret string
	Issuer string
}

// Claims is the normalized subset of a verified token.
type Claims struct {
	Subject string
	Scopes  map[string]struct{}
}

// ParseToken verifies an HS256 token against opts and returns its claims.
func ParseToken(raw string, opts AuthOptions) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(opts.Secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	sub, _ := mc.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	scopes := normalizeScopes(mc["scopes"])
	for s := range normalizeScopes(mc["scope"]) {
		scopes[s] = struct{}{}
	}
	return &Claims{Subject: sub, Scopes: scopes}, nil
}

func normalizeScopes(v any) map[string]struct{} {
	out := make(map[string]struct{})
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out[s] = struct{}{}
			}
		}
	case string:
		for _, s := range strings.Fields(t) {
			out[s] = struct{}{}
		}
	}
	return out
}

// Auth verifies "Authorization: Bearer <jwt>" and stores the subject under
// "userID". Failures abort with 401 in the standard error envelope. With an
// empty secret the middleware is a no-op.
func Auth(opts AuthOptions) gin.HandlerFunc {
	if opts.Secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			token = ""
		}

		claims, err := ParseToken(token, opts)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("auth rejected")
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    err.Error(),
			})
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyScopes, claims.Scopes)
		c.Next()
	}
}

// RequireScope rejects authenticated requests whose token lacks scope with
// 403. Requests that carry no verified claims (authentication disabled) pass.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ctxKeyScopes)
		if !ok {
			c.Next()
			return
		}
		scopes, _ := v.(map[string]struct{})
		if _, has := scopes[scope]; !has {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "missing scope " + scope,
			})
			return
		}
		c.Next()
	}
}

// Subject returns the verified token subject, if Auth stored one.
func Subject(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
