package authorization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asakaida/datagraph/pkg/cache"
)

// Claims is the payload of an access token
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// CacheObserver is told whether a decision came from the cache
type CacheObserver interface {
	ObserveAuthCache(hit bool)
}

// JWTAuthorizer verifies HS256 bearer tokens and checks the roles they carry against
// the ACL rules. Decisions are cached per token, resource and permission.
type JWTAuthorizer struct {
	secret   []byte
	rules    Rules
	cache    cache.Cache[bool] // Optional
	cacheTTL time.Duration
	observer CacheObserver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a JWTAuthorizer
type Option func(*JWTAuthorizer)

// WithCache caches decisions in c for at most ttl
func WithCache(c cache.Cache[bool], ttl time.Duration) Option {
	return func(a *JWTAuthorizer) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithCacheObserver sets the cache observer
func WithCacheObserver(o CacheObserver) Option {
	return func(a *JWTAuthorizer) {
		a.observer = o
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *JWTAuthorizer) {
		a.logger = logger
	}
}

// NewJWTAuthorizer creates a new JWTAuthorizer
func NewJWTAuthorizer(secret []byte, rules Rules, opts ...Option) *JWTAuthorizer {
	a := &JWTAuthorizer{
		secret: secret,
		rules:  rules,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check implements Authorizer
func (a *JWTAuthorizer) Check(ctx context.Context, resource, permission string) error {
	token := TokenFrom(ctx)
	if token == "" {
		return &UnauthorizedError{Resource: resource, Permission: permission, Reason: "sign in required"}
	}

	key := a.cacheKey(token, resource, permission)
	if a.cache != nil {
		if allowed, ok := a.cache.Get(ctx, key); ok {
			a.observe(true)
			return a.decision(allowed, resource, permission)
		}
		a.observe(false)
	}

	claims, err := a.parse(token)
	if err != nil {
		a.logger.Debug("rejected access token", zap.Error(err))
		return &UnauthorizedError{Resource: resource, Permission: permission, Reason: "invalid token"}
	}

	allowed := a.rules.Allows(claims.Roles, resource, permission)
	if a.cache != nil {
		ttl := a.cacheTTL
		if claims.ExpiresAt != nil {
			if left := claims.ExpiresAt.Sub(a.now()); left < ttl {
				ttl = left
			}
		}
		if ttl > 0 {
			if err := a.cache.Set(ctx, key, allowed, ttl); err != nil {
				a.logger.Warn("failed to cache authorization decision", zap.Error(err))
			}
		}
	}
	if !allowed {
		a.logger.Debug("permission denied",
			zap.String("subject", claims.Subject),
			zap.Strings("roles", claims.Roles),
			zap.String("resource", resource),
			zap.String("permission", permission))
	}
	return a.decision(allowed, resource, permission)
}

func (a *JWTAuthorizer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if len(claims.Roles) == 0 {
		return nil, errors.New("token carries no roles")
	}
	return claims, nil
}

func (a *JWTAuthorizer) decision(allowed bool, resource, permission string) error {
	if allowed {
		return nil
	}
	return &UnauthorizedError{Resource: resource, Permission: permission}
}

func (a *JWTAuthorizer) observe(hit bool) {
	if a.observer != nil {
		a.observer.ObserveAuthCache(hit)
	}
}

// cacheKey hashes the token so raw credentials never sit in the cache
func (a *JWTAuthorizer) cacheKey(token, resource, permission string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]) + ":" + resource + ":" + permission
}

// IssueToken signs an HS256 token for subject carrying roles
func IssueToken(secret []byte, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
