package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/pkg/cache/memorycache"
)

var secret = []byte("test-secret")

const rulesYAML = `
roles:
  administrator:
    "*": ["*"]
  editor:
    study: [read, create, update]
    comment: ["*"]
  reader:
    "*": [read]
`

func rules(t *testing.T) Rules {
	t.Helper()
	r, err := ParseRules([]byte(rulesYAML))
	require.NoError(t, err)
	return r
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := IssueToken(secret, "alice", roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRules_Allows(t *testing.T) {
	r := rules(t)

	tests := []struct {
		name       string
		roles      []string
		resource   string
		permission string
		want       bool
	}{
		{"admin wildcard", []string{"administrator"}, "material", PermissionDelete, true},
		{"editor granted", []string{"editor"}, "study", PermissionUpdate, true},
		{"editor not granted", []string{"editor"}, "study", PermissionDelete, false},
		{"editor resource wildcard permission", []string{"editor"}, "comment", PermissionDelete, true},
		{"reader wildcard resource", []string{"reader"}, "material", PermissionRead, true},
		{"reader cannot write", []string{"reader"}, "material", PermissionCreate, false},
		{"roles combine", []string{"reader", "editor"}, "study", PermissionCreate, true},
		{"unknown role", []string{"guest"}, "study", PermissionRead, false},
		{"no roles", nil, "study", PermissionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Allows(tt.roles, tt.resource, tt.permission))
		})
	}
}

func TestParseRules_Errors(t *testing.T) {
	_, err := ParseRules([]byte("roles: {}"))
	assert.ErrorContains(t, err, "no roles")

	_, err = ParseRules([]byte("roles: [a"))
	assert.ErrorContains(t, err, "failed to parse ACL rules")
}

func TestJWTAuthorizer_Check(t *testing.T) {
	auth := NewJWTAuthorizer(secret, rules(t))

	expired, err := IssueToken(secret, "bob", []string{"administrator"}, -time.Minute)
	require.NoError(t, err)
	forged, err := IssueToken([]byte("other-secret"), "eve", []string{"administrator"}, time.Hour)
	require.NoError(t, err)
	noRoles, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		resource   string
		permission string
		wantErr    string
	}{
		{"allowed", token(t, "editor"), "study", PermissionRead, ""},
		{"denied", token(t, "reader"), "study", PermissionDelete, "permission denied: delete on study"},
		{"no token", "", "study", PermissionRead, "sign in required"},
		{"expired", expired, "study", PermissionRead, "invalid token"},
		{"wrong secret", forged, "study", PermissionRead, "invalid token"},
		{"no roles", noRoles, "study", PermissionRead, "invalid token"},
		{"garbage", "not-a-jwt", "study", PermissionRead, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.token != "" {
				ctx = WithToken(ctx, tt.token)
			}
			err := auth.Check(ctx, tt.resource, tt.permission)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, entities.ErrUnauthorized)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type cacheCounter struct{ hits, misses int }

func (c *cacheCounter) ObserveAuthCache(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestJWTAuthorizer_Cache(t *testing.T) {
	c := memorycache.New[bool](&memorycache.Config{MaxEntries: 100, DefaultTTL: time.Minute})
	counter := &cacheCounter{}
	auth := NewJWTAuthorizer(secret, rules(t), WithCache(c, time.Minute), WithCacheObserver(counter))
	ctx := WithToken(context.Background(), token(t, "reader"))

	require.NoError(t, auth.Check(ctx, "study", PermissionRead))
	require.NoError(t, auth.Check(ctx, "study", PermissionRead))
	assert.Error(t, auth.Check(ctx, "study", PermissionUpdate))
	assert.Error(t, auth.Check(ctx, "study", PermissionUpdate), "cached denial still denies")

	assert.Equal(t, 2, counter.hits)
	assert.Equal(t, 2, counter.misses)
	assert.Equal(t, 2, c.Len())

	t.Run("invalid tokens are not cached", func(t *testing.T) {
		bad := WithToken(context.Background(), "not-a-jwt")
		assert.Error(t, auth.Check(bad, "study", PermissionRead))
		assert.Equal(t, 2, c.Len())
	})
}

func TestAllowAll(t *testing.T) {
	assert.NoError(t, AllowAll{}.Check(context.Background(), "study", PermissionDelete))
	var _ Authorizer = AllowAll{}
	var _ Authorizer = (*JWTAuthorizer)(nil)
}
