// Package authorization decides whether the caller of a request may perform an
// operation on an entity type.
package authorization

import (
	"context"
	"fmt"

	"github.com/asakaida/datagraph/internal/entities"
)

// Permissions checked by the resolvers
const (
	PermissionRead   = "read"
	PermissionCreate = "create"
	PermissionUpdate = "update"
	PermissionDelete = "delete"
)

// Authorizer checks a permission on a resource for the caller found in ctx.
// A denial wraps entities.ErrUnauthorized.
type Authorizer interface {
	Check(ctx context.Context, resource, permission string) error
}

// AllowAll grants everything; used when sign-in is not required
type AllowAll struct{}

// Check implements Authorizer
func (AllowAll) Check(ctx context.Context, resource, permission string) error {
	return nil
}

// UnauthorizedError reports a denied permission
type UnauthorizedError struct {
	Resource   string
	Permission string
	Reason     string
}

// Error implements the error interface
func (e *UnauthorizedError) Error() string {
	msg := fmt.Sprintf("permission denied: %s on %s", e.Permission, e.Resource)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is allows errors.Is(err, entities.ErrUnauthorized)
func (e *UnauthorizedError) Is(target error) bool {
	return target == entities.ErrUnauthorized
}

type tokenKey struct{}

// WithToken stores the caller's bearer token in the context
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the caller's bearer token, or "" when there is none
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
