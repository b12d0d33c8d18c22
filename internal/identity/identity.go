// Package identity resolves the authenticated user behind an operation. The
// phone-verification flow that issues credentials is an external provider;
// this package only consumes what it issued.
package identity

import (
	"context"

	"github.com/servicenow/marketplace-be/internal/job"
)

// UserID is an opaque authenticated-user identifier.
type UserID string

// Provider resolves the current user. Absence of an identity means no job
// operation may proceed, surfaced as job.ErrUnauthenticated.
type Provider interface {
	CurrentUser(ctx context.Context) (UserID, error)
}

// Static is a Provider bound to one fixed user, used for view models owned by
// a single signed-in actor and in tests.
type Static struct {
	User UserID
}

// CurrentUser returns the fixed user.
func (s Static) CurrentUser(ctx context.Context) (UserID, error) {
	if s.User == "" {
		return "", job.ErrUnauthenticated
	}
	return s.User, nil
}
