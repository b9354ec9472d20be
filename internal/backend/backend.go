// Package backend is the client side of the hosted data service: user
// sessions and the Opportunity entity. HTTPClient talks to the real service,
// LocalStore stands in for it during development.
package backend

import (
	"context"
	"errors"
	"fmt"

	"connectkids/internal/model"
)

var (
	// ErrUnauthenticated means there is no usable session.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials is returned by PasswordLogin.Login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Auth resolves and updates the signed-in user.
type Auth interface {
	Me(ctx context.Context, token string) (model.User, error)
	UpdateMe(ctx context.Context, token string, update model.ProfileUpdate) (model.User, error)
	// LoginURL is where the browser goes to sign in before returning to
	// returnURL.
	LoginURL(returnURL string) string
}

// Entities exposes the Opportunity entity.
type Entities interface {
	CreateOpportunity(ctx context.Context, token string, d model.Draft) (model.Opportunity, error)
	ListOpportunities(ctx context.Context, token string) ([]model.Opportunity, error)
}

type Client interface {
	Auth
	Entities
}

// PasswordLogin is implemented by backends whose login form is served by
// this application.
type PasswordLogin interface {
	Login(ctx context.Context, email, password string) (token string, err error)
}

// StatusError is a non-2xx reply from the data service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}
