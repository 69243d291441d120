package auth

import (
	"errors"
	"net/http"
)

// Roles understood by the triage service.
const (
	RoleBeneficiary = "beneficiary"
	RoleNurse       = "nurse"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is who is asking. Credential verification happens upstream; the
// core only ever sees the resolved user and role.
type Identity struct {
	UserID string
	Role   string
}

// Authenticator resolves the identity behind an HTTP request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// Authorize reports whether a role satisfies a requirement.
func Authorize(role, required string) bool {
	return role == required
}

// HeaderAuth trusts identity headers set by an authenticating reverse
// proxy. Only deploy it behind a gateway that strips these headers from
// client traffic.
type HeaderAuth struct {
	UserHeader string
	RoleHeader string
}

// NewHeaderAuth returns a HeaderAuth with the default header names.
func NewHeaderAuth() *HeaderAuth {
	return &HeaderAuth{UserHeader: "X-Auth-User", RoleHeader: "X-Auth-Role"}
}

func (h *HeaderAuth) Authenticate(r *http.Request) (Identity, error) {
	user := r.Header.Get(h.UserHeader)
	role := r.Header.Get(h.RoleHeader)
	if user == "" {
		return Identity{}, ErrUnauthenticated
	}
	if role != RoleBeneficiary && role != RoleNurse {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: user, Role: role}, nil
}
