package permission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned by [ParseRole] for names outside the closed role set.
var ErrUnknownRole = errors.New("unknown role")

// Role is a member of the closed role enumeration.
//
// The zero value is not a valid role.
type Role uint8

const (
	roleInvalid Role = iota
	// RoleUser is assigned to every self-registered account.
	RoleUser
	// RoleAdmin may use administrative operations.
	RoleAdmin
)

// All lists every valid role in declaration order.
var All = []Role{RoleUser, RoleAdmin}

// ParseRole converts a role name into a [Role].
//
// Matching is exact after trimming surrounding whitespace; "Admin" is rejected.
func ParseRole(name string) (Role, error) {
	switch strings.TrimSpace(name) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return roleInvalid, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "invalid"
	}
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name, rejecting unknown names.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Allowed is the role gate: it reports whether role satisfies the required set.
//
// Invalid roles are never allowed. An empty required set admits any valid role.
func Allowed(role Role, required ...Role) bool {
	if !role.Valid() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r.Valid() && r == role {
			return true
		}
	}
	return false
}
