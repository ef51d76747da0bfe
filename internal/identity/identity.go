// Package identity defines the opaque account and role identifiers shared by
// the registry and both request ledgers.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// AccountLen is the byte width of an account identifier.
	AccountLen = 20
	// RoleIDLen is the byte width of a role identifier.
	RoleIDLen = 32
)

var (
	// ErrBadAccount indicates a malformed account string.
	ErrBadAccount = errors.New("identity: malformed account")
	// ErrBadRoleID indicates a malformed role identifier string.
	ErrBadRoleID = errors.New("identity: malformed role id")
)

// Account is a fixed-width opaque identity. The zero value is not a valid
// caller identity.
type Account [AccountLen]byte

// RoleID names a capability. The zero value is the root default-admin role.
type RoleID [RoleIDLen]byte

// DefaultAdminRole is the implicit root role that administers itself.
var DefaultAdminRole = RoleID{}

// Built-in role names carried over from the registry's deployment profile.
const (
	RoleNameOwner       = "OWNER_ROLE"
	RoleNameAuditor     = "AUDITOR_ROLE"
	RoleNameDealer      = "DEALER_ROLE"
	RoleNameRoleManager = "ROLE_MANAGER_ROLE"
)

// NamedRole derives a role identifier from its name using Keccak-256, so role
// ids stay stable across deployments and interoperable with external tooling.
func NamedRole(name string) RoleID {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(name))
	var id RoleID
	copy(id[:], h.Sum(nil))
	return id
}

// ParseAccount decodes a 0x-prefixed 40-digit hex account string.
func ParseAccount(s string) (Account, error) {
	raw, err := parseHex(s, AccountLen)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %q", ErrBadAccount, s)
	}
	var a Account
	copy(a[:], raw)
	return a, nil
}

// MustAccount parses s and panics on error. Intended for tests and seed data.
func MustAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseRoleID decodes a 0x-prefixed 64-digit hex role identifier.
func ParseRoleID(s string) (RoleID, error) {
	raw, err := parseHex(s, RoleIDLen)
	if err != nil {
		return RoleID{}, fmt.Errorf("%w: %q", ErrBadRoleID, s)
	}
	var id RoleID
	copy(id[:], raw)
	return id, nil
}

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool {
	return a == Account{}
}

// String renders the account as 0x-prefixed lowercase hex.
func (a Account) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsDefaultAdmin reports whether the id is the root default-admin role.
func (r RoleID) IsDefaultAdmin() bool {
	return r == DefaultAdminRole
}

// String renders the role id as 0x-prefixed lowercase hex.
func (r RoleID) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

func parseHex(s string, width int) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s) != width*2 {
		return nil, fmt.Errorf("want %d hex digits, got %d", width*2, len(s))
	}
	return hex.DecodeString(strings.ToLower(s))
}
