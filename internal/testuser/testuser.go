// Package testuser generates disposable identities on a restmail domain.
package testuser

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultDomain is the disposable mailbox domain.
const DefaultDomain = "restmail.net"

// DefaultPrefix starts every generated local part so runs are easy to spot.
const DefaultPrefix = "personatest"

// User is a test identity. Token holds the last verification token seen for
// it, if any.
type User struct {
	Email    string
	Password string
	Aliases  []string
	Token    string
}

// New returns a user with a fresh address on domain (DefaultDomain when
// empty). The password is the address's local part.
func New(domain string) *User {
	addr := Address(DefaultPrefix, domain)
	return &User{
		Email:    addr,
		Password: LocalPart(addr),
	}
}

// Address returns a unique address of the form <prefix>-<32 hex>@<domain>.
func Address(prefix, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + id + "@" + domain
}

// AddAlias generates another unique address, records it and returns it.
func (u *User) AddAlias(domain string) string {
	alias := Address(DefaultPrefix, domain)
	u.Aliases = append(u.Aliases, alias)
	return alias
}

// Addresses returns the primary address followed by every alias.
func (u *User) Addresses() []string {
	out := make([]string, 0, 1+len(u.Aliases))
	out = append(out, u.Email)
	return append(out, u.Aliases...)
}

// LocalPart returns the part of addr before "@", or addr itself when it has none.
func LocalPart(addr string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(addr), "@")
	return local
}
