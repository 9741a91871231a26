// Package credentials loads pre-provisioned accounts for health checks.
//
// The file is YAML keyed by account name:
//
//	default:
//	  email: someone@restmail.net
//	  password: hunter2
package credentials

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/persona-e2e/internal/errs"
)

// Account is one stored identity.
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// File maps account names to accounts.
type File map[string]Account

// Load reads a credentials file. An empty path or a missing file is a
// configuration error because the caller asked for credentials explicitly.
func Load(path string) (File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errs.New(errs.Configuration, "credentials file not configured (set PERSONA_CREDENTIALS or --credentials)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.Configuration, "credentials file "+path+" does not exist", err)
		}
		return nil, errs.Wrap(errs.Internal, "read credentials file", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.Configuration, "parse credentials file "+path, err)
	}
	return f, nil
}

// Account returns the named account.
func (f File) Account(name string) (Account, error) {
	acct, ok := f[name]
	if !ok {
		return Account{}, errs.Newf(errs.Configuration, "credentials file has no %q account", name)
	}
	if acct.Email == "" || acct.Password == "" {
		return Account{}, errs.Newf(errs.Configuration, "credentials account %q needs both email and password", name)
	}
	return acct, nil
}

// Default returns the "default" account.
func (f File) Default() (Account, error) {
	return f.Account("default")
}

// Save writes f to path as YAML with owner-only permissions.
func Save(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errs.Wrap(errs.Internal, "encode credentials", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errs.Wrap(errs.Internal, "write credentials file", err)
	}
	return nil
}
