package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/persona-e2e/internal/errs"
)

func TestLoad_DefaultAccount(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default:\n  email: hc@restmail.net\n  password: s3cret\n"), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	acct, err := f.Default()
	require.NoError(t, err)
	assert.Equal(t, Account{Email: "hc@restmail.net", Password: "s3cret"}, acct)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "c.yaml")
	want := File{"default": {Email: "a@restmail.net", Password: "pw"}, "other": {Email: "b@restmail.net", Password: "pw2"}}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Load("")
	assert.True(t, errs.Is(err, errs.Configuration))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errs.Is(err, errs.Configuration))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("default: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestAccount_MissingOrIncomplete(t *testing.T) {
	t.Parallel()
	f := File{"partial": {Email: "x@restmail.net"}}

	_, err := f.Default()
	assert.True(t, errs.Is(err, errs.Configuration))

	_, err = f.Account("partial")
	assert.True(t, errs.Is(err, errs.Configuration))
}
