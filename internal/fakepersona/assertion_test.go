package fakepersona

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSigner_RoundTrip(t *rapid.T) {
	s, err := NewSigner(nil)
	require.NoError(t, err)
	addr := rapid.StringMatching(`[a-z0-9]{1,12}@restmail\.net`).Draw(t, "addr")
	aud := "http://127.0.0.1:" + rapid.StringMatching(`[1-9][0-9]{3}`).Draw(t, "port") + "/123done"

	token, err := s.Sign("127.0.0.1", addr, aud, epoch)
	require.NoError(t, err)
	got, err := s.Verify(token, "127.0.0.1", aud, epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestSigner_RoundTrip(t *testing.T) {
	rapid.Check(t, testSigner_RoundTrip)
}

func TestSigner_RejectsWrongAudienceAndIssuer(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(nil)
	require.NoError(t, err)
	token, err := s.Sign("idp.test", "a@restmail.net", "http://idp.test/123done", epoch)
	require.NoError(t, err)

	_, err = s.Verify(token, "idp.test", "http://idp.test/myfavoritebeer", epoch)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
	_, err = s.Verify(token, "evil.test", "http://idp.test/123done", epoch)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestSigner_RejectsExpired(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(nil)
	require.NoError(t, err)
	token, err := s.Sign("idp.test", "a@restmail.net", "http://idp.test/123done", epoch)
	require.NoError(t, err)

	// go-jose allows one minute of leeway past expiry.
	_, err = s.Verify(token, "idp.test", "http://idp.test/123done", epoch.Add(AssertionLifetime+2*time.Minute))
	assert.ErrorIs(t, err, ErrAssertionExpired)
}

func TestSigner_RejectsOtherKey(t *testing.T) {
	t.Parallel()
	a, err := NewSigner(nil)
	require.NoError(t, err)
	b, err := NewSigner(nil)
	require.NoError(t, err)
	token, err := a.Sign("idp.test", "a@restmail.net", "http://idp.test/123done", epoch)
	require.NoError(t, err)

	_, err = b.Verify(token, "idp.test", "http://idp.test/123done", epoch)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
	_, err = b.Verify("not-a-jwt", "idp.test", "http://idp.test/123done", epoch)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestHashers(t *testing.T) {
	t.Parallel()
	for name, h := range map[string]PasswordHasher{
		"bcrypt": NewBcryptHasher(4),
		"fake":   FakeInsecureHasher{},
	} {
		hash, err := h.HashPassword("correct horse")
		require.NoError(t, err, name)
		assert.NoError(t, h.VerifyPassword(hash, "correct horse"), name)
		assert.ErrorIs(t, h.VerifyPassword(hash, "wrong horse"), ErrBadPassword, name)
	}
	assert.ErrorIs(t, FakeInsecureHasher{}.VerifyPassword("plain", "plain"), ErrBadPassword)
}
