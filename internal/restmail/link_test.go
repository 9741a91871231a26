package restmail

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/errs"
)

func tokenGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9]{48}`)
}

func purposeGen() *rapid.Generator[Purpose] {
	return rapid.SampledFrom([]Purpose{VerifyAccount, ConfirmEmail, ResetPassword})
}

func testExtractLink_ExactTokenFound(t *rapid.T) {
	purpose := purposeGen().Draw(t, "purpose")
	token := tokenGen().Draw(t, "token")
	host := rapid.SampledFrom([]string{"https://login.persona.org", "http://127.0.0.1:8080", "https://login.dev.anosrep.org"}).Draw(t, "host")
	before := rapid.StringMatching(`[A-Za-z ,.]{0,40}`).Draw(t, "before")
	after := rapid.SampledFrom([]string{"", "\n", " ", ".", "\"", "&lang=en"}).Draw(t, "after")

	want := host + "/" + purpose.Path() + "?token=" + token
	got, err := ExtractLink(before+" "+want+after, purpose)
	if err != nil {
		t.Fatalf("ExtractLink: %v", err)
	}
	if got != want {
		t.Fatalf("ExtractLink = %q, want %q", got, want)
	}
}

func TestExtractLink_ExactTokenFound(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testExtractLink_ExactTokenFound)
}

func testExtractLink_WrongLengthRejected(t *rapid.T) {
	purpose := purposeGen().Draw(t, "purpose")
	n := rapid.IntRange(1, 80).Filter(func(n int) bool { return n != TokenLength }).Draw(t, "n")
	token := rapid.StringMatching(`[A-Za-z0-9]{` + strconv.Itoa(n) + `}`).Draw(t, "token")

	_, err := ExtractLink("https://login.persona.org/"+purpose.Path()+"?token="+token+" bye", purpose)
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("token of length %d: err = %v, want NotFound", n, err)
	}
}

func TestExtractLink_WrongLengthRejected(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testExtractLink_WrongLengthRejected)
}

func TestExtractLink_PurposeMismatch(t *testing.T) {
	t.Parallel()
	body := "https://login.persona.org/verify_email_address?token=" + strings.Repeat("x", 48)
	_, err := ExtractLink(body, ResetPassword)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestExtractLink_FirstMatchWins(t *testing.T) {
	t.Parallel()
	a := "https://a.example/add_email_address?token=" + strings.Repeat("1", 48)
	b := "https://b.example/add_email_address?token=" + strings.Repeat("2", 48)
	got, err := ExtractLink(a+"\n"+b, ConfirmEmail)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestExtractLink_UnknownPurpose(t *testing.T) {
	t.Parallel()
	_, err := ExtractLink("anything", Purpose(99))
	assert.True(t, errs.Is(err, errs.Configuration))
	assert.Equal(t, "unknown", Purpose(99).String())
}

func TestToken(t *testing.T) {
	t.Parallel()
	tok, err := Token("https://x/reset_password?token=abc&lang=en")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Token("https://x/reset_password")
	assert.True(t, errs.Is(err, errs.NotFound))
}
