package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/restmail"
)

const verifyLink = "https://login.persona.org/verify_email_address?token=abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUV"

func TestRender_KnownTemplates(t *testing.T) {
	t.Parallel()

	subject, text, html, err := Render(TemplateVerifyAccount, LinkData{Site: "123done", Link: verifyLink})
	require.NoError(t, err)
	assert.Equal(t, "Confirm email address for Persona", subject)
	assert.Contains(t, text, "Click to confirm this email address")
	assert.Contains(t, text, "\n"+verifyLink+"\n")
	assert.Contains(t, html, `href="`+verifyLink+`"`)
	assert.NotContains(t, html, "<script")

	subject, _, _, err = Render(TemplatePasswordReset, LinkData{Site: "123done", Link: verifyLink})
	require.NoError(t, err)
	assert.Contains(t, subject, "Reset")

	_, _, html, err = Render(TemplateProbe, ProbeData{RunID: "run-1", SentAt: "now"})
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>run-1</strong>")
}

func testRender_UnknownTemplateFails(t *rapid.T) {
	name := rapid.StringMatching(`[a-z0-9._-]{1,32}`).Filter(func(s string) bool {
		_, ok := mailTemplates[s]
		return !ok
	}).Draw(t, "template")
	if _, _, _, err := Render(name, nil); err == nil {
		t.Fatalf("unknown template %q rendered without error", name)
	}
}

func TestRender_UnknownTemplateFails(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRender_UnknownTemplateFails)
}

func testRender_LinkSurvivesBothParts(t *rapid.T) {
	token := rapid.StringMatching(`[A-Za-z0-9]{48}`).Draw(t, "token")
	link := "https://login.persona.org/verify_email_address?token=" + token
	_, text, html, err := Render(TemplateVerifyAccount, LinkData{Site: "123done", Link: link})
	if err != nil {
		t.Fatal(err)
	}
	for part, body := range map[string]string{"text": text, "html": html} {
		got, err := restmail.ExtractLink(body, restmail.VerifyAccount)
		if err != nil {
			t.Fatalf("%s part: %v", part, err)
		}
		if got != link {
			t.Fatalf("%s part: got %q want %q", part, got, link)
		}
	}
}

func TestRender_LinkSurvivesBothParts(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRender_LinkSurvivesBothParts)
}

func TestResendMailer_PostsRenderedMessage(t *testing.T) {
	t.Parallel()
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/emails"), r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	m := NewResendMailer("re_test_key", "persona-e2e@restmail.net")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	m.Client().BaseURL = base

	require.NoError(t, m.Send("someone@restmail.net", TemplateProbe, ProbeData{RunID: "r1", SentAt: "t"}))
	assert.Equal(t, "Bearer re_test_key", auth)
	assert.Equal(t, "persona-e2e@restmail.net", got["from"])
	assert.Equal(t, []any{"someone@restmail.net"}, got["to"])
	assert.Equal(t, "persona-e2e mail probe", got["subject"])
	assert.Contains(t, got["text"], "Run **r1**")
}

func TestResendMailer_UnknownTemplateDoesNotCallAPI(t *testing.T) {
	t.Parallel()
	m := NewResendMailer("re_test_key", "from@restmail.net")
	assert.Error(t, m.Send("someone@restmail.net", "nope", nil))
}
