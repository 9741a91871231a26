package restmail

import (
	"net/url"
	"regexp"

	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/logutil"
	"github.com/kuitang/persona-e2e/internal/obs"
)

// TokenLength is the number of alphanumeric characters in a link token.
const TokenLength = 48

// Purpose selects which kind of link to pull out of a message.
type Purpose int

const (
	VerifyAccount Purpose = iota + 1
	ConfirmEmail
	ResetPassword
)

var purposePaths = map[Purpose]string{
	VerifyAccount: "verify_email_address",
	ConfirmEmail:  "add_email_address",
	ResetPassword: "reset_password",
}

// Path returns the URL path segment for p, or "" for an unknown purpose.
func (p Purpose) Path() string {
	return purposePaths[p]
}

func (p Purpose) String() string {
	if path := p.Path(); path != "" {
		return path
	}
	return "unknown"
}

var linkPatterns = func() map[Purpose]*regexp.Regexp {
	out := make(map[Purpose]*regexp.Regexp, len(purposePaths))
	for p, path := range purposePaths {
		out[p] = regexp.MustCompile(`(https?://[^\s"'<>]*/` + path + `\?token=[A-Za-z0-9]{48})(?:[^A-Za-z0-9]|$)`)
	}
	return out
}()

// ExtractLink returns the first link for purpose in body. The token must be
// exactly TokenLength alphanumerics followed by a non-alphanumeric character
// or the end of body.
func ExtractLink(body string, purpose Purpose) (string, error) {
	re, ok := linkPatterns[purpose]
	if !ok {
		return "", errs.Newf(errs.Configuration, "restmail: unknown link purpose %d", int(purpose))
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		obs.Pkg("restmail").Debug("restmail_link_missing",
			"purpose", purpose.String(),
			"body", logutil.TruncateForLog(logutil.RedactText(body), 240),
		)
		return "", errs.Newf(errs.NotFound, "restmail: no %s link in message", purpose)
	}
	return m[1], nil
}

// Token returns the token query parameter of link.
func Token(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "restmail: parse link", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		return "", errs.New(errs.NotFound, "restmail: link has no token")
	}
	return token, nil
}
