package email

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Template names as constants for type safety.
const (
	TemplateVerifyAccount = "verify_account"
	TemplateConfirmEmail  = "confirm_email"
	TemplatePasswordReset = "password_reset"
	TemplateProbe         = "probe"
)

// LinkData is the data for every template that carries a link.
type LinkData struct {
	Site string // relying party the user started from, e.g. "123done"
	Link string
}

// ProbeData is the data for the delivery probe.
type ProbeData struct {
	RunID  string
	SentAt string
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

// Bodies are markdown. The text part is the markdown source itself, so
// links stay on their own line for plain-text readers.
var mailTemplates = map[string]mailTemplate{
	TemplateVerifyAccount: {
		subject: "Confirm email address for Persona",
		body: template.Must(template.New(TemplateVerifyAccount).Parse(`Thanks for verifying your email address. This message is being sent to you to complete your sign-in to {{.Site}}.

Click to confirm this email address and automatically sign in:

{{.Link}}

If you are NOT trying to sign into this site, just ignore this email.
`)),
	},
	TemplateConfirmEmail: {
		subject: "Confirm email address for Persona",
		body: template.Must(template.New(TemplateConfirmEmail).Parse(`Thanks for adding an email address to your Persona account. This message confirms the address for {{.Site}}.

Click to confirm this email address:

{{.Link}}

If you did not add this address, just ignore this email.
`)),
	},
	TemplatePasswordReset: {
		subject: "Reset Persona password",
		body: template.Must(template.New(TemplatePasswordReset).Parse(`Forgot your Persona password? No problem. Click to reset your password and sign in to {{.Site}}:

{{.Link}}

If you did not request a password reset, just ignore this email.
`)),
	},
	TemplateProbe: {
		subject: "persona-e2e mail probe",
		body: template.Must(template.New(TemplateProbe).Parse(`# Mail probe

Run **{{.RunID}}** sent this message at {{.SentAt}}.
`)),
	},
}

var htmlPolicy = bluemonday.UGCPolicy()

// Render returns the subject, text part and HTML part of a template.
func Render(templateName string, data any) (subject, text, htmlBody string, err error) {
	t, ok := mailTemplates[templateName]
	if !ok {
		return "", "", "", fmt.Errorf("email: unknown template %q", templateName)
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("email: render %s: %w", templateName, err)
	}
	text = buf.String()
	return t.subject, text, markdownToHTML(text), nil
}

func markdownToHTML(src string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(src))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(htmlPolicy.SanitizeBytes(markdown.Render(doc, renderer)))
}
