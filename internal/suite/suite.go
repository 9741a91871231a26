// Package suite holds the end-to-end scenarios run against the identity
// provider and its demo relying parties.
package suite

import (
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/scenario"
)

// Tags group scenarios for selection with "tag:<name>".
const (
	TagSignUp   = "signup"
	TagAccount  = "account"
	TagDialog   = "dialog"
	TagHealth   = "health"
	TagMultiRP  = "multi-rp"
	TagExternal = "credentials"
)

// Register adds every scenario to reg.
func Register(reg *scenario.Registry) {
	for _, site := range pages.Sites() {
		reg.MustRegister(scenario.Scenario{
			Name:        "new-user/" + site.Name,
			Description: "sign up through the " + site.Name + " dialog and follow the verification link back",
			Tags:        []string{TagSignUp},
			Run:         newUserViaRP(site),
		})
	}
	reg.MustRegister(scenario.Scenario{
		Name:        "new-user/persona",
		Description: "sign up on the identity provider's own site",
		Tags:        []string{TagSignUp},
		Run:         newUserViaPersona,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "new-user/other-browser",
		Description: "verification link opened in a second browser asks for the password",
		Tags:        []string{TagSignUp},
		Browsers:    2,
		Run:         newUserOtherBrowser,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "sign-in",
		Description: "a verified user signs in to both relying parties and out again",
		Tags:        []string{TagDialog, TagMultiRP},
		Run:         signIn,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "change-password",
		Description: "the new password works and the old one no longer does",
		Tags:        []string{TagAccount},
		Run:         changePassword,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "reset-password",
		Description: "forgot password from the dialog, reset link, sign in with the new password",
		Tags:        []string{TagAccount, TagDialog},
		Run:         resetPassword,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "cancel-account",
		Description: "a cancelled account's address is offered sign up again",
		Tags:        []string{TagAccount},
		Run:         cancelAccount,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "add-email",
		Description: "add a second address through the dialog",
		Tags:        []string{TagAccount, TagDialog},
		Run:         addEmail,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "remove-email",
		Description: "remove an address in the account manager",
		Tags:        []string{TagAccount},
		Run:         removeEmail,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "returning-user",
		Description: "the dialog remembers the last address used per site",
		Tags:        []string{TagDialog, TagMultiRP},
		Run:         returningUser,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "public-terminals",
		Description: "answering \"not my computer\" ends the identity provider session",
		Tags:        []string{TagDialog},
		Run:         publicTerminals,
	})
	reg.MustRegister(scenario.Scenario{
		Name:        "health-check",
		Description: "the pre-provisioned account from the credentials file signs in to 123done",
		Tags:        []string{TagHealth, TagExternal},
		Run:         healthCheck,
	})
}

// Default returns a registry holding every scenario.
func Default() *scenario.Registry {
	reg := scenario.NewRegistry()
	Register(reg)
	return reg
}
