package suite

import (
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/scenario"
	"github.com/kuitang/persona-e2e/internal/testuser"
	"github.com/kuitang/persona-e2e/internal/window"
)

// addAlias signs u in to 123done, adds a fresh address through the dialog
// and confirms it. 123done is left signed in as the new address.
func addAlias(e *scenario.Env, u *testuser.User) (*pages.RP, string, error) {
	rp, err := e.OpenRP(pages.OneTwoThree)
	if err != nil {
		return nil, "", err
	}
	if _, err := rp.SignIn(u.Email, u.Password); err != nil {
		return nil, "", err
	}
	if _, err := rp.Logout(); err != nil {
		return nil, "", err
	}

	alias := u.AddAlias(e.MailDomain)
	e.Step("add " + alias + " through the dialog")
	err = rp.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		_, err := g.AddAnotherEmail(alias)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	link, _, err := e.Link(alias, 0, restmail.ConfirmEmail)
	if err != nil {
		return nil, "", err
	}
	if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Redirect); err != nil {
		return nil, "", err
	}
	if err := expectSignedInAs(rp, alias); err != nil {
		return nil, "", err
	}
	return rp, alias, nil
}

func addEmail(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	rp, _, err := addAlias(e, u)
	if err != nil {
		return err
	}
	if _, err := rp.Logout(); err != nil {
		return err
	}

	e.Step("the dialog offers both addresses")
	if err := expectOffered(rp, u.Addresses()); err != nil {
		return err
	}

	manager, err := pages.OpenAccountManager(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return err
	}
	emails, err := manager.Emails()
	if err != nil {
		return err
	}
	return scenario.ExpectEqual("account emails", u.Addresses(), emails)
}

func removeEmail(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	rp, alias, err := addAlias(e, u)
	if err != nil {
		return err
	}
	if _, err := rp.Logout(); err != nil {
		return err
	}

	e.Step("remove " + alias + " in the account manager")
	manager, err := pages.OpenAccountManager(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return err
	}
	if err := manager.RemoveEmail(alias); err != nil {
		return err
	}
	emails, err := manager.Emails()
	if err != nil {
		return err
	}
	if err := scenario.ExpectEqual("account emails after removal", []string{u.Email}, emails); err != nil {
		return err
	}

	e.Step("the dialog no longer offers " + alias)
	if err := rp.Open(); err != nil {
		return err
	}
	return expectOffered(rp, []string{u.Email})
}

// expectOffered opens the returning-user dialog, compares the addresses it
// offers with want and cancels it.
func expectOffered(rp *pages.RP, want []string) error {
	return rp.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		offered, err := g.Emails()
		if err != nil {
			return err
		}
		if err := scenario.ExpectEqual("addresses offered in the dialog", want, trimAll(offered)); err != nil {
			return err
		}
		_, err = g.Cancel()
		return err
	})
}
