package suite

import (
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/scenario"
	"github.com/kuitang/persona-e2e/internal/window"
)

func newUserViaRP(site pages.Site) func(*scenario.Env) error {
	return func(e *scenario.Env) error {
		u := e.NewUser()
		rp, err := e.OpenRP(site)
		if err != nil {
			return err
		}

		e.Step("sign up " + u.Email + " through the dialog")
		if err := signUpInDialog(rp, u.Email, u.Password); err != nil {
			return err
		}

		e.Step("follow the verification link")
		link, token, err := e.Link(u.Email, 0, restmail.VerifyAccount)
		if err != nil {
			return err
		}
		u.Token = token
		if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Redirect); err != nil {
			return err
		}
		if err := expectSignedInAs(rp, u.Email); err != nil {
			return err
		}
		_, err = rp.Logout()
		return err
	}
}

func newUserViaPersona(e *scenario.Env) error {
	u := e.NewUser()
	home, err := pages.OpenHome(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return err
	}
	signIn, err := home.ClickSignIn()
	if err != nil {
		return err
	}
	e.Step("sign up " + u.Email)
	if _, err := signIn.SignUp(u.Email, u.Password); err != nil {
		return err
	}
	title, err := signIn.CheckYourEmailTitle()
	if err != nil {
		return err
	}
	if err := scenario.ExpectEqual("check your email heading", "Confirm your email address", title); err != nil {
		return err
	}

	e.Step("follow the verification link")
	link, _, err := e.Link(u.Email, 0, restmail.VerifyAccount)
	if err != nil {
		return err
	}
	if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Success); err != nil {
		return err
	}
	manager, err := pages.NewAccountManager(e.Driver, e.Wait)
	if err != nil {
		return err
	}
	emails, err := manager.Emails()
	if err != nil {
		return err
	}
	if err := scenario.ExpectEqual("account emails", []string{u.Email}, emails); err != nil {
		return err
	}
	_, err = manager.SignOut()
	return err
}

// newUserOtherBrowser stages a sign-up in one browser and verifies it in
// another, which has to prove it knows the password.
func newUserOtherBrowser(e *scenario.Env) error {
	verifier, err := e.On(1)
	if err != nil {
		return err
	}
	u := e.NewUser()
	rp, err := e.OpenRP(pages.OneTwoThree)
	if err != nil {
		return err
	}
	if err := signUpInDialog(rp, u.Email, u.Password); err != nil {
		return err
	}

	e.Step("open the verification link in the second browser")
	link, _, err := e.Link(u.Email, 0, restmail.VerifyAccount)
	if err != nil {
		return err
	}
	reg, err := pages.CompleteRegistration(verifier.Driver, verifier.Wait, link, pages.Verify)
	if err != nil {
		return err
	}
	shown, err := reg.Email()
	if err != nil {
		return err
	}
	if err := scenario.ExpectEqual("address awaiting verification", u.Email, shown); err != nil {
		return err
	}
	if err := reg.SetPassword(u.Password); err != nil {
		return err
	}
	if err := reg.ClickFinish(); err != nil {
		return err
	}

	base, err := verifier.SiteURL(pages.OneTwoThree)
	if err != nil {
		return err
	}
	landed, err := pages.NewRP(verifier.Driver, verifier.Wait, pages.OneTwoThree, base)
	if err != nil {
		return err
	}
	return expectSignedInAs(landed, u.Email)
}

// signUpInDialog asks the dialog to send a verification message to addr.
func signUpInDialog(rp *pages.RP, addr, password string) error {
	return rp.WithDialog(window.ExpectNew, func(g *pages.Dialog) error {
		_, err := g.SignInNewUser(addr, password)
		return err
	})
}

// cancelDialog opens the dialog on the form named by expect and cancels it.
func cancelDialog(rp *pages.RP, expect window.Expectation) error {
	return rp.WithDialog(expect, func(g *pages.Dialog) error {
		_, err := g.Cancel()
		return err
	})
}

func expectSignedInAs(rp *pages.RP, addr string) error {
	got, err := rp.LoggedInUserEmail()
	if err != nil {
		return err
	}
	return scenario.ExpectEqual(rp.Site().Name+" signed-in email", addr, got)
}
