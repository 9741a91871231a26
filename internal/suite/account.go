package suite

import (
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/scenario"
	"github.com/kuitang/persona-e2e/internal/testuser"
	"github.com/kuitang/persona-e2e/internal/window"
)

func signIn(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}

	e.Step("sign in to 123done")
	done, err := e.OpenRP(pages.OneTwoThree)
	if err != nil {
		return err
	}
	if _, err := done.SignIn(u.Email, u.Password); err != nil {
		return err
	}
	if err := expectSignedInAs(done, u.Email); err != nil {
		return err
	}

	e.Step("sign in to myfavoritebeer with the remembered identity")
	beer, err := e.OpenRP(pages.MyFavoriteBeer)
	if err != nil {
		return err
	}
	err = beer.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		_, err := g.SignInReturningUser()
		return err
	})
	if err != nil {
		return err
	}
	if err := expectSignedInAs(beer, u.Email); err != nil {
		return err
	}
	if _, err := beer.Logout(); err != nil {
		return err
	}

	if err := done.Open(); err != nil {
		return err
	}
	_, err = done.Logout()
	return err
}

// signInOnPersona signs u in on the identity provider's own sign-in page.
func signInOnPersona(e *scenario.Env, addr, password string) (*pages.AccountManager, error) {
	home, err := pages.OpenHome(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return nil, err
	}
	form, err := home.ClickSignIn()
	if err != nil {
		return nil, err
	}
	if _, err := form.SignIn(addr, password); err != nil {
		return nil, err
	}
	return pages.NewAccountManager(e.Driver, e.Wait)
}

func changePassword(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	manager, err := signInOnPersona(e, u.Email, u.Password)
	if err != nil {
		return err
	}
	oldPassword, newPassword := u.Password, u.Password+"-changed"

	e.Step("change password")
	if err := manager.ChangePassword(oldPassword, newPassword); err != nil {
		return err
	}
	u.Password = newPassword
	if _, err := manager.SignOut(); err != nil {
		return err
	}

	e.Step("sign in with the new password")
	manager, err = signInOnPersona(e, u.Email, newPassword)
	if err != nil {
		return err
	}
	if _, err := manager.SignOut(); err != nil {
		return err
	}

	e.Step("the old password must no longer sign in")
	home, err := pages.OpenHome(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return err
	}
	form, err := home.ClickSignIn()
	if err != nil {
		return err
	}
	return form.ExpectSignInRejected(u.Email, oldPassword)
}

func resetPassword(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	newPassword := testuser.LocalPart(u.Email) + "-reset"

	e.Step("request a reset from the myfavoritebeer dialog")
	beer, err := e.OpenRP(pages.MyFavoriteBeer)
	if err != nil {
		return err
	}
	err = beer.WithDialog(window.ExpectNew, func(g *pages.Dialog) error {
		_, err := g.ForgotPassword(u.Email, newPassword)
		return err
	})
	if err != nil {
		return err
	}

	// Message 0 was the sign-up verification.
	e.Step("follow the reset link")
	link, _, err := e.Link(u.Email, 1, restmail.ResetPassword)
	if err != nil {
		return err
	}
	if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Reset); err != nil {
		return err
	}
	u.Password = newPassword
	if err := beer.WaitForSignedIn(); err != nil {
		return err
	}
	if err := expectSignedInAs(beer, u.Email); err != nil {
		return err
	}

	e.Step("forget the session and sign in with the new password")
	if _, err := beer.Logout(); err != nil {
		return err
	}
	err = beer.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		if err := g.ClickThisIsNotMe(); err != nil {
			return err
		}
		_, err := g.SignIn(u.Email, newPassword)
		return err
	})
	if err != nil {
		return err
	}
	return expectSignedInAs(beer, u.Email)
}

func cancelAccount(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	manager, err := signInOnPersona(e, u.Email, u.Password)
	if err != nil {
		return err
	}

	e.Step("cancel the account")
	if _, err := manager.CancelAccount(); err != nil {
		return err
	}

	e.Step("the address is offered sign up again")
	home, err := pages.HomeAt(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return err
	}
	form, err := home.ClickSignIn()
	if err != nil {
		return err
	}
	if err := form.SetEmail(u.Email); err != nil {
		return err
	}
	if err := form.ClickNext(); err != nil {
		return err
	}
	signUp, err := form.IsSignUpFlow()
	if err != nil {
		return err
	}
	return scenario.Expectf(signUp, "cancelled address %s is still known", u.Email)
}
