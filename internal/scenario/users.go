package scenario

import (
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/testuser"
)

// VerifiedUser signs a fresh user up on the identity provider's own site,
// follows the verification link, and signs out again. The browser is left on
// the identity provider's home page.
func VerifiedUser(e *Env) (*testuser.User, error) {
	u := e.NewUser()
	e.Step("sign up " + u.Email)
	home, err := pages.OpenHome(e.Driver, e.Wait, e.URLs.Persona)
	if err != nil {
		return nil, err
	}
	signIn, err := home.ClickSignIn()
	if err != nil {
		return nil, err
	}
	if _, err := signIn.SignUp(u.Email, u.Password); err != nil {
		return nil, err
	}

	e.Step("verify " + u.Email)
	link, token, err := e.Link(u.Email, 0, restmail.VerifyAccount)
	if err != nil {
		return nil, err
	}
	u.Token = token
	if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Success); err != nil {
		return nil, err
	}
	manager, err := pages.NewAccountManager(e.Driver, e.Wait)
	if err != nil {
		return nil, err
	}
	if _, err := manager.SignOut(); err != nil {
		return nil, err
	}
	return u, nil
}
