package pages

import (
	"slices"
	"strings"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/wait"
)

// Home is the identity provider's landing page.
type Home struct {
	page
	base string
}

// OpenHome loads the identity provider's home page.
func OpenHome(d browser.Driver, w wait.Waiter, baseURL string) (*Home, error) {
	h := &Home{page: page{d: d, w: w}, base: strings.TrimRight(baseURL, "/")}
	if err := d.Navigate(h.base + "/"); err != nil {
		return nil, err
	}
	if err := h.waitLoaded(); err != nil {
		return nil, err
	}
	return h, nil
}

// HomeAt wraps a home page the browser is already on.
func HomeAt(d browser.Driver, w wait.Waiter, baseURL string) (*Home, error) {
	h := &Home{page: page{d: d, w: w}, base: strings.TrimRight(baseURL, "/")}
	if err := h.waitLoaded(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Home) waitLoaded() error {
	return h.w.For("identity provider header", func() (bool, error) {
		if ok, err := h.d.Visible(personaHeaderSignIn); err != nil || ok {
			return ok, err
		}
		return h.d.Visible(personaHeaderSignOut)
	})
}

// SignedIn reports whether the header offers sign out.
func (h *Home) SignedIn() (bool, error) { return h.d.Visible(personaHeaderSignOut) }

// ClickSignIn follows the header link to the sign-in page. The same page
// handles sign up.
func (h *Home) ClickSignIn() (*SignInPage, error) {
	if err := h.d.Click(personaHeaderSignIn); err != nil {
		return nil, err
	}
	return newSignInPage(h.page)
}

// SignInPage is the identity provider's own sign-in and sign-up form.
type SignInPage struct {
	page
}

func newSignInPage(p page) (*SignInPage, error) {
	if err := p.waitVisible("email field on sign-in page", signInEmail); err != nil {
		return nil, err
	}
	return &SignInPage{page: p}, nil
}

func (s *SignInPage) SetEmail(addr string) error       { return s.fill(signInEmail, addr) }
func (s *SignInPage) SetPassword(pw string) error       { return s.fill(signInPassword, pw) }
func (s *SignInPage) SetVerifyPassword(pw string) error { return s.fill(signInVerifyPassword, pw) }

func (s *SignInPage) ClickNext() error {
	if err := s.waitVisible("next button on sign-in page", signInNext); err != nil {
		return err
	}
	return s.clickThenWait(signInNext, "password field on sign-in page", signInPassword)
}

// ClickSignIn submits the password and waits for the account manager.
func (s *SignInPage) ClickSignIn() (Landing, error) {
	if err := s.waitVisible("sign in button", signInSubmit); err != nil {
		return Landing{}, err
	}
	if err := s.d.Click(signInSubmit); err != nil {
		return Landing{}, err
	}
	if err := s.waitVisible("account manager email list", managerEmails); err != nil {
		return Landing{}, err
	}
	return s.landing(AccountManagerHome)
}

func (s *SignInPage) ClickVerifyEmail() error {
	if err := s.waitVisible("verify email button", signInVerifyEmail); err != nil {
		return err
	}
	return s.clickThenWait(signInVerifyEmail, "check your email message", signInCheckYourEmail)
}

func (s *SignInPage) ClickForgotPassword() error {
	return s.clickThenWait(signInForgotPassword, "verify password field", signInVerifyPassword)
}

func (s *SignInPage) ClickResetPassword() error {
	return s.clickThenWait(signInResetPassword, "check your email message", signInCheckYourEmail)
}

// CheckYourEmailTitle returns the heading of the "check your email" notice.
func (s *SignInPage) CheckYourEmailTitle() (string, error) {
	text, err := s.d.Text(signInCheckYourEmail)
	return strings.TrimSpace(text), err
}

// IsSignUpFlow reports whether the form asks to choose a password, which
// means the address is unknown.
func (s *SignInPage) IsSignUpFlow() (bool, error) { return s.d.Visible(signInVerifyPassword) }

func (s *SignInPage) SignIn(email, password string) (Landing, error) {
	if err := s.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := s.ClickNext(); err != nil {
		return Landing{}, err
	}
	if err := s.SetPassword(password); err != nil {
		return Landing{}, err
	}
	return s.ClickSignIn()
}

// ExpectSignInRejected submits password for email and expects the account
// manager never to appear. Only the wait after submitting may time out;
// any earlier failure is returned as is.
func (s *SignInPage) ExpectSignInRejected(email, password string) error {
	if err := s.SetEmail(email); err != nil {
		return err
	}
	if err := s.ClickNext(); err != nil {
		return err
	}
	if err := s.SetPassword(password); err != nil {
		return err
	}
	if err := s.waitVisible("sign in button", signInSubmit); err != nil {
		return err
	}
	if err := s.d.Click(signInSubmit); err != nil {
		return err
	}
	err := s.waitVisible("account manager email list", managerEmails)
	switch {
	case err == nil:
		return errs.Newf(errs.Assertion, "%s signed in with a password that should be rejected", email)
	case errs.Is(err, errs.Timeout):
		return nil
	default:
		return err
	}
}

func (s *SignInPage) SignUp(email, password string) (Landing, error) {
	if err := s.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := s.ClickNext(); err != nil {
		return Landing{}, err
	}
	if err := s.SetPassword(password); err != nil {
		return Landing{}, err
	}
	if err := s.SetVerifyPassword(password); err != nil {
		return Landing{}, err
	}
	if err := s.ClickVerifyEmail(); err != nil {
		return Landing{}, err
	}
	return s.landing(CheckEmail)
}

func (s *SignInPage) ForgotPassword(email, newPassword string) (Landing, error) {
	if err := s.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := s.ClickNext(); err != nil {
		return Landing{}, err
	}
	if err := s.ClickForgotPassword(); err != nil {
		return Landing{}, err
	}
	if err := s.SetPassword(newPassword); err != nil {
		return Landing{}, err
	}
	if err := s.SetVerifyPassword(newPassword); err != nil {
		return Landing{}, err
	}
	if err := s.ClickResetPassword(); err != nil {
		return Landing{}, err
	}
	return s.landing(CheckEmail)
}

// AccountManager is the signed-in home page of the identity provider.
type AccountManager struct {
	page
}

// NewAccountManager wraps the account manager the browser is already on.
func NewAccountManager(d browser.Driver, w wait.Waiter) (*AccountManager, error) {
	m := &AccountManager{page: page{d: d, w: w}}
	if err := m.waitVisible("account manager email list", managerEmails); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenAccountManager loads the home page as a signed-in user.
func OpenAccountManager(d browser.Driver, w wait.Waiter, baseURL string) (*AccountManager, error) {
	if err := d.Navigate(strings.TrimRight(baseURL, "/") + "/"); err != nil {
		return nil, err
	}
	return NewAccountManager(d, w)
}

func (m *AccountManager) Emails() ([]string, error) {
	emails, err := m.d.Texts(managerEmails)
	if err != nil {
		return nil, err
	}
	for i := range emails {
		emails[i] = strings.TrimSpace(emails[i])
	}
	return emails, nil
}

func (m *AccountManager) SignedIn() (bool, error) { return m.d.Visible(personaHeaderSignOut) }

// ChangePassword edits the password and waits for the edit form to close.
func (m *AccountManager) ChangePassword(oldPassword, newPassword string) error {
	if err := m.clickThenWait(managerEditPassword, "old password field", managerOldPassword); err != nil {
		return err
	}
	if err := m.fill(managerOldPassword, oldPassword); err != nil {
		return err
	}
	if err := m.fill(managerNewPassword, newPassword); err != nil {
		return err
	}
	return m.clickThenWait(managerPasswordDone, "edit password button after change", managerEditPassword)
}

// SignOut signs out and waits until the header no longer offers sign out.
func (m *AccountManager) SignOut() (Landing, error) {
	if err := m.d.Click(personaHeaderSignOut); err != nil {
		return Landing{}, err
	}
	if err := m.waitHidden("identity provider sign out", personaHeaderSignOut); err != nil {
		return Landing{}, err
	}
	return m.landing(PersonaHome)
}

// CancelAccount deletes the account, accepting the confirmation dialog.
func (m *AccountManager) CancelAccount() (Landing, error) {
	m.d.HandleNextDialog(true)
	if err := m.d.Click(managerCancelAccount); err != nil {
		return Landing{}, err
	}
	if err := m.waitVisible("sign in link after account cancellation", personaHeaderSignIn); err != nil {
		return Landing{}, err
	}
	return m.landing(PersonaHome)
}

// RemoveEmail removes addr from the account, accepting the confirmation.
func (m *AccountManager) RemoveEmail(addr string) error {
	emails, err := m.Emails()
	if err != nil {
		return err
	}
	i := slices.Index(emails, addr)
	if i < 0 {
		return errs.Newf(errs.NotFound, "email %s is not on the account", addr)
	}
	if err := m.clickThenWait(managerEditEmails, "remove email buttons", managerRemoveEmail); err != nil {
		return err
	}
	m.d.HandleNextDialog(true)
	if err := m.d.ClickNth(managerRemoveEmail, i); err != nil {
		return err
	}
	if err := m.w.For("email "+addr+" to leave the account", func() (bool, error) {
		emails, err := m.Emails()
		return !slices.Contains(emails, addr), err
	}); err != nil {
		return err
	}
	return m.d.Click(managerDoneEditEmails)
}
