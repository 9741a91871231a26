package pages

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/window"
)

// AfterNext names the form expected after clicking next on an address.
type AfterNext int

const (
	// NextPassword: the address is known and the password field appears.
	NextPassword AfterNext = iota + 1
	// NextVerify: the address is new and the choose-password form appears.
	NextVerify
)

// AfterReturning names what follows the returning-user sign-in button.
type AfterReturning int

const (
	// ReturningLogin: the dialog closes itself.
	ReturningLogin AfterReturning = iota + 1
	// ReturningRemember: the dialog asks whether this is the user's computer.
	ReturningRemember
)

// Dialog is the identity popup. Every method runs with focus on the popup,
// except those that end the popup, which leave focus on main.
type Dialog struct {
	page
	popup *window.Popup
	main  string
}

// Popup returns the underlying window.
func (g *Dialog) Popup() *window.Popup { return g.popup }

func (g *Dialog) SetEmail(addr string) error       { return g.fill(dialogEmail, addr) }
func (g *Dialog) SetPassword(pw string) error       { return g.fill(dialogPassword, pw) }
func (g *Dialog) SetVerifyPassword(pw string) error { return g.fill(dialogVerifyPassword, pw) }
func (g *Dialog) SetNewEmail(addr string) error     { return g.fill(dialogNewEmail, addr) }

// Email returns the value of the email field.
func (g *Dialog) Email() (string, error) { return g.d.Value(dialogEmail) }

// ClickNext submits the address and waits for the form named by expect.
func (g *Dialog) ClickNext(expect AfterNext) error {
	var want, desc string
	switch expect {
	case NextPassword:
		want, desc = dialogPassword, "password field"
	case NextVerify:
		want, desc = dialogVerifyEmail, "verify email button"
	default:
		return errs.Newf(errs.Configuration, "unknown next expectation %d", int(expect))
	}
	return g.clickThenWait(dialogNext, desc+" in identity dialog", want)
}

// ClickSignIn submits the password. The dialog closes itself on success.
func (g *Dialog) ClickSignIn() (Landing, error) {
	if err := g.d.Click(dialogSignIn); err != nil {
		return Landing{}, err
	}
	return g.done()
}

// ClickSignInReturningUser signs in with the remembered identity.
func (g *Dialog) ClickSignInReturningUser(expect AfterReturning) (Landing, error) {
	switch expect {
	case ReturningLogin, ReturningRemember:
	default:
		return Landing{}, errs.Newf(errs.Configuration, "unknown returning-user expectation %d", int(expect))
	}
	if err := g.d.Click(dialogSignInReturning); err != nil {
		return Landing{}, err
	}
	if expect == ReturningLogin {
		return g.done()
	}
	if err := g.waitVisible("this-is-my-computer prompt", dialogYourComputer); err != nil {
		return Landing{}, err
	}
	return Landing{Kind: ComputerPrompt, Window: g.popup.Handle()}, nil
}

// SignInReturningUser signs in with the remembered identity and answers the
// computer prompt with "this is my computer" if the dialog shows one.
func (g *Dialog) SignInReturningUser() (Landing, error) {
	if err := g.d.Click(dialogSignInReturning); err != nil {
		return Landing{}, err
	}
	prompted := false
	err := g.w.For("returning-user sign-in to finish", func() (bool, error) {
		closed, err := g.closed()
		if err != nil || closed {
			return closed, err
		}
		prompted, err = g.d.Visible(dialogYourComputer)
		if errs.Is(err, errs.NotFound) {
			return false, nil
		}
		return prompted, err
	})
	if err != nil {
		return Landing{}, err
	}
	if prompted {
		return g.TrustThisComputer()
	}
	return g.done()
}

func (g *Dialog) closed() (bool, error) {
	handles, err := g.d.WindowHandles()
	if err != nil {
		return false, err
	}
	return !slices.Contains(handles, g.popup.Handle()), nil
}

// ClickVerifyEmail requests the verification message and waits for the
// "check your email" screen.
func (g *Dialog) ClickVerifyEmail() error {
	return g.clickThenWait(dialogVerifyEmail, "check your email screen", dialogCheckEmailAt)
}

// CheckEmailAddress returns the address on the "check your email" screen.
func (g *Dialog) CheckEmailAddress() (string, error) { return g.d.Text(dialogCheckEmailAt) }

func (g *Dialog) ClickForgotPassword() error {
	return g.clickThenWait(dialogForgotPassword, "reset password button", dialogResetPassword)
}

func (g *Dialog) ClickResetPassword() error {
	return g.clickThenWait(dialogResetPassword, "check your email screen", dialogCheckEmailAt)
}

func (g *Dialog) ClickAddAnotherEmail() error {
	return g.clickThenWait(dialogAddAnotherEmail, "new email field", dialogAddNewEmail)
}

func (g *Dialog) ClickAddNewEmail() error {
	return g.clickThenWait(dialogAddNewEmail, "check your email screen", dialogCheckEmailAt)
}

// ClickThisIsNotMe forgets the remembered identity and waits for the email form.
func (g *Dialog) ClickThisIsNotMe() error {
	return g.clickThenWait(dialogThisIsNotMe, "email field after this-is-not-me", dialogEmail)
}

// TrustThisComputer answers the computer prompt and waits for the dialog to close.
func (g *Dialog) TrustThisComputer() (Landing, error) {
	if err := g.d.Click(dialogThisIsMyComputer); err != nil {
		return Landing{}, err
	}
	return g.done()
}

// NotMyComputer answers the computer prompt for a public terminal.
func (g *Dialog) NotMyComputer() (Landing, error) {
	if err := g.d.Click(dialogNotMyComputer); err != nil {
		return Landing{}, err
	}
	return g.done()
}

// Emails lists the addresses offered to a returning user.
func (g *Dialog) Emails() ([]string, error) { return g.d.Texts(dialogEmailLabels) }

// SelectEmail picks one of the returning user's addresses by its label.
func (g *Dialog) SelectEmail(addr string) error {
	emails, err := g.Emails()
	if err != nil {
		return err
	}
	i := slices.Index(emails, addr)
	if i < 0 {
		return errs.Newf(errs.NotFound, "email %s not offered in identity dialog", addr)
	}
	return g.d.ClickNth(dialogEmailLabels, i)
}

// SelectedEmail returns the label of the checked address, or "" when none is.
func (g *Dialog) SelectedEmail() (string, error) {
	emails, err := g.Emails()
	if err != nil {
		return "", err
	}
	for i, e := range emails {
		checked, err := g.d.Checked(dialogEmailRadioPrefix + strconv.Itoa(i))
		if err != nil {
			return "", fmt.Errorf("radio for %s: %w", e, err)
		}
		if checked {
			return e, nil
		}
	}
	return "", nil
}

// SignIn signs an existing user in and waits for the dialog to close.
func (g *Dialog) SignIn(email, password string) (Landing, error) {
	if err := g.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := g.ClickNext(NextPassword); err != nil {
		return Landing{}, err
	}
	if err := g.SetPassword(password); err != nil {
		return Landing{}, err
	}
	return g.ClickSignIn()
}

// SignInNewUser requests a verification message for a new address and
// closes the dialog.
func (g *Dialog) SignInNewUser(email, password string) (Landing, error) {
	if err := g.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := g.ClickNext(NextVerify); err != nil {
		return Landing{}, err
	}
	if err := g.SetPassword(password); err != nil {
		return Landing{}, err
	}
	if err := g.SetVerifyPassword(password); err != nil {
		return Landing{}, err
	}
	if err := g.ClickVerifyEmail(); err != nil {
		return Landing{}, err
	}
	return g.closeTo(CheckEmail)
}

// AddAnotherEmail asks to add addr to the signed-in account and closes the
// dialog once the confirmation message is on its way.
func (g *Dialog) AddAnotherEmail(addr string) (Landing, error) {
	if err := g.ClickAddAnotherEmail(); err != nil {
		return Landing{}, err
	}
	if err := g.SetNewEmail(addr); err != nil {
		return Landing{}, err
	}
	if err := g.ClickAddNewEmail(); err != nil {
		return Landing{}, err
	}
	return g.closeTo(CheckEmail)
}

// ForgotPassword starts a password reset for email and closes the dialog.
func (g *Dialog) ForgotPassword(email, newPassword string) (Landing, error) {
	if err := g.SetEmail(email); err != nil {
		return Landing{}, err
	}
	if err := g.ClickNext(NextPassword); err != nil {
		return Landing{}, err
	}
	if err := g.ClickForgotPassword(); err != nil {
		return Landing{}, err
	}
	if err := g.SetPassword(newPassword); err != nil {
		return Landing{}, err
	}
	if err := g.SetVerifyPassword(newPassword); err != nil {
		return Landing{}, err
	}
	if err := g.ClickResetPassword(); err != nil {
		return Landing{}, err
	}
	return g.closeTo(CheckEmail)
}

// Cancel closes the dialog without signing in.
func (g *Dialog) Cancel() (Landing, error) {
	return g.closeTo(DialogClosed)
}

func (g *Dialog) done() (Landing, error) {
	if err := g.popup.Done(); err != nil {
		return Landing{}, err
	}
	return Landing{Kind: DialogClosed, Window: g.main}, nil
}

func (g *Dialog) closeTo(kind Kind) (Landing, error) {
	if err := g.popup.Close(); err != nil {
		return Landing{}, err
	}
	return Landing{Kind: kind, Window: g.main}, nil
}
