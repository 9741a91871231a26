package pages

import (
	"fmt"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/wait"
)

// RegistrationOutcome names what loading an emailed link should lead to.
type RegistrationOutcome int

const (
	// Redirect: the page forwards to the site that started the flow.
	Redirect RegistrationOutcome = iota + 1
	// Success: the address is verified and the user thanked.
	Success
	// Reset: a password reset is confirmed.
	Reset
	// Verify: the page asks for the password before verifying.
	Verify
)

func (o RegistrationOutcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Success:
		return "success"
	case Reset:
		return "reset"
	case Verify:
		return "verify"
	default:
		return fmt.Sprintf("RegistrationOutcome(%d)", int(o))
	}
}

// Registration is the page an emailed verification or reset link opens.
type Registration struct {
	page
}

// CompleteRegistration opens link and waits for the outcome named by expect.
func CompleteRegistration(d browser.Driver, w wait.Waiter, link string, expect RegistrationOutcome) (*Registration, error) {
	r := &Registration{page: page{d: d, w: w}}
	var cond wait.Condition
	switch expect {
	case Redirect:
		cond = func() (bool, error) {
			title, err := d.Title()
			return err == nil && title != RegistrationTitle && title != "", err
		}
	case Success:
		cond = r.textContains(registrationCongrats, "Thank you")
	case Reset:
		cond = r.textContains(registrationCongrats, "verified")
	case Verify:
		cond = func() (bool, error) { return d.Visible(registrationPassword) }
	default:
		return nil, errs.Newf(errs.Configuration, "unknown registration outcome %d", int(expect))
	}
	if err := d.Navigate(link); err != nil {
		return nil, err
	}
	if err := w.For("complete registration to "+expect.String(), cond); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registration) Email() (string, error)      { return r.d.Text(registrationEmail) }
func (r *Registration) SetPassword(pw string) error { return r.fill(registrationPassword, pw) }
func (r *Registration) ThankYou() (string, error)   { return r.d.Text(registrationCongrats) }

// ClickFinish submits the password and waits for the thank-you message.
func (r *Registration) ClickFinish() error {
	return r.clickThenWait(registrationFinish, "registration thank-you message", registrationCongrats)
}
