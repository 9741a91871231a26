package pages

import (
	"strings"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/wait"
	"github.com/kuitang/persona-e2e/internal/window"
)

// RP is the home page of a relying party.
type RP struct {
	page
	site Site
	base string
	c    *window.Coordinator
}

// NewRP binds a relying party to the focused window, which becomes the main
// window for every popup it opens.
func NewRP(d browser.Driver, w wait.Waiter, site Site, baseURL string) (*RP, error) {
	c, err := window.New(d, w)
	if err != nil {
		return nil, err
	}
	return &RP{page: page{d: d, w: w}, site: site, base: strings.TrimRight(baseURL, "/"), c: c}, nil
}

func (r *RP) Site() Site { return r.site }

// Coordinator returns the coordinator that owns the RP's main window.
func (r *RP) Coordinator() *window.Coordinator { return r.c }

// Open loads the home page and waits for it to show either sign-in state.
func (r *RP) Open() error {
	if err := r.d.Navigate(r.base + "/"); err != nil {
		return err
	}
	return r.w.For(r.site.Name+" home page to finish loading", func() (bool, error) {
		if busy, err := r.loading(); err != nil || busy {
			return false, err
		}
		if ok, err := r.d.Visible(r.site.SignIn); err != nil || ok {
			return ok, err
		}
		return r.d.Visible(r.site.Logout)
	})
}

func (r *RP) loading() (bool, error) {
	if r.site.Loading == "" {
		return false, nil
	}
	return r.d.Visible(r.site.Loading)
}

// WithDialog clicks sign in, waits for the form named by expect and runs fn
// on the dialog. fn must end the dialog (sign in, cancel or send a message).
// Whatever fn returns, the popup is closed and focus is back on the main
// window when WithDialog returns.
func (r *RP) WithDialog(expect window.Expectation, fn func(*Dialog) error) error {
	return r.c.With(func() error { return r.d.Click(r.site.SignIn) }, expect, func(p *window.Popup) error {
		return fn(&Dialog{page: r.page, popup: p, main: r.c.Main()})
	})
}

// openDialog opens the dialog without the scoped cleanup of WithDialog.
func (r *RP) openDialog(expect window.Expectation) (*Dialog, error) {
	p, err := r.c.Open(func() error { return r.d.Click(r.site.SignIn) }, expect)
	if err != nil {
		return nil, err
	}
	return &Dialog{page: r.page, popup: p, main: r.c.Main()}, nil
}

// SignedIn reports whether the logout link is showing.
func (r *RP) SignedIn() (bool, error) {
	return r.d.Visible(r.site.Logout)
}

// WaitForSignedIn waits for the logout link with no spinner.
func (r *RP) WaitForSignedIn() error {
	return r.w.For("user to be signed in to "+r.site.Name, func() (bool, error) {
		if busy, err := r.loading(); err != nil || busy {
			return false, err
		}
		return r.d.Visible(r.site.Logout)
	})
}

// WaitForSignedOut waits for the sign-in button with no spinner.
func (r *RP) WaitForSignedOut() error {
	return r.w.For("user to be signed out of "+r.site.Name, func() (bool, error) {
		if busy, err := r.loading(); err != nil || busy {
			return false, err
		}
		return r.d.Visible(r.site.SignIn)
	})
}

// LoggedInUserEmail returns the address the site shows as signed in.
func (r *RP) LoggedInUserEmail() (string, error) {
	err := r.w.For("signed-in email on "+r.site.Name, func() (bool, error) {
		if busy, err := r.loading(); err != nil || busy {
			return false, err
		}
		return r.d.Visible(r.site.Email)
	})
	if err != nil {
		return "", err
	}
	text, err := r.d.Text(r.site.Email)
	return strings.TrimSpace(text), err
}

// Logout signs out and waits for the sign-in button.
func (r *RP) Logout() (Landing, error) {
	if err := r.d.Click(r.site.Logout); err != nil {
		return Landing{}, err
	}
	if err := r.WaitForSignedOut(); err != nil {
		return Landing{}, err
	}
	return r.landing(RPSignedOut)
}

// SignIn signs a verified user in through a fresh dialog.
func (r *RP) SignIn(email, password string) (Landing, error) {
	err := r.WithDialog(window.ExpectNew, func(g *Dialog) error {
		_, err := g.SignIn(email, password)
		return err
	})
	if err != nil {
		return Landing{}, err
	}
	if err := r.WaitForSignedIn(); err != nil {
		return Landing{}, err
	}
	return r.landing(RPSignedIn)
}
