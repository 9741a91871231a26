package suite

import (
	"strings"

	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/scenario"
	"github.com/kuitang/persona-e2e/internal/window"
)

// rewindComputerScript moves the "seen on this computer" timestamp of an
// address one minute into the past so the dialog asks whether this is the
// user's computer.
const rewindComputerScript = `(addr) => {
  const users = JSON.parse(localStorage.getItem("usersComputer") || "{}");
  const ids = JSON.parse(localStorage.getItem("emailToUserID") || "{}");
  const id = ids[addr];
  if (!id || !users[id]) return false;
  const updated = new Date(users[id].updated);
  updated.setMinutes(updated.getMinutes() - 1);
  users[id].updated = updated.toString();
  localStorage.setItem("usersComputer", JSON.stringify(users));
  return true;
}`

func returningUser(e *scenario.Env) error {
	u, err := scenario.VerifiedUser(e)
	if err != nil {
		return err
	}
	done, _, err := addAlias(e, u)
	if err != nil {
		return err
	}
	if _, err := done.Logout(); err != nil {
		return err
	}

	e.Step("first visit to myfavoritebeer selects nothing")
	beer, err := e.OpenRP(pages.MyFavoriteBeer)
	if err != nil {
		return err
	}
	err = beer.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		selected, err := g.SelectedEmail()
		if err != nil {
			return err
		}
		if err := scenario.ExpectEqual("preselected address on first visit", "", selected); err != nil {
			return err
		}

		e.Step("sign in with " + u.Email)
		if err := g.SelectEmail(u.Email); err != nil {
			return err
		}
		_, err = g.SignInReturningUser()
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

	e.Step("the last address used is preselected")
	err = beer.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		selected, err := g.SelectedEmail()
		if err != nil {
			return err
		}
		if err := scenario.ExpectEqual("preselected address", u.Email, strings.TrimSpace(selected)); err != nil {
			return err
		}

		e.Step("this is not me")
		if err := g.ClickThisIsNotMe(); err != nil {
			return err
		}
		_, err = g.Cancel()
		return err
	})
	if err != nil {
		return err
	}
	return cancelDialog(beer, window.ExpectNew)
}

func publicTerminals(e *scenario.Env) error {
	u := e.NewUser()
	beer, err := e.OpenRP(pages.MyFavoriteBeer)
	if err != nil {
		return err
	}
	if err := signUpInDialog(beer, u.Email, u.Password); err != nil {
		return err
	}
	link, _, err := e.Link(u.Email, 0, restmail.VerifyAccount)
	if err != nil {
		return err
	}
	if _, err := pages.CompleteRegistration(e.Driver, e.Wait, link, pages.Redirect); err != nil {
		return err
	}
	if err := expectSignedInAs(beer, u.Email); err != nil {
		return err
	}

	e.Step("pretend a minute has passed since this computer was seen")
	if _, err := pages.OpenAccountManager(e.Driver, e.Wait, e.URLs.Persona); err != nil {
		return err
	}
	rewound, err := e.Driver.Evaluate(rewindComputerScript, u.Email)
	if err != nil {
		return err
	}
	ok, _ := rewound.(bool)
	if err := scenario.Expectf(ok, "no computer record for %s in local storage", u.Email); err != nil {
		return err
	}

	e.Step("answer \"not my computer\" on 123done")
	done, err := e.OpenRP(pages.OneTwoThree)
	if err != nil {
		return err
	}
	err = done.WithDialog(window.ExpectReturning, func(g *pages.Dialog) error {
		if err := g.SelectEmail(u.Email); err != nil {
			return err
		}
		landing, err := g.ClickSignInReturningUser(pages.ReturningRemember)
		if err != nil {
			return err
		}
		if err := scenario.ExpectEqual("landing after returning sign-in", pages.ComputerPrompt, landing.Kind); err != nil {
			return err
		}
		_, err = g.NotMyComputer()
		return err
	})
	if err != nil {
		return err
	}
	if err := expectSignedInAs(done, u.Email); err != nil {
		return err
	}

	e.Step("the identity provider session did not outlive the sign-in")
	if _, err := done.Logout(); err != nil {
		return err
	}
	return cancelDialog(done, window.ExpectNew)
}

func healthCheck(e *scenario.Env) error {
	acct, err := e.Account()
	if err != nil {
		return err
	}
	done, err := e.OpenRP(pages.OneTwoThree)
	if err != nil {
		return err
	}
	if _, err := done.SignIn(acct.Email, acct.Password); err != nil {
		return err
	}
	if err := expectSignedInAs(done, acct.Email); err != nil {
		return err
	}
	_, err = done.Logout()
	return err
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
