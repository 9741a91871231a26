// Package pages wraps the sites under test in page objects.
//
// Page objects only know selectors and the waits that make an action
// complete. Actions that leave the page return a Landing; the caller decides
// which page object to build next.
package pages

import (
	"strings"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/wait"
)

type page struct {
	d browser.Driver
	w wait.Waiter
}

func (p page) fill(selector, value string) error {
	if err := p.d.Clear(selector); err != nil {
		return err
	}
	return p.d.Type(selector, value)
}

func (p page) waitVisible(description, selector string) error {
	return p.w.For(description, func() (bool, error) {
		return p.d.Visible(selector)
	})
}

func (p page) waitHidden(description, selector string) error {
	return p.w.For(description, func() (bool, error) {
		ok, err := p.d.Visible(selector)
		return !ok, err
	})
}

func (p page) clickThenWait(click, description, appears string) error {
	if err := p.d.Click(click); err != nil {
		return err
	}
	return p.waitVisible(description, appears)
}

// textContains is a condition that treats a missing element as not yet ready.
func (p page) textContains(selector, substr string) wait.Condition {
	return func() (bool, error) {
		text, err := p.d.Text(selector)
		if errs.Is(err, errs.NotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return strings.Contains(text, substr), nil
	}
}

func (p page) landing(kind Kind) (Landing, error) {
	h, err := p.d.CurrentWindow()
	if err != nil {
		return Landing{}, err
	}
	return Landing{Kind: kind, Window: h}, nil
}
