// Package browser drives a real browser for the suite.
//
// Driver is the narrow surface page objects and the window coordinator use.
// Session implements it on top of Playwright: every page in the session's
// browser context is a window with a stable handle, popups opened by the site
// are tracked as they appear, and closed pages drop out of the handle set.
package browser

import (
	"strings"

	"github.com/kuitang/persona-e2e/internal/errs"
)

// Driver is a browser session with a single focused window.
//
// Element operations act on the first element matching a CSS selector in the
// focused window and fail with errs.NotFound when nothing matches. Visible,
// Enabled and Count never fail for a missing element; they report false/0 so
// they can be polled.
type Driver interface {
	Navigate(url string) error
	Refresh() error
	URL() (string, error)
	Title() (string, error)
	Content() (string, error)

	Click(selector string) error
	ClickNth(selector string, n int) error
	Type(selector, text string) error
	Clear(selector string) error
	Text(selector string) (string, error)
	Texts(selector string) ([]string, error)
	Value(selector string) (string, error)
	Attribute(selector, name string) (string, error)
	Visible(selector string) (bool, error)
	Enabled(selector string) (bool, error)
	Checked(selector string) (bool, error)
	Count(selector string) (int, error)
	Evaluate(script string, args ...any) (any, error)

	WindowHandles() ([]string, error)
	CurrentWindow() (string, error)
	SwitchToWindow(handle string) error
	// CloseWindow closes the focused window. Focus stays on the closed handle
	// until SwitchToWindow is called.
	CloseWindow() error

	// HandleNextDialog arms a one-shot policy for the next alert/confirm in
	// any window: accept or dismiss. Unarmed dialogs are dismissed.
	HandleNextDialog(accept bool)

	Screenshot() ([]byte, error)
	Quit() error
}

// Kind names a browser engine.
type Kind string

const (
	Chromium Kind = "chromium"
	Firefox  Kind = "firefox"
	WebKit   Kind = "webkit"
)

// Kinds lists every supported engine.
func Kinds() []Kind {
	return []Kind{Chromium, Firefox, WebKit}
}

// ParseKind maps a browser name to a Kind. "chrome" is accepted for chromium
// and "safari" for webkit.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chromium", "chrome":
		return Chromium, nil
	case "firefox":
		return Firefox, nil
	case "webkit", "safari":
		return WebKit, nil
	default:
		return "", errs.Newf(errs.Configuration, "unsupported browser %q", name)
	}
}
