// Package window coordinates the identity provider's popup dialog with the
// relying-party window that opened it.
//
// A Coordinator remembers the window that was focused when it was created.
// Open runs a trigger (normally a sign-in click), waits for a new window,
// focuses it and waits for the expected form. Closing or finishing the popup
// always hands focus back to the main window, including on error paths.
package window

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/wait"
)

// Selectors inside the popup that identify which form it shows.
const (
	NewUserInput        = "#email"
	ReturningUserButton = "#signInButton"
	LoadingIndicator    = ".loading"
)

// Expectation names the form the popup is expected to open on.
type Expectation int

const (
	// ExpectNew waits for the email entry form.
	ExpectNew Expectation = iota + 1
	// ExpectReturning waits for the returning-user sign-in button and for the
	// dialog to settle.
	ExpectReturning
	// ExpectAny accepts either form.
	ExpectAny
)

func (e Expectation) String() string {
	switch e {
	case ExpectNew:
		return "new"
	case ExpectReturning:
		return "returning"
	case ExpectAny:
		return "any"
	default:
		return fmt.Sprintf("Expectation(%d)", int(e))
	}
}

// State reports whether a popup is open.
type State int

const (
	MainOnly State = iota
	PopupOpen
)

// Coordinator tracks the main window of one driver.
type Coordinator struct {
	d      browser.Driver
	w      wait.Waiter
	main   string
	log    *slog.Logger
	mu     sync.Mutex
	active *Popup
}

// New captures the currently focused window as main.
func New(d browser.Driver, w wait.Waiter) (*Coordinator, error) {
	main, err := d.CurrentWindow()
	if err != nil {
		return nil, err
	}
	return &Coordinator{d: d, w: w, main: main, log: obs.Pkg("window")}, nil
}

// Main returns the main window handle.
func (c *Coordinator) Main() string { return c.main }

// State returns PopupOpen while a popup acquired through Open is live.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return PopupOpen
	}
	return MainOnly
}

// Popup is an open identity dialog window.
type Popup struct {
	c      *Coordinator
	handle string
	once   sync.Once
	err    error
}

// Handle returns the popup's window handle.
func (p *Popup) Handle() string { return p.handle }

// Open runs trigger, waits for a window that was not present before, focuses
// it and waits for the form named by expect.
//
// An unknown expectation is a configuration error and nothing is run. If the
// trigger or any wait fails, focus is returned to main before the error is,
// and a popup that opened but never showed the expected form is closed.
func (c *Coordinator) Open(trigger func() error, expect Expectation) (*Popup, error) {
	if expect != ExpectNew && expect != ExpectReturning && expect != ExpectAny {
		return nil, errs.Newf(errs.Configuration, "unknown popup expectation %d", int(expect))
	}

	before, err := c.d.WindowHandles()
	if err != nil {
		return nil, err
	}
	if err := trigger(); err != nil {
		c.restore()
		return nil, err
	}

	var handle string
	err = c.w.For("identity dialog window to open", func() (bool, error) {
		handles, err := c.d.WindowHandles()
		if err != nil {
			return false, err
		}
		if len(handles) <= 1 {
			return false, nil
		}
		for _, h := range handles {
			if !slices.Contains(before, h) {
				handle = h
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		c.restore()
		return nil, err
	}

	if err := c.d.SwitchToWindow(handle); err != nil {
		c.discard(handle)
		return nil, err
	}
	c.log.Debug("popup_opened", "window", handle, "expect", expect.String())

	if err := c.awaitForm(expect); err != nil {
		c.discard(handle)
		return nil, err
	}

	p := &Popup{c: c, handle: handle}
	c.mu.Lock()
	c.active = p
	c.mu.Unlock()
	return p, nil
}

func (c *Coordinator) awaitForm(expect Expectation) error {
	switch expect {
	case ExpectNew:
		return c.w.For("new-user email field in identity dialog", func() (bool, error) {
			return c.d.Visible(NewUserInput)
		})
	case ExpectReturning:
		if err := c.w.For("returning-user sign-in button in identity dialog", func() (bool, error) {
			return c.d.Visible(ReturningUserButton)
		}); err != nil {
			return err
		}
		return c.w.For("returning-user dialog settled", c.settled)
	default:
		return c.w.For("sign-in form in identity dialog", func() (bool, error) {
			if ok, err := c.d.Visible(NewUserInput); err != nil || ok {
				return ok, err
			}
			return c.d.Visible(ReturningUserButton)
		})
	}
}

// settled reports whether the returning-user form is ready for input.
func (c *Coordinator) settled() (bool, error) {
	enabled, err := c.d.Enabled(ReturningUserButton)
	if err != nil || !enabled {
		return false, err
	}
	loading, err := c.d.Visible(LoadingIndicator)
	if err != nil {
		return false, err
	}
	return !loading, nil
}

// restore focuses main. Failures are logged, never returned: it runs on
// cleanup paths where the original error matters more.
func (c *Coordinator) restore() {
	if err := c.d.SwitchToWindow(c.main); err != nil {
		c.log.Warn("restore_main_failed", "window", c.main, "error", err.Error())
	}
}

// discard closes a popup that Open found but could not hand out, then
// focuses main. Both steps are best effort.
func (c *Coordinator) discard(handle string) {
	if err := c.d.SwitchToWindow(handle); err == nil {
		if err := c.d.CloseWindow(); err != nil {
			c.log.Warn("popup_close_failed", "window", handle, "error", err.Error())
		}
	}
	c.restore()
}

func (c *Coordinator) release(p *Popup) {
	c.mu.Lock()
	if c.active == p {
		c.active = nil
	}
	c.mu.Unlock()
}

// Close closes the popup if it is still open and focuses main. A failure to
// close is logged and swallowed; a failure to refocus main is returned.
// Calling Close or Done again returns the first result.
func (p *Popup) Close() error {
	p.once.Do(func() {
		c := p.c
		defer c.release(p)
		if err := c.d.SwitchToWindow(p.handle); err == nil {
			if err := c.d.CloseWindow(); err != nil {
				c.log.Warn("popup_close_failed", "window", p.handle, "error", err.Error())
			}
		}
		p.err = c.d.SwitchToWindow(c.main)
	})
	return p.err
}

// Done waits for a popup that closes itself (after a completed sign-in) to
// disappear, then focuses main.
func (p *Popup) Done() error {
	p.once.Do(func() {
		c := p.c
		defer c.release(p)
		err := c.w.For("identity dialog window to close", func() (bool, error) {
			handles, err := c.d.WindowHandles()
			if err != nil {
				return false, err
			}
			return !slices.Contains(handles, p.handle), nil
		})
		if rerr := c.d.SwitchToWindow(c.main); err == nil {
			err = rerr
		} else if rerr != nil {
			c.log.Warn("restore_main_failed", "window", c.main, "error", rerr.Error())
		}
		p.err = err
	})
	return p.err
}

// With opens a popup, runs fn with focus on it and always returns focus to
// main, even if fn panics. When fn succeeds the popup is expected to close
// itself; when fn fails the popup is closed.
func (c *Coordinator) With(trigger func() error, expect Expectation, fn func(*Popup) error) (err error) {
	p, err := c.Open(trigger, expect)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = p.Close()
			panic(r)
		}
	}()

	if err := fn(p); err != nil {
		_ = p.Close()
		return err
	}
	return p.Done()
}
