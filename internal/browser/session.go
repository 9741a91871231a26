package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/logutil"
	"github.com/kuitang/persona-e2e/internal/obs"
)

// DefaultActionTimeout bounds a single browser action (click, fill, read).
const DefaultActionTimeout = 5 * time.Second

// LaunchOptions configure browser processes started by a Launcher.
type LaunchOptions struct {
	Headed        bool
	ActionTimeout time.Duration
	Logger        *slog.Logger
}

// Launcher owns one Playwright driver and at most one running browser per
// engine. Sessions share the browser process but each gets its own context,
// so cookies and storage never leak between them.
type Launcher struct {
	opts LaunchOptions

	mu       sync.Mutex
	pw       *playwright.Playwright
	browsers map[Kind]playwright.Browser
}

// NewLauncher starts the Playwright driver. It fails with errs.Unavailable
// when Playwright or its browsers are not installed.
func NewLauncher(opts LaunchOptions) (*Launcher, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = obs.Pkg("browser")
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright", err)
	}
	return &Launcher{
		opts:     opts,
		pw:       pw,
		browsers: make(map[Kind]playwright.Browser),
	}, nil
}

func (l *Launcher) browser(kind Kind) (playwright.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil, errs.New(errs.FailedPrecondition, "launcher is closed")
	}
	if b, ok := l.browsers[kind]; ok && b.IsConnected() {
		return b, nil
	}

	var bt playwright.BrowserType
	switch kind {
	case Chromium:
		bt = l.pw.Chromium
	case Firefox:
		bt = l.pw.Firefox
	case WebKit:
		bt = l.pw.WebKit
	default:
		return nil, errs.Newf(errs.Configuration, "unsupported browser %q", kind)
	}
	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!l.opts.Headed),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("launch %s", kind), err)
	}
	l.browsers[kind] = b
	l.opts.Logger.Info("browser_launched", "browser", string(kind), "version", b.Version())
	return b, nil
}

// NewSession opens a fresh browser context with one blank window.
func (l *Launcher) NewSession(kind Kind) (*Session, error) {
	b, err := l.browser(kind)
	if err != nil {
		return nil, err
	}
	bctx, err := b.NewContext()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "create browser context", err)
	}
	timeoutMS := float64(l.opts.ActionTimeout.Milliseconds())
	bctx.SetDefaultTimeout(timeoutMS)
	bctx.SetDefaultNavigationTimeout(2 * timeoutMS)

	s := &Session{
		kind:  kind,
		bctx:  bctx,
		pages: make(map[string]playwright.Page),
		log:   l.opts.Logger.With("browser", string(kind)),
	}
	bctx.OnPage(func(p playwright.Page) {
		s.track(p)
	})

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Unavailable, "open first window", err)
	}
	s.mu.Lock()
	s.current = s.trackLocked(page)
	s.mu.Unlock()
	return s, nil
}

// Close shuts down every browser and the Playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for kind, b := range l.browsers {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.Internal, fmt.Sprintf("close %s", kind), err)
		}
	}
	l.browsers = map[Kind]playwright.Browser{}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.Internal, "stop playwright", err)
		}
		l.pw = nil
	}
	return firstErr
}

// Launch starts a private launcher and returns a session that stops it on Quit.
func Launch(kind Kind, opts LaunchOptions) (*Session, error) {
	l, err := NewLauncher(opts)
	if err != nil {
		return nil, err
	}
	s, err := l.NewSession(kind)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	s.owner = l
	return s, nil
}

// Session is a Driver over one Playwright browser context.
type Session struct {
	kind  Kind
	bctx  playwright.BrowserContext
	owner *Launcher
	log   *slog.Logger

	mu           sync.Mutex
	pages        map[string]playwright.Page
	order        []string
	seq          int
	current      string
	dialogArmed  bool
	dialogAccept bool
}

var _ Driver = (*Session)(nil)

// Kind returns the engine behind the session.
func (s *Session) Kind() Kind { return s.kind }

func (s *Session) track(p playwright.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(p)
}

// trackLocked assigns p a handle unless it already has one.
func (s *Session) trackLocked(p playwright.Page) string {
	for h, known := range s.pages {
		if known == p {
			return h
		}
	}
	s.seq++
	handle := "w" + strconv.Itoa(s.seq)
	s.pages[handle] = p
	s.order = append(s.order, handle)

	p.OnDialog(func(d playwright.Dialog) {
		s.handleDialog(handle, d)
	})
	p.OnClose(func(playwright.Page) {
		s.untrack(handle)
	})
	s.log.Debug("window_opened", "window", handle)
	return handle
}

func (s *Session) untrack(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, handle)
	for i, h := range s.order {
		if h == handle {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.log.Debug("window_closed", "window", handle)
}

func (s *Session) handleDialog(handle string, d playwright.Dialog) {
	s.mu.Lock()
	accept := s.dialogArmed && s.dialogAccept
	s.dialogArmed = false
	s.mu.Unlock()

	s.log.Info("native_dialog", "window", handle, "type", d.Type(), "message", d.Message(), "accept", accept)
	var err error
	if accept {
		err = d.Accept()
	} else {
		err = d.Dismiss()
	}
	if err != nil {
		s.log.Warn("native_dialog_error", "window", handle, "error", err.Error())
	}
}

// HandleNextDialog implements Driver.
func (s *Session) HandleNextDialog(accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogArmed = true
	s.dialogAccept = accept
}

// page returns the focused window's page.
func (s *Session) page() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[s.current]
	if !ok || p.IsClosed() {
		return nil, errs.Newf(errs.NotFound, "window %s is closed", s.current)
	}
	return p, nil
}

// translate maps Playwright errors onto the suite's error codes.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return errs.Wrap(errs.Timeout, op, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return errs.Wrap(errs.NotFound, op, err)
	default:
		return errs.Wrap(errs.Internal, op, err)
	}
}

// first returns the first element matching selector, or errs.NotFound.
func (s *Session) first(selector string) (playwright.Locator, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	loc := p.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil, translate("count "+selector, err)
	}
	if n == 0 {
		return nil, errs.Newf(errs.NotFound, "no element matches %q", selector)
	}
	return loc.First(), nil
}

// Navigate implements Driver.
func (s *Session) Navigate(url string) error {
	p, err := s.page()
	if err != nil {
		return err
	}
	s.log.Debug("navigate", "url", logutil.RedactURL(url))
	_, err = p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return translate("navigate to "+logutil.RedactURL(url), err)
}

// Refresh implements Driver.
func (s *Session) Refresh() error {
	p, err := s.page()
	if err != nil {
		return err
	}
	_, err = p.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return translate("reload", err)
}

// URL implements Driver.
func (s *Session) URL() (string, error) {
	p, err := s.page()
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

// Title implements Driver.
func (s *Session) Title() (string, error) {
	p, err := s.page()
	if err != nil {
		return "", err
	}
	title, err := p.Title()
	return title, translate("title", err)
}

// Content implements Driver.
func (s *Session) Content() (string, error) {
	p, err := s.page()
	if err != nil {
		return "", err
	}
	html, err := p.Content()
	return html, translate("content", err)
}

// Click implements Driver.
func (s *Session) Click(selector string) error {
	loc, err := s.first(selector)
	if err != nil {
		return err
	}
	return translate("click "+selector, loc.Click())
}

// ClickNth implements Driver.
func (s *Session) ClickNth(selector string, n int) error {
	p, err := s.page()
	if err != nil {
		return err
	}
	loc := p.Locator(selector)
	count, err := loc.Count()
	if err != nil {
		return translate("count "+selector, err)
	}
	if n < 0 || n >= count {
		return errs.Newf(errs.NotFound, "no element %d for %q (found %d)", n, selector, count)
	}
	return translate("click "+selector, loc.Nth(n).Click())
}

// Type implements Driver. The field's previous value is replaced.
func (s *Session) Type(selector, text string) error {
	loc, err := s.first(selector)
	if err != nil {
		return err
	}
	return translate("fill "+selector, loc.Fill(text))
}

// Clear implements Driver.
func (s *Session) Clear(selector string) error {
	loc, err := s.first(selector)
	if err != nil {
		return err
	}
	return translate("clear "+selector, loc.Clear())
}

// Text implements Driver.
func (s *Session) Text(selector string) (string, error) {
	loc, err := s.first(selector)
	if err != nil {
		return "", err
	}
	text, err := loc.InnerText()
	return text, translate("text "+selector, err)
}

// Texts implements Driver.
func (s *Session) Texts(selector string) ([]string, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	texts, err := p.Locator(selector).AllInnerTexts()
	return texts, translate("texts "+selector, err)
}

// Value implements Driver.
func (s *Session) Value(selector string) (string, error) {
	loc, err := s.first(selector)
	if err != nil {
		return "", err
	}
	v, err := loc.InputValue()
	return v, translate("value "+selector, err)
}

// Attribute implements Driver.
func (s *Session) Attribute(selector, name string) (string, error) {
	loc, err := s.first(selector)
	if err != nil {
		return "", err
	}
	v, err := loc.GetAttribute(name)
	return v, translate("attribute "+name+" of "+selector, err)
}

// Visible implements Driver.
func (s *Session) Visible(selector string) (bool, error) {
	p, err := s.page()
	if err != nil {
		return false, err
	}
	ok, err := p.Locator(selector).First().IsVisible()
	return ok, translate("visible "+selector, err)
}

// Enabled implements Driver.
func (s *Session) Enabled(selector string) (bool, error) {
	p, err := s.page()
	if err != nil {
		return false, err
	}
	loc := p.Locator(selector)
	n, err := loc.Count()
	if err != nil || n == 0 {
		return false, translate("count "+selector, err)
	}
	ok, err := loc.First().IsEnabled()
	return ok, translate("enabled "+selector, err)
}

// Checked implements Driver.
func (s *Session) Checked(selector string) (bool, error) {
	loc, err := s.first(selector)
	if err != nil {
		return false, err
	}
	ok, err := loc.IsChecked()
	return ok, translate("checked "+selector, err)
}

// Count implements Driver.
func (s *Session) Count(selector string) (int, error) {
	p, err := s.page()
	if err != nil {
		return 0, err
	}
	n, err := p.Locator(selector).Count()
	return n, translate("count "+selector, err)
}

// Evaluate implements Driver.
func (s *Session) Evaluate(script string, args ...any) (any, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	v, err := p.Evaluate(script, args...)
	return v, translate("evaluate", err)
}

// WindowHandles implements Driver. Handles are returned in opening order.
func (s *Session) WindowHandles() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	for _, h := range s.order {
		if p := s.pages[h]; p != nil && !p.IsClosed() {
			out = append(out, h)
		}
	}
	return out, nil
}

// CurrentWindow implements Driver.
func (s *Session) CurrentWindow() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// SwitchToWindow implements Driver.
func (s *Session) SwitchToWindow(handle string) error {
	s.mu.Lock()
	p, ok := s.pages[handle]
	if !ok || p.IsClosed() {
		s.mu.Unlock()
		return errs.Newf(errs.NotFound, "no window %s", handle)
	}
	s.current = handle
	s.mu.Unlock()

	if err := p.BringToFront(); err != nil {
		s.log.Debug("bring_to_front_failed", "window", handle, "error", err.Error())
	}
	return nil
}

// CloseWindow implements Driver.
func (s *Session) CloseWindow() error {
	p, err := s.page()
	if err != nil {
		return err
	}
	return translate("close window", p.Close())
}

// Screenshot implements Driver.
func (s *Session) Screenshot() ([]byte, error) {
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	png, err := p.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	return png, translate("screenshot", err)
}

// Quit closes every window of the session. A session created by Launch also
// stops its private launcher.
func (s *Session) Quit() error {
	err := translate("close browser context", s.bctx.Close())
	if s.owner != nil {
		if cerr := s.owner.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
