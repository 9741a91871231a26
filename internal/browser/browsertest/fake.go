// Package browsertest provides an in-memory browser.Driver for unit tests.
//
// A Fake holds a set of windows, each with a table of elements keyed by the
// exact selector string page objects use. Clicks can be scripted to open or
// close windows, change elements or raise native dialogs.
package browsertest

import (
	"strconv"
	"sync"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/errs"
)

// Element is the observable state of one element.
type Element struct {
	Text    string
	Texts   []string // for selectors matching several elements; Text is used when empty
	Value   string
	Visible bool
	Enabled bool
	Checked bool
	Attrs   map[string]string
}

// Window is one fake page.
type Window struct {
	URL      string
	Title    string
	HTML     string
	Elements map[string]*Element
}

// Fake implements browser.Driver.
type Fake struct {
	mu      sync.Mutex
	windows map[string]*Window
	order   []string
	current string
	seq     int

	onClick    map[string]func() error
	onNavigate func(url string) error

	dialogArmed  bool
	dialogAccept bool
	// DialogResults records, in order, whether each raised dialog was accepted.
	DialogResults []bool
	// Clicks records "<window>:<selector>" for every successful click.
	Clicks []string
	// Typed records "<selector>=<text>" for every Type call.
	Typed []string
	// SwitchLog records every successful SwitchToWindow target.
	SwitchLog []string
	// CloseErr, when set, is returned by CloseWindow after the window closes.
	CloseErr error
	Quitted  bool
}

var _ browser.Driver = (*Fake)(nil)

// New returns a Fake with one focused blank window.
func New() *Fake {
	f := &Fake{
		windows: make(map[string]*Window),
		onClick: make(map[string]func() error),
	}
	f.current = f.openLocked()
	return f
}

func (f *Fake) openLocked() string {
	f.seq++
	h := "w" + strconv.Itoa(f.seq)
	f.windows[h] = &Window{Elements: make(map[string]*Element)}
	f.order = append(f.order, h)
	return h
}

// OpenWindow simulates the site opening a popup and returns its handle.
// Focus does not move.
func (f *Fake) OpenWindow() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openLocked()
}

// CloseHandle simulates a window closing itself.
func (f *Fake) CloseHandle(h string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked(h)
}

func (f *Fake) closeLocked(h string) {
	delete(f.windows, h)
	for i, o := range f.order {
		if o == h {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

// Window returns the window for handle h, or nil.
func (f *Fake) Window(h string) *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[h]
}

// Set installs (or replaces) an element in window h.
func (f *Fake) Set(h, selector string, el Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok {
		return
	}
	e := el
	w.Elements[selector] = &e
}

// Remove deletes an element from window h.
func (f *Fake) Remove(h, selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		delete(w.Elements, selector)
	}
}

// SetPage sets URL and title of window h.
func (f *Fake) SetPage(h, url, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		w.URL = url
		w.Title = title
	}
}

// OnClick runs fn after a successful click on selector, in any window. The
// hook runs without the Fake's lock held and may call any Fake method.
func (f *Fake) OnClick(selector string, fn func() error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClick[selector] = fn
}

// OnNavigate runs fn after every Navigate.
func (f *Fake) OnNavigate(fn func(url string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onNavigate = fn
}

// RaiseDialog simulates a native dialog and reports whether it was accepted.
func (f *Fake) RaiseDialog() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	accept := f.dialogArmed && f.dialogAccept
	f.dialogArmed = false
	f.DialogResults = append(f.DialogResults, accept)
	return accept
}

func (f *Fake) windowLocked() (*Window, error) {
	w, ok := f.windows[f.current]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "window %s is closed", f.current)
	}
	return w, nil
}

func (f *Fake) elementLocked(selector string) (*Element, error) {
	w, err := f.windowLocked()
	if err != nil {
		return nil, err
	}
	el, ok := w.Elements[selector]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no element matches %q", selector)
	}
	return el, nil
}

// Navigate implements browser.Driver.
func (f *Fake) Navigate(url string) error {
	f.mu.Lock()
	w, err := f.windowLocked()
	if err != nil {
		f.mu.Unlock()
		return err
	}
	w.URL = url
	hook := f.onNavigate
	f.mu.Unlock()
	if hook != nil {
		return hook(url)
	}
	return nil
}

// Refresh implements browser.Driver.
func (f *Fake) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.windowLocked()
	return err
}

// URL implements browser.Driver.
func (f *Fake) URL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return "", err
	}
	return w.URL, nil
}

// Title implements browser.Driver.
func (f *Fake) Title() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return "", err
	}
	return w.Title, nil
}

// Content implements browser.Driver.
func (f *Fake) Content() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return "", err
	}
	return w.HTML, nil
}

// Click implements browser.Driver.
func (f *Fake) Click(selector string) error {
	f.mu.Lock()
	if _, err := f.elementLocked(selector); err != nil {
		f.mu.Unlock()
		return err
	}
	f.Clicks = append(f.Clicks, f.current+":"+selector)
	hook := f.onClick[selector]
	f.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

// ClickNth implements browser.Driver.
func (f *Fake) ClickNth(selector string, n int) error {
	f.mu.Lock()
	el, err := f.elementLocked(selector)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	count := len(el.Texts)
	if count == 0 {
		count = 1
	}
	if n < 0 || n >= count {
		f.mu.Unlock()
		return errs.Newf(errs.NotFound, "no element %d for %q", n, selector)
	}
	f.Clicks = append(f.Clicks, f.current+":"+selector+"#"+strconv.Itoa(n))
	hook := f.onClick[selector+"#"+strconv.Itoa(n)]
	f.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

// Type implements browser.Driver.
func (f *Fake) Type(selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return err
	}
	el.Value = text
	f.Typed = append(f.Typed, selector+"="+text)
	return nil
}

// Clear implements browser.Driver.
func (f *Fake) Clear(selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

// Text implements browser.Driver.
func (f *Fake) Text(selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return "", err
	}
	if el.Text == "" && len(el.Texts) > 0 {
		return el.Texts[0], nil
	}
	return el.Text, nil
}

// Texts implements browser.Driver.
func (f *Fake) Texts(selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return nil, err
	}
	el, ok := w.Elements[selector]
	if !ok {
		return nil, nil
	}
	if len(el.Texts) > 0 {
		return append([]string(nil), el.Texts...), nil
	}
	return []string{el.Text}, nil
}

// Value implements browser.Driver.
func (f *Fake) Value(selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

// Attribute implements browser.Driver.
func (f *Fake) Attribute(selector, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return "", err
	}
	return el.Attrs[name], nil
}

// Visible implements browser.Driver.
func (f *Fake) Visible(selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return false, err
	}
	el, ok := w.Elements[selector]
	return ok && el.Visible, nil
}

// Enabled implements browser.Driver.
func (f *Fake) Enabled(selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return false, err
	}
	el, ok := w.Elements[selector]
	return ok && el.Enabled, nil
}

// Checked implements browser.Driver.
func (f *Fake) Checked(selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.elementLocked(selector)
	if err != nil {
		return false, err
	}
	return el.Checked, nil
}

// Count implements browser.Driver.
func (f *Fake) Count(selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.windowLocked()
	if err != nil {
		return 0, err
	}
	el, ok := w.Elements[selector]
	if !ok {
		return 0, nil
	}
	if len(el.Texts) > 0 {
		return len(el.Texts), nil
	}
	return 1, nil
}

// Evaluate implements browser.Driver. Scripts are not executed.
func (f *Fake) Evaluate(string, ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.windowLocked()
	return nil, err
}

// WindowHandles implements browser.Driver.
func (f *Fake) WindowHandles() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...), nil
}

// CurrentWindow implements browser.Driver.
func (f *Fake) CurrentWindow() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

// SwitchToWindow implements browser.Driver.
func (f *Fake) SwitchToWindow(h string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[h]; !ok {
		return errs.Newf(errs.NotFound, "no window %s", h)
	}
	f.current = h
	f.SwitchLog = append(f.SwitchLog, h)
	return nil
}

// CloseWindow implements browser.Driver.
func (f *Fake) CloseWindow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.windowLocked(); err != nil {
		return err
	}
	f.closeLocked(f.current)
	return f.CloseErr
}

// HandleNextDialog implements browser.Driver.
func (f *Fake) HandleNextDialog(accept bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialogArmed = true
	f.dialogAccept = accept
}

// Screenshot implements browser.Driver.
func (f *Fake) Screenshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.windowLocked(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

// Quit implements browser.Driver.
func (f *Fake) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quitted = true
	f.windows = map[string]*Window{}
	f.order = nil
	return nil
}
