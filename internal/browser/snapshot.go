package browser

import (
	"time"
)

// Snapshot is the diagnostic state of the focused window at failure time.
type Snapshot struct {
	Window  string
	URL     string
	Title   string
	HTML    string
	PNG     []byte
	TakenAt time.Time
	// Errors lists the captures that failed; a snapshot is always best effort.
	Errors []string
}

// Capture records whatever it can of d's focused window. It never fails.
func Capture(d Driver) Snapshot {
	snap := Snapshot{TakenAt: time.Now().UTC()}
	note := func(what string, err error) {
		if err != nil {
			snap.Errors = append(snap.Errors, what+": "+err.Error())
		}
	}

	var err error
	snap.Window, err = d.CurrentWindow()
	note("window", err)
	snap.URL, err = d.URL()
	note("url", err)
	snap.Title, err = d.Title()
	note("title", err)
	snap.HTML, err = d.Content()
	note("html", err)
	snap.PNG, err = d.Screenshot()
	note("screenshot", err)
	return snap
}

// Empty reports whether nothing at all could be captured.
func (s Snapshot) Empty() bool {
	return s.URL == "" && s.HTML == "" && len(s.PNG) == 0
}
