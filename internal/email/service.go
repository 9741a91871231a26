package email

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/testuser"
)

// Mailer sends templated mail.
type Mailer interface {
	// Send renders templateName with data and delivers it to to.
	Send(to, templateName string, data any) error
}

// MemoryMailbox is a Mailer that keeps every message in memory and serves
// it back over the restmail API: GET and DELETE on /mail/{user}.
type MemoryMailbox struct {
	From string

	mu    sync.Mutex
	boxes map[string][]restmail.Message
	now   func() time.Time
}

// NewMemoryMailbox creates an empty mailbox store.
func NewMemoryMailbox(from string) *MemoryMailbox {
	return &MemoryMailbox{From: from, boxes: make(map[string][]restmail.Message), now: time.Now}
}

func mailboxKey(addr string) string {
	return strings.ToLower(testuser.LocalPart(addr))
}

// Send implements Mailer.
func (m *MemoryMailbox) Send(to, templateName string, data any) error {
	subject, text, html, err := Render(templateName, data)
	if err != nil {
		return err
	}
	m.Deliver(to, restmail.Message{Subject: subject, Text: text, HTML: html})
	obs.Pkg("email").Info("email_delivered", "to", to, "template", templateName)
	return nil
}

// Deliver appends msg to the mailbox of to, filling in envelope fields.
func (m *MemoryMailbox) Deliver(to string, msg restmail.Message) {
	if len(msg.To) == 0 {
		msg.To = []restmail.Address{{Address: to}}
	}
	if len(msg.From) == 0 && m.From != "" {
		msg.From = []restmail.Address{{Address: m.From}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = m.now().UTC()
	}
	key := mailboxKey(to)
	m.boxes[key] = append(m.boxes[key], msg)
}

// Messages returns a copy of the mailbox for addr, oldest first.
func (m *MemoryMailbox) Messages(addr string) []restmail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]restmail.Message(nil), m.boxes[mailboxKey(addr)]...)
}

// Count returns the number of messages held for addr.
func (m *MemoryMailbox) Count(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes[mailboxKey(addr)])
}

// LastEmail returns the newest message for addr.
// Returns zero value if none has arrived.
func (m *MemoryMailbox) LastEmail(addr string) restmail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.boxes[mailboxKey(addr)]
	if len(box) == 0 {
		return restmail.Message{}
	}
	return box[len(box)-1]
}

// Clear empties the mailbox for addr.
func (m *MemoryMailbox) Clear(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, mailboxKey(addr))
}

// Handler serves the restmail API. Mount it at /mail/.
func (m *MemoryMailbox) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mail/{user}", func(w http.ResponseWriter, r *http.Request) {
		msgs := m.Messages(r.PathValue("user"))
		if msgs == nil {
			msgs = []restmail.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msgs)
	})
	mux.HandleFunc("DELETE /mail/{user}", func(w http.ResponseWriter, r *http.Request) {
		m.Clear(r.PathValue("user"))
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
