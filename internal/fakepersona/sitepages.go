package fakepersona

import (
	"net/http"
	"time"

	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
)

type homePage struct {
	SignedIn bool
	Emails   []string
}

type dialogPage struct {
	RP string
}

type completePage struct {
	Title         string
	Purpose       string
	RedirectDelay time.Duration
}

func (s *Server) registerSitePages(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.Home)
	mux.HandleFunc("GET /signin", func(w http.ResponseWriter, r *http.Request) {
		s.render(w, "signin.html", nil)
	})
	mux.HandleFunc("GET /sign_in", s.Dialog)
	for _, purpose := range []restmail.Purpose{restmail.VerifyAccount, restmail.ConfirmEmail, restmail.ResetPassword} {
		mux.HandleFunc("GET /"+purpose.Path(), func(w http.ResponseWriter, r *http.Request) {
			s.render(w, "complete.html", completePage{
				Title:         pages.RegistrationTitle,
				Purpose:       purpose.String(),
				RedirectDelay: s.opts.RedirectDelay,
			})
		})
	}
}

// Home serves the account manager to a signed-in browser and the landing
// page otherwise.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, a := s.sessionLocked(r)
	var data homePage
	if a != nil {
		data = homePage{SignedIn: true, Emails: append([]string(nil), a.emails...)}
	}
	s.mu.Unlock()
	s.render(w, "home.html", data)
}

// Dialog serves the identity popup for the relying party named by ?rp=.
func (s *Server) Dialog(w http.ResponseWriter, r *http.Request) {
	rp := r.URL.Query().Get("rp")
	if !isRelyingParty(rp) {
		http.Error(w, "unknown relying party", http.StatusBadRequest)
		return
	}
	s.render(w, "dialog.html", dialogPage{RP: rp})
}
