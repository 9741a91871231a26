package fakepersona

import (
	"net/http"

	"github.com/kuitang/persona-e2e/internal/pages"
)

type rpPage struct {
	Site pages.Site
}

// registerRelyingParty mounts one demo relying party under /<name>/. It keeps
// its own session keyed by a path-scoped cookie and trusts only assertions
// whose audience is its own origin and path.
func (s *Server) registerRelyingParty(mux *http.ServeMux, site pages.Site) {
	prefix := "/" + site.Name
	mux.Handle("GET "+prefix, http.RedirectHandler(prefix+"/", http.StatusFound))
	mux.HandleFunc("GET "+prefix+"/{$}", func(w http.ResponseWriter, r *http.Request) {
		s.render(w, "rp.html", rpPage{Site: site})
	})
	mux.HandleFunc("GET "+prefix+"/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"email": s.rpUser(r, site.Name)})
	})
	mux.HandleFunc("POST "+prefix+"/api/login", func(w http.ResponseWriter, r *http.Request) {
		s.rpLogin(w, r, site.Name)
	})
	mux.HandleFunc("POST "+prefix+"/api/logout", func(w http.ResponseWriter, r *http.Request) {
		if id, err := cookieValue(r, rpCookieName); err == nil {
			s.mu.Lock()
			delete(s.rpSessions, site.Name+"/"+id)
			s.mu.Unlock()
		}
		clearCookie(w, r, rpCookieName, prefix)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
}

func (s *Server) rpUser(r *http.Request, rp string) string {
	id, err := cookieValue(r, rpCookieName)
	if err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpSessions[rp+"/"+id]
}

func (s *Server) rpLogin(w http.ResponseWriter, r *http.Request, rp string) {
	var req struct {
		Assertion string `json:"assertion"`
	}
	if !decode(w, r, &req) {
		return
	}
	addr, err := s.signer.Verify(req.Assertion, r.Host, audience(r, rp), s.now())
	if err != nil {
		s.log.Info("rp_login_rejected", "rp", rp, "error", err.Error())
		writeError(w, err)
		return
	}
	id, err := generateSessionID()
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.rpSessions[rp+"/"+id] = addr
	s.mu.Unlock()
	setCookie(w, r, rpCookieName, id, "/"+rp)
	s.log.Info("rp_login", "rp", rp, "email", addr)
	writeJSON(w, http.StatusOK, map[string]string{"email": addr})
}
