package ops

import (
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gorilla/mux"
)

// Handler builds the router for cfg. Exposed for tests and embedding.
func (s *Service) Handler(cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(bearerAuth(cfg.Token))

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/codes/{code:[0-9]+}", s.code).Methods(http.MethodGet)

	if cfg.Pprof {
		p := r.PathPrefix("/debug/pprof").Subrouter()
		p.HandleFunc("/cmdline", hpprof.Cmdline)
		p.HandleFunc("/profile", hpprof.Profile)
		p.HandleFunc("/symbol", hpprof.Symbol)
		p.HandleFunc("/trace", hpprof.Trace)
		p.PathPrefix("/").HandlerFunc(hpprof.Index)
	}
	return r
}

func (s *Service) healthz(w http.ResponseWriter, r *http.Request) {
	if s.sources.Healthy != nil && !s.sources.Healthy() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) status(w http.ResponseWriter, r *http.Request) {
	if s.sources.Status == nil {
		http.NotFound(w, r)
		return
	}
	v, err := s.sources.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Service) code(w http.ResponseWriter, r *http.Request) {
	if s.sources.Code == nil {
		http.NotFound(w, r)
		return
	}
	v, ok, err := s.sources.Code(r.Context(), mux.Vars(r)["code"])
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	case !ok:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown code"})
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) mux.MiddlewareFunc {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
