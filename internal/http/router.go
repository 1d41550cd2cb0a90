package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Health        http.HandlerFunc
	Status        http.HandlerFunc
	Login         http.HandlerFunc
	Logout        http.HandlerFunc
	SessionExtend http.HandlerFunc
	KioskUnlock   http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Status != nil {
		mux.Handle("/status", method(http.MethodGet, routes.Status))
	}
	if routes.Login != nil {
		mux.Handle("/login", method(http.MethodPost, routes.Login))
	}
	if routes.Logout != nil {
		mux.Handle("/logout", method(http.MethodPost, routes.Logout))
	}
	if routes.SessionExtend != nil {
		mux.Handle("/session/extend", method(http.MethodPost, routes.SessionExtend))
	}
	if routes.KioskUnlock != nil {
		mux.Handle("/kiosk/unlock", method(http.MethodPost, routes.KioskUnlock))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
