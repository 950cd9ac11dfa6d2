package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the REST API, the realtime endpoint and the operational routes.
func NewRouter(api *Handler, ws *WSHandler, auth *Authenticator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", ws.ServeWS)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(h)
	}
	mux.Handle("POST /api/blitz/sessions", protected(api.CreateSession))
	mux.Handle("POST /api/blitz/join", protected(api.Join))
	mux.Handle("GET /api/blitz/sessions/{id}", protected(api.GetState))
	mux.Handle("POST /api/blitz/sessions/{id}/start", protected(api.Start))
	mux.Handle("POST /api/blitz/sessions/{id}/answers", protected(api.SubmitAnswer))
	mux.Handle("DELETE /api/blitz/sessions/{id}/players/{playerId}", protected(api.KickPlayer))
	mux.Handle("POST /api/blitz/sessions/{id}/cancel", protected(api.Cancel))
	mux.Handle("GET /api/blitz/sessions/{id}/history", protected(api.History))
	return mux
}
