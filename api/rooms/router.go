// Package rooms exposes room scheduling over HTTP.
//
// The caller identifies itself with the X-Member-ID header. Every route lives
// under /api/rooms/{roomID}:
//
//	GET  /                               room with slots
//	POST /simulate                       travel check of a hypothetical slot
//	POST /allocate                       allocation (dry_run for a preview)
//	POST /slots                          manual slot, gated by the simulator
//	POST /confirm                        calendar commit
//	POST /autoconfirm                    arm or disarm the deadline
//	POST /reset                          remove every slot
//	GET  /exchanges                      exchange requests
//	POST /exchanges                      new request, swap or release
//	POST /exchanges/{id}/respond         target decision
//	POST /exchanges/{id}/chain           requester decision on a chain
//	POST /exchanges/{id}/cancel          requester withdrawal
//	PUT  /members/{memberID}/preferences availability update
//	GET  /audit                          audit entries
package rooms

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kilianp07/slotshare/core/logger"
)

// ActorHeader carries the id of the calling member.
const ActorHeader = "X-Member-ID"

// NewRouter mounts the handler on a chi router with request ids, panic
// recovery, request logging and CORS.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Route("/api/rooms/{roomID}", func(r chi.Router) {
		r.Get("/", h.GetRoom)
		r.Post("/simulate", h.Simulate)
		r.Post("/allocate", h.Allocate)
		r.Post("/slots", h.InsertSlot)
		r.Post("/confirm", h.Confirm)
		r.Post("/autoconfirm", h.AutoConfirm)
		r.Post("/reset", h.Reset)
		r.Get("/audit", h.Audit)
		r.Put("/members/{memberID}/preferences", h.UpdatePreferences)
		r.Route("/exchanges", func(r chi.Router) {
			r.Get("/", h.ListExchanges)
			r.Post("/", h.CreateExchange)
			r.Post("/{id}/respond", h.RespondExchange)
			r.Post("/{id}/chain", h.ConfirmChain)
			r.Post("/{id}/cancel", h.CancelExchange)
		})
	})
	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
