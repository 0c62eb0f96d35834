package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/api/middleware"
	"github.com/proctorhq/sessiond/internal/audit"
	"github.com/proctorhq/sessiond/internal/engine"
	"github.com/proctorhq/sessiond/internal/handlers"
	"github.com/proctorhq/sessiond/internal/realtime"
	"github.com/proctorhq/sessiond/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, eng *engine.Engine, recorder *audit.Recorder, redis *realtime.RedisPublisher) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - observers and proctoring frontends call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, eng, recorder, redis)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}/start", h.StartSession)
		r.Post("/{id}/end", h.EndSession)

		r.Post("/{id}/join", h.Join)
		r.Post("/{id}/leave", h.Leave)
		r.Post("/{id}/disconnect", h.Disconnect)
		r.Post("/{id}/rejoin-permission", h.GrantRejoinPermission)

		r.Post("/{id}/rooms", h.CreateRoom)
		r.Post("/{id}/call-next", h.CallNextStudents)

		r.Post("/{id}/breaks", h.RequestBreak)
		r.Post("/{id}/breaks/{requestID}/approve", h.ApproveBreak)
		r.Post("/{id}/breaks/{requestID}/deny", h.DenyBreak)
		r.Post("/{id}/breaks/return", h.ReturnFromBreak)

		r.Post("/{id}/flags", h.FlagUser)
		r.Post("/{id}/flags/{flagID}/escalate", h.EscalateFlag)
		r.Post("/{id}/flags/{flagID}/accept", h.AcceptFlag)
		r.Post("/{id}/flags/{flagID}/reject", h.RejectFlag)
		r.Post("/{id}/kick", h.KickStudent)
	})

	// Audit replay is addressed by instance so observers can page a fixed,
	// totally ordered log.
	r.Get("/instances/{instanceID}/events", h.ListEvents)

	return r
}
