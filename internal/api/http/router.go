package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-training/internal/auth"
	"github.com/mind-engage/mindengage-training/internal/content"
	"github.com/mind-engage/mindengage-training/internal/instance"
	"github.com/mind-engage/mindengage-training/internal/rbac"
	"github.com/mind-engage/mindengage-training/internal/reservation"
	"github.com/mind-engage/mindengage-training/internal/session"
	"github.com/mind-engage/mindengage-training/internal/storage"
)

type Deps struct {
	Auth        auth.Authenticator
	Credentials Credentials
	Tokens      TokenIssuer

	Content   *content.Service
	Instances *instance.Service
	Sessions  *session.Service
	Lock      *reservation.Lock
	Blobs     storage.BlobStore

	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error

	CORSOrigins     []string
	EnableLocalAuth bool
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "not ready"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if d.EnableLocalAuth {
		r.Post("/auth/login", LoginHandler(d.Credentials, d.Tokens))
	}

	// Protected API (bearer → identity in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(d.Auth))

		pr.With(rbac.Require("user:change_password")).
			Post("/auth/password", ChangePasswordHandler(d.Credentials))

		pr.Route(storage.MountPath, func(ar chi.Router) {
			MountAssets(ar, d.Blobs, d.Sessions)
		})
		pr.Route("/learner", func(lr chi.Router) {
			lr.Use(rbac.Require("exam:take"))
			MountLearner(lr, d.Sessions)
		})
		pr.Route("/instructor", func(ir chi.Router) {
			MountInstructor(ir, d.Content, d.Instances, d.Sessions)
		})
		if d.Lock != nil {
			pr.Route("/reservations", func(rr chi.Router) {
				rr.Use(rbac.Require("reservation:manage"))
				MountReservations(rr, d.Lock)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "route not found"})
	})
	return r
}
