package router

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twojapodobizna/api/internal/auth"
	"github.com/twojapodobizna/api/internal/config"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
	"github.com/twojapodobizna/api/internal/handler"
	"github.com/twojapodobizna/api/internal/mail"
	mw "github.com/twojapodobizna/api/internal/middleware"
	"github.com/twojapodobizna/api/internal/service"
	"github.com/twojapodobizna/api/internal/upload"
	"github.com/twojapodobizna/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, saver *upload.Saver, mailer *mail.Mailer) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	statusBase := cfg.PublicStatusBase
	if statusBase == "" {
		statusBase = cfg.ClientURL
	}

	verifier := auth.NewVerifier(cfg.AdminToken, cfg.AdminTokenHash)
	if !verifier.Configured() {
		log.Println("WARNING: no admin credential configured, admin endpoints will reject everything")
	}

	// Health check
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Uploaded photos are public by filename; names are unguessable.
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(saver.Dir()))))

	// WebSocket admin feed (handles auth internally via ticket query param)
	r.Get("/ws/admin/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.TicketSecret, w, r)
	})

	// Public status page
	publicHandler := handler.NewPublicHandler(queries)
	r.Route("/public", publicHandler.RegisterRoutes)

	// Order intake, rate limited per client IP
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore)
	orderHandler := handler.NewOrderHandler(orderService, saver, mailer, hub, statusBase)
	intakeLimiter := httprate.Limit(
		5, 5*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"` + enum.CodeRateLimited + `"}`))
		}),
	)
	r.With(intakeLimiter).Post("/api/orders", orderHandler.Create)

	// Payments
	paymentHandler := handler.NewPaymentHandler(cfg.StripeSecretKey, cfg.ClientURL, statusBase)
	r.Route("/api/payments", paymentHandler.RegisterRoutes)

	// Contact form
	contactHandler := handler.NewContactHandler(queries, mailer)
	r.Route("/api/contact", contactHandler.RegisterRoutes)

	// Admin routes (require the admin bearer token)
	adminHandler := handler.NewAdminHandler(queries, mailer, hub, saver.Dir(), statusBase, cfg.TicketSecret)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAdmin(verifier))
		r.Route("/api/admin", adminHandler.RegisterRoutes)
		// Legacy admin clients fetch the detail from /api/orders/{id}.
		r.Get("/api/orders/{id}", adminHandler.Get)
	})

	log.Println("Router initialized with all handlers")
	return r
}
