package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"radreport-backend/internal/config"
	"radreport-backend/internal/handlers"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	ConversationHandler *handlers.ConversationHandlers
	HealthHandler       *handlers.HealthHandlers
	Config              *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	if deps.Config == nil {
		panic("Config dependency is nil in router setup")
	}

	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)                 // Inject request ID into context
	r.Use(middleware.RealIP)                    // Use X-Forwarded-For or X-Real-IP
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics, return 500
	r.Use(middleware.Timeout(60 * time.Second)) // Set a request timeout

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes (No Auth Required) ---
	if deps.HealthHandler == nil {
		panic("HealthHandler dependency is nil in router setup")
	}
	r.Get("/health", deps.HealthHandler.HandleHealthCheck)

	// --- Conversation Routes ---
	if deps.ConversationHandler == nil {
		panic("ConversationHandler dependency is nil in router setup")
	}
	r.Route("/conversation", func(r chi.Router) {
		// Bearer auth is optional. Routes stay open when no secret is configured.
		if deps.Config.AuthJWTSecret != "" {
			r.Use(BearerAuthMiddleware(deps.Config.AuthJWTSecret))
		} else {
			log.Warn().Msg("AUTH_JWT_SECRET is not set, conversation routes are unauthenticated")
		}

		r.Post("/start", deps.ConversationHandler.HandleStartConversation)
		r.Post("/{conversationID}/continue", deps.ConversationHandler.HandleContinueConversation)
		r.Get("/{conversationID}", deps.ConversationHandler.HandleGetConversation)
	})

	return r
}
