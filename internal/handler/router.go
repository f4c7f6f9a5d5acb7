package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zhouzirui/streamchat/backend/internal/handler/auth"
	"github.com/zhouzirui/streamchat/backend/internal/handler/chat"
	"github.com/zhouzirui/streamchat/backend/internal/handler/history"
	authService "github.com/zhouzirui/streamchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/streamchat/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(authSvc *authService.Service, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Chat-Id"},
		MaxAge:         300,
	}))

	auth.New(authSvc).RegisterRoutes(r)
	chat.New(chatSvc).RegisterRoutes(r)
	history.New(chatSvc).RegisterRoutes(r)

	return r
}
