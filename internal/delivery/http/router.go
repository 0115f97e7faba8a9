package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"maildraft/internal/delivery/http/controllers"
	"maildraft/internal/delivery/http/middleware"
	"maildraft/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	authController *controllers.AuthController,
	userController *controllers.UserController,
	draftController *controllers.DraftController,
	verifier domain.TokenVerifier,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)
	admin := middleware.RequireRole("admin")

	// Auth
	mux.HandleFunc("POST /auth/signup", authController.SignUp)
	mux.HandleFunc("POST /auth/login", authController.Login)

	// Users
	mux.HandleFunc("GET /users/me", auth(userController.GetMe))
	mux.HandleFunc("PATCH /users/me", auth(userController.UpdateMe))
	mux.HandleFunc("GET /users", auth(admin(userController.List)))

	// Draft slot
	mux.HandleFunc("GET /drafts/me", auth(draftController.Get))
	mux.HandleFunc("PUT /drafts/me", auth(draftController.Save))
	mux.HandleFunc("DELETE /drafts/me", auth(draftController.Clear))
	mux.HandleFunc("POST /drafts/me/send", auth(draftController.Send))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
