package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"maildraft/config"
	_ "maildraft/docs"
	"maildraft/internal/adapters/attach"
	"maildraft/internal/adapters/auth"
	"maildraft/internal/adapters/email"
	httpdelivery "maildraft/internal/delivery/http"
	"maildraft/internal/delivery/http/controllers"
	"maildraft/internal/delivery/http/middleware"
	"maildraft/internal/repository/postgres"
	"maildraft/internal/services"
)

// @title Maildraft API
// @version 1.0
// @description Draft-and-send email service with per-user resumable drafts.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	draftRepo := postgres.NewDraftRepository(db)

	hasher := auth.NewBcryptHasher(auth.DefaultBcryptCost)
	tokenCodec := auth.NewJWTCodec(cfg.JWTSecret)
	codec := attach.NewBase64Codec(cfg.MaxAttachmentBytes)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Mailer.Provider,
		FromAddress: cfg.Mailer.FromAddress,
		FromName:    cfg.Mailer.FromName,
		SES: email.SESConfig{
			Region:             cfg.Mailer.SESRegion,
			AccessKeyID:        cfg.Mailer.SESAccessKeyID,
			SecretAccessKey:    cfg.Mailer.SESSecretAccessKey,
			InsecureSkipVerify: cfg.Mailer.SESInsecureSkipVerify,
		},
	})
	if err != nil {
		log.Fatalf("failed to create mailer: %v", err)
	}
	renderer := email.NewTemplateRenderer()

	emailService := services.NewEmailService(mailer, renderer, logger)
	userService := services.NewUserService(userRepo, roleRepo, hasher, tokenCodec, cfg.JWTExpiry, emailService, logger)
	draftService := services.NewDraftService(draftRepo, codec, userRepo, emailService, logger)

	authController := controllers.NewAuthController(logger, userService)
	userController := controllers.NewUserController(logger, userService)
	draftController := controllers.NewDraftController(logger, draftService)

	mux := httpdelivery.NewRouter(authController, userController, draftController, tokenCodec, logger)

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(logger, handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins, handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
