package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"guardia.org/internal/auth"
	"guardia.org/internal/httpapi"
	"guardia.org/internal/mail"
	"guardia.org/internal/obs"
	"guardia.org/internal/sso"
	"guardia.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

type config struct {
	addr        string
	env         string
	dsn         string
	authSecret  string
	backendURL  string
	frontendURL string

	smtpHost     string
	smtpPort     int
	smtpUser     string
	smtpPassword string
	smtpFrom     string

	oauthClientID     string
	oauthClientSecret string
	oauthRedirectURL  string
}

func loadConfig() config {
	return config{
		addr:        envOr("GUARDIA_ADDR", ":8080"),
		env:         envOr("GUARDIA_ENV", "development"),
		dsn:         os.Getenv("GUARDIA_PG_DSN"),
		authSecret:  os.Getenv("GUARDIA_AUTH_SECRET"),
		backendURL:  envOr("GUARDIA_BACKEND_URL", "http://localhost:8080"),
		frontendURL: os.Getenv("GUARDIA_FRONTEND_URL"),

		smtpHost:     os.Getenv("GUARDIA_SMTP_HOST"),
		smtpPort:     envInt("GUARDIA_SMTP_PORT", 587),
		smtpUser:     os.Getenv("GUARDIA_SMTP_USER"),
		smtpPassword: os.Getenv("GUARDIA_SMTP_PASSWORD"),
		smtpFrom:     os.Getenv("GUARDIA_SMTP_FROM"),

		oauthClientID:     os.Getenv("GUARDIA_OAUTH_CLIENT_ID"),
		oauthClientSecret: os.Getenv("GUARDIA_OAUTH_CLIENT_SECRET"),
		oauthRedirectURL:  os.Getenv("GUARDIA_OAUTH_REDIRECT_URL"),
	}
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := loadConfig()
	if cfg.authSecret == "" {
		log.Fatal("GUARDIA_AUTH_SECRET is required")
	}

	// Postgres when a DSN is configured, in-memory otherwise (dev only).
	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.dsn != "" {
		pgStore, err := pg.Open(cfg.dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Print("GUARDIA_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	issuer, err := auth.NewIssuer(store, cfg.authSecret)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	rbac, err := auth.NewRBAC(store)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := rbac.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtins: %v", err)
	}
	cancel()

	var sender mail.Sender = mail.LogSender{}
	if cfg.smtpHost != "" {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.smtpHost,
			Port:     cfg.smtpPort,
			Username: cfg.smtpUser,
			Password: cfg.smtpPassword,
			From:     cfg.smtpFrom,
		})
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		sender = smtpSender
	}

	svc, err := auth.NewService(store, issuer, rbac,
		auth.WithResetMailer(mail.NewResetMailer(sender), cfg.backendURL+"/auth/reset-password"))
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	apiOpts := []httpapi.Option{
		httpapi.WithEnvironment(cfg.env),
		httpapi.WithFrontendURL(cfg.frontendURL),
	}
	if cfg.oauthClientID != "" {
		provider, err := sso.NewProvider(sso.Config{
			ClientID:     cfg.oauthClientID,
			ClientSecret: cfg.oauthClientSecret,
			RedirectURL:  cfg.oauthRedirectURL,
		})
		if err != nil {
			log.Fatalf("sso: %v", err)
		}
		apiOpts = append(apiOpts, httpapi.WithSSOProvider(provider))
	}

	api := httpapi.New(svc, rbac, issuer, httpapi.ReadyProbe{DB: db}, version, apiOpts...)

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting guardia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
