package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/config"
	"github.com/arcadara/portal/internal/database"
	"github.com/arcadara/portal/internal/handler"
	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/oauth"
	"github.com/arcadara/portal/internal/oauthstate"
	"github.com/arcadara/portal/internal/queue"
	"github.com/arcadara/portal/internal/repository"
	"github.com/arcadara/portal/internal/router"
	"github.com/arcadara/portal/internal/utils"
)

func main() {
	// .env is a development convenience; in production the variables
	// come from the environment itself.
	_ = godotenv.Load()

	cfg := config.Load()
	clk := clock.System()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: a nil client disables rate limiting and the
	// remote-account metadata cache.
	rdb := config.NewRedisClient()

	users := repository.NewUserRepo(db, clk)
	links := repository.NewLinkRepo(db, clk, rdb)
	sessions := repository.NewSessionRepo(db, clk)
	clients := repository.NewClientRepo(db, clk)
	tokens := repository.NewTokenRepo(db, clk)

	passwords := utils.BcryptService{Cost: cfg.BcryptCost}

	codec, err := oauthstate.NewCodec(cfg.SelfOrigin, cfg.StateKeys, clk)
	if err != nil {
		log.Fatalf("state codec: %v", err)
	}
	oauthClient := oauth.NewClient(oauth.ClientConfig{
		ClientID:     cfg.TwinoidClientID,
		ClientSecret: cfg.TwinoidClientSecret,
		AuthorizeURL: cfg.TwinoidAuthorizeURL,
		TokenURL:     cfg.TwinoidTokenURL,
		UserInfoURL:  cfg.TwinoidUserInfoURL,
		CallbackURL:  cfg.TwinoidCallbackURL,
		Scopes:       cfg.TwinoidScopes,
	}, codec)
	provider := oauth.NewProvider(clients, tokens, passwords, clk)

	resolver := auth.NewResolver(users, sessions, provider, cfg.SessionWindow, clk)

	e := echo.New()
	e.Use(middleware.NewRateLimit(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.AuthContext(resolver))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(users, sessions, passwords))
	router.RegisterUsers(e, handler.NewUserHandler(users))
	router.RegisterLinks(e, handler.NewLinkHandler(links))
	router.RegisterOauth(e, handler.NewOauthHandler(oauthClient, provider, links, users, sessions, cfg.StateTTL, cfg.AccessTokenTTL))

	// Drain link audit events into the local log for the lifetime of
	// the process. The consumer reconnects on broker failures.
	go func() {
		if err := queue.StartLinkAuditConsumer(); err != nil {
			log.Printf("link audit consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
